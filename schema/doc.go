// Package schema provides runtime column introspection for the tables the
// row-scope filter inspects, and the process-wide cache of their column sets.
package schema
