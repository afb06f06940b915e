package schema

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// AuditFinding describes a tenant scoping issue of one table.
type AuditFinding struct {
	Table   string
	Column  string
	Message string
	// Unscoped indicates that reads of the table are not tenant scoped.
	Unscoped bool
}

func (e *AuditFinding) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Table, e.Message)
}

// AuditResult holds the results of a tenant column audit.
type AuditResult struct {
	Errors   []*AuditFinding
	Warnings []*AuditFinding
}

// HasErrors returns true if there are any audit errors.
func (r *AuditResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any audit warnings.
func (r *AuditResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Unscoped returns the tables whose reads are not tenant scoped.
func (r *AuditResult) Unscoped() []string {
	var tables []string
	for _, f := range slices.Concat(r.Errors, r.Warnings) {
		if f.Unscoped && !slices.Contains(tables, f.Table) {
			tables = append(tables, f.Table)
		}
	}
	slices.Sort(tables)
	return tables
}

// String returns a human-readable summary of the audit result.
func (r *AuditResult) String() string {
	var sb strings.Builder
	write := func(title string, fs []*AuditFinding) {
		if len(fs) == 0 {
			return
		}
		sb.WriteString(title)
		sb.WriteString(":\n")
		for _, f := range fs {
			sb.WriteString("  - ")
			sb.WriteString(f.Error())
			if f.Unscoped {
				sb.WriteString(" [UNSCOPED]")
			}
			sb.WriteString("\n")
		}
	}
	write("Errors", r.Errors)
	write("Warnings", r.Warnings)
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("No issues found")
	}
	return sb.String()
}

// AuditOption configures a tenant column audit.
type AuditOption func(*auditConfig)

type auditConfig struct {
	allow   []string
	columns []string
}

// AllowUnscoped marks tables that are expected to have no tenant column.
func AllowUnscoped(tables ...string) AuditOption {
	return func(c *auditConfig) {
		c.allow = append(c.allow, tables...)
	}
}

// WithTenantColumns overrides the tenant column priority list.
func WithTenantColumns(columns ...string) AuditOption {
	return func(c *auditConfig) {
		c.columns = columns
	}
}

// AuditTenantColumns checks which scoping column the row-scope filter will
// pick for every table. Tables without a tenant column are reported as
// errors unless allow-listed. Tables carrying several tenant columns, and
// allow-listed tables that do have one, are reported as warnings.
//
// Example:
//
//	result, err := schema.AuditTenantColumns(ctx, cache, d, tables,
//	    schema.AllowUnscoped("directory_country"),
//	)
//	if result.HasErrors() {
//	    log.Fatal("unscoped tables:", result)
//	}
func AuditTenantColumns(ctx context.Context, cache *ColumnCache, d Describer, tables []string, opts ...AuditOption) (*AuditResult, error) {
	cfg := &auditConfig{columns: TenantColumns}
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cache.Warm(ctx, d, tables...); err != nil {
		return nil, err
	}
	result := &AuditResult{}
	for _, table := range tables {
		cols, err := cache.Columns(ctx, d, table)
		if err != nil {
			return nil, err
		}
		var present []string
		for _, c := range cfg.columns {
			if cols.Has(c) {
				present = append(present, c)
			}
		}
		allowed := slices.Contains(cfg.allow, table)
		switch {
		case len(present) == 0 && allowed:
		case len(present) == 0:
			result.Errors = append(result.Errors, &AuditFinding{
				Table:    table,
				Message:  "no tenant column, reads are not scoped",
				Unscoped: true,
			})
		case allowed:
			result.Warnings = append(result.Warnings, &AuditFinding{
				Table:   table,
				Column:  present[0],
				Message: "allow-listed as unscoped but has a tenant column",
			})
		case len(present) > 1:
			result.Warnings = append(result.Warnings, &AuditFinding{
				Table:   table,
				Column:  present[0],
				Message: fmt.Sprintf("several tenant columns (%s), scoping uses %s", strings.Join(present, ", "), present[0]),
			})
		}
	}
	return result, nil
}
