package stageview

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("stageview: entity not found")

	// ErrAlreadyMapped is returned when a table already has an active
	// override in the table-name mapping registry.
	ErrAlreadyMapped = errors.New("stageview: table already mapped")

	// ErrPreviewMode is returned by operations that are not permitted while
	// a preview session is active.
	ErrPreviewMode = errors.New("stageview: operation not allowed in preview mode")
)

// NotFoundError represents an error when an entity is not found.
type NotFoundError struct {
	label string
	id    any // Optional: the ID that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("stageview: %s not found (id=%v)", e.label, e.id)
	}
	return fmt.Sprintf("stageview: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the entity label.
func (e *NotFoundError) Label() string {
	return e.label
}

// ID returns the ID that was searched for, if available.
func (e *NotFoundError) ID() any {
	return e.id
}

// NewNotFoundError returns a new NotFoundError for the given entity type.
func NewNotFoundError(label string) *NotFoundError {
	return &NotFoundError{label: label}
}

// NewNotFoundErrorWithID returns a new NotFoundError with the ID that was searched for.
func NewNotFoundErrorWithID(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// SchemaIntrospectionError is returned when the connection fails to describe
// the columns of a table. The failed lookup is never cached.
type SchemaIntrospectionError struct {
	Table string
	Err   error
}

// Error returns the error string.
func (e *SchemaIntrospectionError) Error() string {
	return fmt.Sprintf("stageview: describe table %q: %v", e.Table, e.Err)
}

// Unwrap returns the underlying error.
func (e *SchemaIntrospectionError) Unwrap() error {
	return e.Err
}

// NewSchemaIntrospectionError returns a new SchemaIntrospectionError.
func NewSchemaIntrospectionError(table string, err error) *SchemaIntrospectionError {
	return &SchemaIntrospectionError{Table: table, Err: err}
}

// IsSchemaIntrospectionError returns true if the error is a SchemaIntrospectionError.
func IsSchemaIntrospectionError(err error) bool {
	if err == nil {
		return false
	}
	var e *SchemaIntrospectionError
	return errors.As(err, &e)
}

// AlreadyMappedError is returned when an override is installed for a table
// that is already redirected. It signals that the session owning the first
// mapping never released it.
type AlreadyMappedError struct {
	Table     string // Table whose mapping was requested
	Current   string // Override that is currently installed
	Requested string // Override that was rejected
}

// Error returns the error string.
func (e *AlreadyMappedError) Error() string {
	return fmt.Sprintf("stageview: table %s already mapped to %s", e.Table, e.Current)
}

// Is reports whether the target error matches AlreadyMappedError.
func (e *AlreadyMappedError) Is(err error) bool {
	return err == ErrAlreadyMapped
}

// NewAlreadyMappedError returns a new AlreadyMappedError.
func NewAlreadyMappedError(table, current, requested string) *AlreadyMappedError {
	return &AlreadyMappedError{Table: table, Current: current, Requested: requested}
}

// IsAlreadyMapped returns true if the error is an AlreadyMappedError.
func IsAlreadyMapped(err error) bool {
	if err == nil {
		return false
	}
	var e *AlreadyMappedError
	return errors.As(err, &e) || errors.Is(err, ErrAlreadyMapped)
}

// UnscopedTableError is returned by a strict row-scope filter when a table has
// no tenant column and is not explicitly allowed to be read unscoped.
type UnscopedTableError struct {
	Table string
}

// Error returns the error string.
func (e *UnscopedTableError) Error() string {
	return fmt.Sprintf("stageview: table %q has no tenant column and is not allow-listed", e.Table)
}

// IsUnscopedTable returns true if the error is an UnscopedTableError.
func IsUnscopedTable(err error) bool {
	if err == nil {
		return false
	}
	var e *UnscopedTableError
	return errors.As(err, &e)
}

// PreviewModeError wraps ErrPreviewMode with the rejected operation.
type PreviewModeError struct {
	Op string
}

// Error returns the error string.
func (e *PreviewModeError) Error() string {
	return fmt.Sprintf("stageview: %s can't be submitted in preview mode", e.Op)
}

// Is reports whether the target error matches PreviewModeError.
func (e *PreviewModeError) Is(err error) bool {
	return err == ErrPreviewMode
}

// IsPreviewMode returns true if the error is a PreviewModeError.
func IsPreviewMode(err error) bool {
	if err == nil {
		return false
	}
	var e *PreviewModeError
	return errors.As(err, &e) || errors.Is(err, ErrPreviewMode)
}

// QueryError wraps a query error with additional context.
type QueryError struct {
	Entity string // Table or entity being queried
	Op     string // Operation (e.g., "select", "count")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("stageview: querying %s (%s): %v", e.Entity, e.Op, e.Err)
	}
	return fmt.Sprintf("stageview: querying %s: %v", e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError returns a new QueryError.
func NewQueryError(entity, op string, err error) *QueryError {
	return &QueryError{Entity: entity, Op: op, Err: err}
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}
