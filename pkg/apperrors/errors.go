package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUnsupportedType     = errors.New("unsupported datasource type")
	ErrRegistryClosed      = errors.New("connection registry closed")
	ErrUnknownHandle       = errors.New("unknown connection handle")
	ErrTableNotFound       = errors.New("table not found in schema")
	ErrNoRelationships     = errors.New("no relationships found for table")
	ErrMultipleStatements  = errors.New("multiple SQL statements are not allowed")
	ErrEmptyQuery          = errors.New("query is empty")
	ErrNoSQLInResponse     = errors.New("no SQL statement found in response")
	ErrLLMNotConfigured    = errors.New("language model is not configured")
	ErrDatasourceNotLoaded = errors.New("datasource is not connected")
)

// ConnectivityError means the database could not be reached or introspected.
// It is the only error the engine surfaces to callers.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connectivity error during %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// NewConnectivityError wraps err as a ConnectivityError for op.
func NewConnectivityError(op string, err error) *ConnectivityError {
	return &ConnectivityError{Op: op, Err: err}
}

// UnresolvedIdentifierError is advisory: it is turned into a warning.
type UnresolvedIdentifierError struct {
	Kind  string // "table" or "column"
	Name  string
	Table string // owning table for columns, empty for tables
}

func (e *UnresolvedIdentifierError) Error() string {
	if e.Kind == "column" && e.Table != "" {
		return fmt.Sprintf("column '%s' could not be resolved in table '%s'", e.Name, e.Table)
	}
	return fmt.Sprintf("%s '%s' could not be resolved in the schema", e.Kind, e.Name)
}

// ExecutionError is returned when a statement fails at the database.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// NormalizationError covers a single failed foreign-key or related-row lookup.
type NormalizationError struct {
	Table  string
	Column string
	Err    error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("lookup %s.%s failed: %v", e.Table, e.Column, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// IsConnectivity reports whether err is or wraps a ConnectivityError.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}
