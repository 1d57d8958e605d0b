package ledger

import (
	"errors"
	"fmt"
)

// ErrorClass classifies an error for retry and reporting decisions.
type ErrorClass string

const (
	// ErrorClassConflict indicates an optimistic concurrency conflict detected
	// at commit. The whole unit of work may be retried.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassExhausted indicates that a unit of work kept conflicting until
	// the retry budget ran out. Callers may re-queue at a higher level.
	ErrorClassExhausted ErrorClass = "exhausted"

	// ErrorClassNotFound indicates that a lookup matched no document.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassValidation indicates invalid caller input.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassConnectivity indicates the ledger could not be reached or
	// the session was lost. Never retried.
	ErrorClassConnectivity ErrorClass = "connectivity"

	// ErrorClassStatement indicates a malformed or unsupported statement, or
	// one that references a missing table.
	ErrorClassStatement ErrorClass = "statement"
)

// LedgerError is a classified error with context.
// nolint:revive // LedgerError is intentionally named to distinguish from driver errors
type LedgerError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Table is the ledger table involved, if any.
	Table string `json:"table,omitempty"`

	// DocumentID is the document involved, if any.
	DocumentID string `json:"document_id,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *LedgerError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Table != "" {
		msg += fmt.Sprintf(" (table=%s", e.Table)
		if e.DocumentID != "" {
			msg += fmt.Sprintf(", document=%s", e.DocumentID)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *LedgerError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

func newError(class ErrorClass, code, message string, err error) *LedgerError {
	return &LedgerError{
		Class:   class,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewConflictError creates a new OCC conflict error.
func NewConflictError(message string, err error) *LedgerError {
	return newError(ErrorClassConflict, ErrCodeOCCConflict, message, err)
}

// NewExhaustedError wraps the final conflict of a unit of work that ran out
// of attempts.
func NewExhaustedError(attempts int, err error) *LedgerError {
	return newError(ErrorClassExhausted, ErrCodeRetriesExhausted,
		fmt.Sprintf("transaction conflicted on all %d attempts", attempts), err).
		WithDetail("attempts", attempts)
}

// NewNotFoundError creates a new not-found error.
func NewNotFoundError(message string, err error) *LedgerError {
	return newError(ErrorClassNotFound, ErrCodeNotFound, message, err)
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, err error) *LedgerError {
	return newError(ErrorClassValidation, ErrCodeValidation, message, err)
}

// NewConnectivityError creates a new connectivity error.
func NewConnectivityError(message string, err error) *LedgerError {
	return newError(ErrorClassConnectivity, ErrCodeUnavailable, message, err)
}

// NewStatementError creates a new statement error.
func NewStatementError(message string, err error) *LedgerError {
	return newError(ErrorClassStatement, ErrCodeInvalidStatement, message, err)
}

// WithTable adds table context to an error.
func (e *LedgerError) WithTable(table string) *LedgerError {
	e.Table = table
	return e
}

// WithDocumentID adds document context to an error.
func (e *LedgerError) WithDocumentID(id string) *LedgerError {
	e.DocumentID = id
	return e
}

// WithOperation adds operation context to an error.
func (e *LedgerError) WithOperation(operation string) *LedgerError {
	e.Operation = operation
	return e
}

// WithCode overrides the error code.
func (e *LedgerError) WithCode(code string) *LedgerError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *LedgerError) WithDetail(key string, value interface{}) *LedgerError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func classOf(err error) (ErrorClass, bool) {
	var e *LedgerError
	if errors.As(err, &e) {
		return e.Class, true
	}
	return "", false
}

// IsConflict returns true if the error is an OCC conflict.
func IsConflict(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassConflict
}

// IsExhausted returns true if the error reports exhausted retries.
func IsExhausted(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassExhausted
}

// IsNotFound returns true if the error is classified as not found.
func IsNotFound(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassNotFound
}

// IsValidation returns true if the error is classified as validation.
func IsValidation(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassValidation
}

// IsConnectivity returns true if the error is classified as connectivity.
func IsConnectivity(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassConnectivity
}

// IsStatement returns true if the error is classified as a statement error.
func IsStatement(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassStatement
}

// HasCode reports whether err is a LedgerError with the given code.
func HasCode(err error, code string) bool {
	var e *LedgerError
	return errors.As(err, &e) && e.Code == code
}

// IsRetryable returns true if the unit of work that produced err may be
// re-executed. Only commit conflicts are retryable.
func IsRetryable(err error) bool {
	return IsConflict(err)
}

// Common error codes.
const (
	ErrCodeOCCConflict        = "OCC_CONFLICT"
	ErrCodeRetriesExhausted   = "RETRIES_EXHAUSTED"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeUnavailable        = "UNAVAILABLE"
	ErrCodeInvalidStatement   = "INVALID_STATEMENT"
	ErrCodeInvalidParameter   = "INVALID_PARAMETER"
	ErrCodeTableNotFound      = "TABLE_NOT_FOUND"
	ErrCodeTableExists        = "TABLE_EXISTS"
	ErrCodeTransactionClosed  = "TRANSACTION_CLOSED"
	ErrCodeInconsistentUpdate = "INCONSISTENT_UPDATE"
)
