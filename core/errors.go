package core

import "github.com/pkg/errors"

// Error kinds, as exposed to API clients.
const (
	KindNotFound         = "not_found"
	KindInvalidState     = "invalid_state"
	KindValidation       = "validation_error"
	KindPermissionDenied = "permission_denied"
	KindConflict         = "conflict"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// NotFoundError reports a referenced resource that does not exist.
type NotFoundError struct {
	Resource string
}

func NewNotFoundError(resource string) error {
	return &NotFoundError{Resource: resource}
}

func (err NotFoundError) Error() string {
	return err.Resource + " not found"
}

// InvalidStateError reports an operation that is illegal in the current state of a resource.
type InvalidStateError struct {
	Err error
}

func NewInvalidStateError(msg string) error {
	return &InvalidStateError{Err: errors.New(msg)}
}

func (err InvalidStateError) Error() string {
	return err.Err.Error()
}

type PermissionError struct {
	Err error
}

func NewPermissionError(msg string) error {
	return &PermissionError{Err: errors.New(msg)}
}

func (err PermissionError) Error() string {
	return err.Err.Error()
}

// ConflictError reports a uniqueness violation. Existing holds the row that already exists, if known.
type ConflictError struct {
	Err      error
	Existing interface{}
}

func NewConflictError(err error, existing interface{}) error {
	return &ConflictError{Err: err, Existing: existing}
}

func (err ConflictError) Error() string {
	if err.Err == nil {
		return "conflict"
	}
	return err.Err.Error()
}

// ErrorKind returns the machine-readable kind of err, or "" when err is unexpected.
func ErrorKind(err error) string {
	switch errors.Cause(err).(type) {
	case *NotFoundError:
		return KindNotFound
	case *InvalidStateError:
		return KindInvalidState
	case *ValidationError:
		return KindValidation
	case *PermissionError:
		return KindPermissionDenied
	case *ConflictError:
		return KindConflict
	default:
		return ""
	}
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	return ErrorKind(err) == KindConflict
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
