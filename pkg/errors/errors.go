package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType categorizes domain errors
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeIllegalState ErrorType = "illegal_state"
	ErrorTypeProcess      ErrorType = "process"
	ErrorTypeIO           ErrorType = "io"
	ErrorTypeCancelled    ErrorType = "cancelled"
	ErrorTypeInternal     ErrorType = "internal"
)

// DomainError is an error with a type, an optional cause and key/value context
type DomainError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

func newDomainError(errorType ErrorType, message string, cause error) *DomainError {
	return &DomainError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

func (e *DomainError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Type))
	sb.WriteString(": ")
	sb.WriteString(e.Message)

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%v", k, e.Context[k])
		}
		sb.WriteString("]")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value pair and returns the same error for chaining
func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func NewValidationError(message string, cause error) *DomainError {
	return newDomainError(ErrorTypeValidation, message, cause)
}

func NewNotFoundError(message string, cause error) *DomainError {
	return newDomainError(ErrorTypeNotFound, message, cause)
}

func NewConflictError(message string, cause error) *DomainError {
	return newDomainError(ErrorTypeConflict, message, cause)
}

func NewIllegalStateError(message string, cause error) *DomainError {
	return newDomainError(ErrorTypeIllegalState, message, cause)
}

func NewProcessError(message string, cause error) *DomainError {
	return newDomainError(ErrorTypeProcess, message, cause)
}

func NewIOError(message string, cause error) *DomainError {
	return newDomainError(ErrorTypeIO, message, cause)
}

func NewCancelledError(message string, cause error) *DomainError {
	return newDomainError(ErrorTypeCancelled, message, cause)
}

func NewInternalError(message string, cause error) *DomainError {
	return newDomainError(ErrorTypeInternal, message, cause)
}

// IsType reports whether any error in err's chain is a DomainError of the given type
func IsType(err error, errorType ErrorType) bool {
	for err != nil {
		var domainErr *DomainError
		if !stderrors.As(err, &domainErr) {
			return false
		}
		if domainErr.Type == errorType {
			return true
		}
		err = domainErr.Cause
	}
	return false
}

func IsValidationError(err error) bool   { return IsType(err, ErrorTypeValidation) }
func IsNotFoundError(err error) bool     { return IsType(err, ErrorTypeNotFound) }
func IsConflictError(err error) bool     { return IsType(err, ErrorTypeConflict) }
func IsIllegalStateError(err error) bool { return IsType(err, ErrorTypeIllegalState) }
func IsProcessError(err error) bool      { return IsType(err, ErrorTypeProcess) }
func IsIOError(err error) bool           { return IsType(err, ErrorTypeIO) }
func IsCancelledError(err error) bool    { return IsType(err, ErrorTypeCancelled) }
func IsInternalError(err error) bool     { return IsType(err, ErrorTypeInternal) }

// Is and As are re-exported so callers need only one errors import
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// ErrorCollection accumulates errors from batch operations
type ErrorCollection struct {
	Errors []error
}

func NewErrorCollection() *ErrorCollection {
	return &ErrorCollection{}
}

func (c *ErrorCollection) Add(err error) {
	if err != nil {
		c.Errors = append(c.Errors, err)
	}
}

func (c *ErrorCollection) HasErrors() bool {
	return len(c.Errors) > 0
}

func (c *ErrorCollection) Error() string {
	msgs := make([]string, 0, len(c.Errors))
	for _, err := range c.Errors {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ToError returns nil for an empty collection, the single error for one, or the collection
func (c *ErrorCollection) ToError() error {
	switch len(c.Errors) {
	case 0:
		return nil
	case 1:
		return c.Errors[0]
	default:
		return c
	}
}
