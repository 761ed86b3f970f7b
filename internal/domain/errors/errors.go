// Package errors holds the error taxonomy shared by the survey core and its
// HTTP handlers.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrPermission     = errors.New("you do not have permission to perform this action")
	ErrEmptyVoting    = errors.New("no pages found for this voting")
	ErrScopeViolation = errors.New("question does not belong to the specified voting")
)

// FieldError is one rejected field, addressed by its json path
// (e.g. pages[0].questions[1].title).
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports a malformed payload.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Field == "" {
			parts = append(parts, f.Message)
			continue
		}
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Invalid builds a ValidationError for a single field.
func Invalid(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// StorageError is a failed store operation. It is fatal to the request.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// Storage wraps err as a StorageError unless it already belongs to the
// taxonomy, in which case it is returned unchanged.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	var se *StorageError
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPermission),
		errors.Is(err, ErrEmptyVoting), errors.Is(err, ErrScopeViolation),
		errors.As(err, &ve), errors.As(err, &se):
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// ScopeError is an ErrScopeViolation with a specific message.
type ScopeError struct {
	Msg string
}

func (e *ScopeError) Error() string { return e.Msg }

func (e *ScopeError) Is(target error) bool { return target == ErrScopeViolation }

// OutOfScope builds a ScopeError.
func OutOfScope(format string, args ...interface{}) error {
	return &ScopeError{Msg: fmt.Sprintf(format, args...)}
}
