package core

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrWriteConflict is returned by stores when a concurrent transaction modified the record being written.
// It is the only retryable error: callers may run the operation again with a fresh read.
var ErrWriteConflict = errors.New("concurrent modification, please retry")

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

// NewFieldError is a shortcut for a ValidationError on a single field.
func NewFieldError(field, msg string) error {
	return &ValidationError{Err: errors.New(msg), Fields: []FieldError{{Field: field, Error: msg}}}
}

func (err ValidationError) Error() string {
	if len(err.Fields) == 0 {
		if err.Err == nil {
			return ""
		}
		return err.Err.Error()
	}
	msgs := make([]string, 0, len(err.Fields))
	for _, f := range err.Fields {
		msgs = append(msgs, f.Field+": "+f.Error)
	}
	return strings.Join(msgs, "; ")
}

type NotFoundError struct {
	Resource string
	ID       string
}

func NewNotFoundError(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

func (err NotFoundError) Error() string {
	if err.ID == "" {
		return err.Resource + " not found"
	}
	return fmt.Sprintf("%s %q not found", err.Resource, err.ID)
}

type ConflictError struct {
	msg string
}

func NewConflictError(format string, args ...interface{}) error {
	return &ConflictError{msg: fmt.Sprintf(format, args...)}
}

func (err ConflictError) Error() string { return err.msg }

type InvalidStateError struct {
	msg string
}

func NewInvalidStateError(format string, args ...interface{}) error {
	return &InvalidStateError{msg: fmt.Sprintf(format, args...)}
}

func (err InvalidStateError) Error() string { return err.msg }

type AuthorizationError struct {
	msg string
}

func NewAuthorizationError(msg string) error {
	return &AuthorizationError{msg: msg}
}

func (err AuthorizationError) Error() string { return err.msg }

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

func IsInvalidState(err error) bool {
	var target *InvalidStateError
	return errors.As(err, &target)
}

func IsAuthorization(err error) bool {
	var target *AuthorizationError
	return errors.As(err, &target)
}

func IsWriteConflict(err error) bool {
	return errors.Is(err, ErrWriteConflict)
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
