package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrInactiveStudent  = errors.New("student is inactive")
	ErrWrongSection     = errors.New("student is not enrolled in section")
	ErrDuplicateRecord  = errors.New("record already exists")
	ErrExamNotActive    = errors.New("exam is not active")
	ErrNoActiveSession  = errors.New("no active operator session")
	ErrInvalidFileType  = errors.New("invalid file type")
	ErrFileTooLarge     = errors.New("file exceeds size limit")
	ErrEmptyFile        = errors.New("file contains no data rows")
	ErrCacheUnavailable = errors.New("offline cache unavailable")
)

type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s",
		e.Field, e.Value, e.Message)
}

// TransientError marks a connectivity-class failure: timeouts, unreachable
// backends, rate limiting. Transient failures may be retried or queued.
type TransientError struct {
	Err     error
	Message string
}

func (e TransientError) Error() string {
	return fmt.Sprintf("transient error: %s - %s", e.Message, e.Err.Error())
}

func (e TransientError) Unwrap() error {
	return e.Err
}

func NewTransientError(err error, message string) error {
	return TransientError{
		Err:     err,
		Message: message,
	}
}

// RejectedError marks a definite rejection: permission denied, malformed
// payload, constraint violation. Rejected writes are never retried or queued.
type RejectedError struct {
	Err     error
	Message string
}

func (e RejectedError) Error() string {
	return fmt.Sprintf("rejected: %s - %s", e.Message, e.Err.Error())
}

func (e RejectedError) Unwrap() error {
	return e.Err
}

func NewRejectedError(err error, message string) error {
	return RejectedError{
		Err:     err,
		Message: message,
	}
}

func IsTransient(err error) bool {
	var te TransientError
	return errors.As(err, &te)
}

func IsRejected(err error) bool {
	var re RejectedError
	return errors.As(err, &re)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateRecord)
}
