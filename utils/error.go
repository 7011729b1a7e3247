package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrorKind classifies failures the way callers branch on them.
type ErrorKind string

const (
	ErrorKindNotFound        = ErrorKind("NotFound")
	ErrorKindAccessDenied    = ErrorKind("AccessDenied")
	ErrorKindValidation      = ErrorKind("ValidationError")
	ErrorKindUpstreamFailure = ErrorKind("UpstreamFailure")
)

type KindError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *KindError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *KindError) Unwrap() error {
	// NotFound stays compatible with the old sentinel check.
	if e.Err == nil && e.Kind == ErrorKindNotFound {
		return ErrorRecordNotFound
	}
	return e.Err
}

func NotFoundError(format string, args ...any) error {
	return &KindError{Kind: ErrorKindNotFound, Message: fmt.Sprintf(format, args...)}
}

func AccessDeniedError(format string, args ...any) error {
	return &KindError{Kind: ErrorKindAccessDenied, Message: fmt.Sprintf(format, args...)}
}

func ValidationError(err error, format string, args ...any) error {
	return &KindError{Kind: ErrorKindValidation, Message: fmt.Sprintf(format, args...), Err: err}
}

func UpstreamError(err error, format string, args ...any) error {
	return &KindError{Kind: ErrorKindUpstreamFailure, Message: fmt.Sprintf(format, args...), Err: err}
}

func kindOf(err error) (ErrorKind, bool) {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind, true
	}
	return "", false
}

func IsNotFound(err error) bool {
	if errors.Is(err, ErrorRecordNotFound) {
		return true
	}
	k, ok := kindOf(err)
	return ok && k == ErrorKindNotFound
}

func IsAccessDenied(err error) bool {
	k, ok := kindOf(err)
	return ok && k == ErrorKindAccessDenied
}

func IsValidation(err error) bool {
	k, ok := kindOf(err)
	return ok && k == ErrorKindValidation
}

func IsUpstreamFailure(err error) bool {
	k, ok := kindOf(err)
	return ok && k == ErrorKindUpstreamFailure
}
