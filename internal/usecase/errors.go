package usecase

import (
	"context"
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrorConfiguration   ErrorCode = "CONFIGURATION_ERROR"
	ErrorExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrorPersistence     ErrorCode = "PERSISTENCE_ERROR"
	ErrorInternal        ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// HasCode reports whether err carries a *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	var ucErr *Error
	return errors.As(err, &ucErr) && ucErr.Code == code
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

// externalError classifies a completion failure as timed out, rate limited or
// a plain upstream error.
func externalError(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(ErrorExternalService, op+"_timeout", err)
	}
	if status, ok := upstreamStatusCode(err); ok && status == 429 {
		return newError(ErrorExternalService, op+"_rate_limited", err)
	}
	return newError(ErrorExternalService, op+"_error", err)
}
