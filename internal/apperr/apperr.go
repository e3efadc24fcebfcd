// Package apperr defines the error kinds shared by the appliance's devices and service adapters.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a failure for the orchestrator.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindDevice
	KindService
	KindEmptyResult
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindDevice:
		return "DeviceError"
	case KindService:
		return "ServiceError"
	case KindEmptyResult:
		return "EmptyResultError"
	default:
		return "UnknownError"
	}
}

// Cause tells service failures apart: no reply in time, no reply at all, or a well-formed error reply.
type Cause int

const (
	CauseNone Cause = iota
	CauseTimeout
	CauseNetwork
	CauseResponse
)

func (c Cause) String() string {
	switch c {
	case CauseTimeout:
		return "timeout"
	case CauseNetwork:
		return "network"
	case CauseResponse:
		return "response"
	default:
		return "none"
	}
}

// Error is a classified failure.
type Error struct {
	Kind       Kind
	Op         string // component or call that failed, e.g. "stt.openai"
	Cause      Cause
	StatusCode int // HTTP status for CauseResponse, 0 otherwise
	Err        error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != CauseNone {
		msg += " (" + e.Cause.String()
		if e.StatusCode != 0 {
			msg += fmt.Sprintf(" %d", e.StatusCode)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Configuration returns a fatal configuration error.
func Configuration(op string, err error) error {
	return &Error{Kind: KindConfiguration, Op: op, Err: err}
}

// Device returns an audio or GPIO device error.
func Device(op string, err error) error {
	return &Error{Kind: KindDevice, Op: op, Err: err}
}

// Empty reports that a stage produced no usable result.
func Empty(op string, err error) error {
	return &Error{Kind: KindEmptyResult, Op: op, Err: err}
}

// Response returns a service error for a well-formed error reply.
func Response(op string, status int, err error) error {
	return &Error{Kind: KindService, Op: op, Cause: CauseResponse, StatusCode: status, Err: err}
}

// Service classifies a transport-level failure of an outbound call as a timeout or network service error.
// Errors that are already classified are returned unchanged.
func Service(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	cause := CauseNetwork
	if IsTimeoutErr(err) {
		cause = CauseTimeout
	}
	return &Error{Kind: KindService, Op: op, Cause: cause, Err: err}
}

// FromHTTPStatus builds a response error from a non-2xx HTTP status and body text.
func FromHTTPStatus(op string, status int, body string) error {
	text := http.StatusText(status)
	if body != "" {
		text = body
	}
	return Response(op, status, errors.New(text))
}

// IsTimeoutErr reports whether err is a deadline or net timeout.
func IsTimeoutErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// CauseOf returns the service cause of err, or CauseNone.
func CauseOf(err error) Cause {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Cause
	}
	return CauseNone
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether a failed call is worth repeating: timeouts, network errors,
// rate limiting and server-side errors.
func Retryable(err error) bool {
	var ae *Error
	if !errors.As(err, &ae) || ae.Kind != KindService {
		return false
	}
	switch ae.Cause {
	case CauseTimeout, CauseNetwork:
		return true
	case CauseResponse:
		return ae.StatusCode == http.StatusTooManyRequests || ae.StatusCode >= 500
	}
	return false
}
