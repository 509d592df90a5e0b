package app

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidURL is returned by PerformAction when a relative URL cannot be
// resolved because the caller has no module identity.
var ErrInvalidURL = errors.New("invalid url")

// ErrNextCalledTwice is returned when a middleware invokes next more than
// once.
var ErrNextCalledTwice = errors.New("next() called multiple times")

// ErrorKind classifies a failed action.
type ErrorKind string

const (
	// KindResolution means the target could not be resolved; nothing was
	// dispatched.
	KindResolution ErrorKind = "resolution"

	// KindTransport means the callee failed at the transport level: a
	// non-200 status or a pipeline error.
	KindTransport ErrorKind = "transport"

	// KindDomain means the callee answered 200 with an envelope whose code
	// is not zero.
	KindDomain ErrorKind = "domain"
)

// ActionError is the rejection value of a call. It marshals to the
// response envelope shape {code, message, data}.
type ActionError struct {
	Kind    ErrorKind `json:"-"`
	Code    int       `json:"code"`
	Message string    `json:"message,omitempty"`
	Data    any       `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *ActionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s error: code %d", e.Kind, e.Code)
	}
	return fmt.Sprintf("%s error: code %d: %s", e.Kind, e.Code, e.Message)
}

// Envelope returns the error as a response envelope.
func (e *ActionError) Envelope() Envelope {
	return Envelope{Code: e.Code, Message: e.Message, Data: e.Data}
}

// Errorf creates a transport-kind error carrying an HTTP status code.
// Handlers return it to abort the pipeline with that status.
func Errorf(code int, format string, args ...any) *ActionError {
	return &ActionError{Kind: KindTransport, Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsActionError normalizes err into an ActionError. Errors that are not
// ActionErrors become transport errors with code 500, except
// ErrInvalidURL which becomes a resolution error with code 400.
// Returns nil for a nil error.
func AsActionError(err error) *ActionError {
	if err == nil {
		return nil
	}
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, ErrInvalidURL) {
		return &ActionError{Kind: KindResolution, Code: http.StatusBadRequest, Message: err.Error()}
	}
	return &ActionError{Kind: KindTransport, Code: http.StatusInternalServerError, Message: err.Error()}
}

// IsDomainError reports whether err is a domain failure from an envelope.
func IsDomainError(err error) bool {
	var ae *ActionError
	return errors.As(err, &ae) && ae.Kind == KindDomain
}

// IsTransportError reports whether err is a transport-level failure.
func IsTransportError(err error) bool {
	var ae *ActionError
	return errors.As(err, &ae) && ae.Kind == KindTransport
}

// IsResolutionError reports whether err means the call was never
// dispatched because its target could not be resolved.
func IsResolutionError(err error) bool {
	if errors.Is(err, ErrInvalidURL) {
		return true
	}
	var ae *ActionError
	return errors.As(err, &ae) && ae.Kind == KindResolution
}

// errorCode extracts the code carried by err, or 0 when it carries none.
func errorCode(err error) int {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Code
	}
	if errors.Is(err, ErrInvalidURL) {
		return http.StatusBadRequest
	}
	return 0
}
