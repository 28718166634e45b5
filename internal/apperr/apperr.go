package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	PermissionDenied       Kind = "permission_denied"
	DeviceUnavailable      Kind = "device_unavailable"
	Unavailable            Kind = "unavailable"
	MixerUninitialized     Kind = "mixer_uninitialized"
	SessionActive          Kind = "session_active"
	NotRecording           Kind = "not_recording"
	InvalidInput           Kind = "invalid_input"
	AuthenticationRequired Kind = "authentication_required"
	AccessDenied           Kind = "access_denied"
	ServiceNotFound        Kind = "service_not_found"
	PayloadTooLarge        Kind = "payload_too_large"
	RateLimited            Kind = "rate_limited"
	ServerError            Kind = "server_error"
	ServiceUnavailable     Kind = "service_unavailable"
	NetworkError           Kind = "network_error"
	TimeoutError           Kind = "timeout_error"
	StorageError           Kind = "storage_error"
	UnknownError           Kind = "unknown_error"
)

// Retryable reports whether a transcription attempt failing with this kind
// may be repeated.
func (k Kind) Retryable() bool {
	switch k {
	case RateLimited, ServerError, ServiceUnavailable, NetworkError, TimeoutError:
		return true
	}
	return false
}

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Message string
	// Status is the HTTP status that produced the error, 0 otherwise.
	Status int
	// Attempts is the number of requests made before the error surfaced.
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, apperr.New(k, "")) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, message string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or UnknownError.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return UnknownError
}

// Message returns the human-readable message of a classified error, or
// err.Error() for anything else.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether err is classified with a retryable kind.
func IsRetryable(err error) bool {
	return err != nil && KindOf(err).Retryable()
}
