// Package errs holds the user-facing error taxonomy shared by the capture and
// solve controllers. Presentation layers turn a Kind into a localized message.
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	InvalidFileType  Kind = "INVALID_FILE_TYPE"
	FileTooLarge     Kind = "FILE_TOO_LARGE"
	NoInput          Kind = "NO_INPUT"
	PermissionDenied Kind = "PERMISSION_DENIED"
	DeviceNotFound   Kind = "DEVICE_NOT_FOUND"
	CameraUnknown    Kind = "CAMERA_UNKNOWN"
	Unauthorized     Kind = "UNAUTHORIZED"
	RateLimited      Kind = "RATE_LIMITED"
	ModelLoading     Kind = "MODEL_LOADING"
	EmptyResponse    Kind = "EMPTY_RESPONSE"
	TransportUnknown Kind = "TRANSPORT_UNKNOWN"
	SolveInFlight    Kind = "SOLVE_IN_FLIGHT"
)

// Error is a classified failure. Detail is the free-text part shown for the
// *_UNKNOWN kinds.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func New(kind Kind) *Error { return &Error{Kind: kind} }

// Wrap classifies err under kind and keeps its message as the detail.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return &Error{Kind: kind}
	}
	return &Error{Kind: kind, Detail: err.Error(), Err: err}
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, errs.ErrNoInput)
// works regardless of detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidFileType = New(InvalidFileType)
	ErrFileTooLarge    = New(FileTooLarge)
	ErrNoInput         = New(NoInput)
	ErrSolveInFlight   = New(SolveInFlight)
)

// KindOf returns the kind of the first *Error in err's chain, or
// TransportUnknown when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return TransportUnknown
}
