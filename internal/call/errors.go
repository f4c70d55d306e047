package call

import (
	"errors"
	"fmt"
)

var (
	// ErrCallInProgress is returned by [Manager.Start] while another call is
	// live.
	ErrCallInProgress = errors.New("call: a call is already in progress")

	// ErrEnded is returned by [Call.Ready] when the call was ended before it
	// became active.
	ErrEnded = errors.New("call: ended before becoming active")
)

// Kind classifies a call failure.
type Kind int

const (
	// KindPermissionDenied means microphone access was refused.
	KindPermissionDenied Kind = iota + 1

	// KindDeviceInitFailure means an audio device or context could not be
	// created.
	KindDeviceInitFailure

	// KindSessionOpenFailure means the live session could not be
	// established.
	KindSessionOpenFailure

	// KindSessionRuntime means the live session failed after the call became
	// active.
	KindSessionRuntime
)

// String returns the snake_case name used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindDeviceInitFailure:
		return "device_init_failure"
	case KindSessionOpenFailure:
		return "session_open_failure"
	case KindSessionRuntime:
		return "session_runtime"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// permissionMessage is shown when the microphone cannot be opened.
const permissionMessage = "Could not access microphone. Please allow microphone permissions and try again."

// Error is a call failure carrying a message suitable for the caller's UI.
type Error struct {
	Kind Kind

	// Message is a human readable explanation.
	Message string

	// Err is the underlying cause.
	Err error
}

func newError(kind Kind, err error) *Error {
	msg := permissionMessage
	if kind != KindPermissionDenied {
		msg = "An unexpected error occurred: " + err.Error()
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("call: %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }
