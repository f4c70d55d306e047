package call

import (
	"fmt"
	"time"

	"github.com/MrWong99/pranimitra/internal/transcript"
	"github.com/MrWong99/pranimitra/pkg/recording"
)

// State is the lifecycle state of a call.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateEnding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StatusEvent reports a state transition. Err is set on the final idle
// event of a failed call.
type StatusEvent struct {
	State State
	At    time.Time
	Err   error
}

// Result is delivered when a call ends normally.
type Result struct {
	// Transcript holds every finalized entry in order.
	Transcript []transcript.Entry

	// Recording is the merged call recording, or nil when recording was
	// disabled, captured nothing or could not be finalized.
	Recording *recording.Handle
}

// Update is published to transcript listeners after each session message.
type Update struct {
	CallID string

	// Pending is the in-progress text of the open turn.
	Pending transcript.Pending

	// Entries holds the entries finalized by this message, if any.
	Entries []transcript.Entry

	// Interrupted is set when the caller started speaking over the
	// assistant.
	Interrupted bool
}
