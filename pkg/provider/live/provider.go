// Package live defines the interface to a remote conversational endpoint
// that speaks audio in both directions over a single duplex connection.
//
// A [Provider] opens a [Session]. The session accepts encoded microphone
// frames through a non-blocking [Session.SendAudio] and reports everything
// the remote side does as a stream of [Event]s: an open acknowledgment,
// messages carrying transcription deltas, synthesized audio and turn
// boundaries, errors, and finally a close.
//
// Implementations:
//   - live/gemini: Gemini Live BidiGenerateContent over a raw WebSocket.
//   - live/genai: Gemini Live through the google.golang.org/genai SDK.
//   - live/openai: OpenAI Realtime over a raw WebSocket.
package live

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/pranimitra/pkg/audio"
)

var (
	// ErrClosed is returned by [Session.SendAudio] after the session closed.
	ErrClosed = errors.New("live: session closed")

	// ErrSendQueueFull is returned by [Session.SendAudio] when the outbound
	// queue has no room. The frame is dropped.
	ErrSendQueueFull = errors.New("live: send queue full")
)

// EventKind classifies an [Event].
type EventKind int

const (
	// EventOpen is emitted once when the remote side acknowledges the session
	// setup. Audio sent before this point may be ignored by the remote side.
	EventOpen EventKind = iota

	// EventMessage carries a [Message].
	EventMessage

	// EventError reports an asynchronous error raised by the remote side or
	// the transport.
	EventError

	// EventClose is the last event of every session.
	EventClose
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Message is the payload of an [EventMessage]. All fields are optional; a
// single message may carry several of them.
type Message struct {
	// InputTranscription is a delta of the user's recognized speech.
	InputTranscription string

	// OutputTranscription is a delta of the assistant's spoken text.
	OutputTranscription string

	// Audio holds inline synthesized audio payloads in arrival order, each
	// base64 text of 16-bit LE PCM at [audio.PlaybackSampleRate].
	Audio []string

	// TurnComplete marks the end of the current conversational exchange. It
	// is always delivered after every fragment of that turn.
	TurnComplete bool

	// Interrupted reports that the remote side stopped generating because the
	// user started speaking.
	Interrupted bool
}

// Event is one item of a session's event stream.
type Event struct {
	Kind    EventKind
	Message *Message // set for EventMessage
	Err     error    // set for EventError; optional for EventClose
}

// SessionConfig configures a new session.
type SessionConfig struct {
	// Model overrides the provider's default model when non-empty.
	Model string

	// Voice is the provider-specific prebuilt voice name.
	Voice string

	// Instructions is the system prompt.
	Instructions string

	// InputTranscription enables transcription of the user's speech.
	InputTranscription bool

	// OutputTranscription enables transcription of the synthesized speech.
	OutputTranscription bool
}

// Provider opens live sessions.
type Provider interface {
	// Connect dials the remote endpoint and sends the session setup. It
	// returns once the setup is on the wire; the open acknowledgment arrives
	// later as an [EventOpen].
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
}

// Session is one open duplex connection.
//
// SendAudio and Close are safe for concurrent use.
type Session interface {
	// SendAudio queues frame for delivery without blocking. Frames are
	// delivered in the order they were queued.
	SendAudio(frame audio.Frame) error

	// Events returns the event stream. The channel is closed after the
	// final [EventClose].
	Events() <-chan Event

	// Close terminates the session. Close is idempotent.
	Close() error
}
