// Package transcript assembles the turn-by-turn transcript of a call from the
// partial transcription deltas delivered by the live session.
//
// The live service streams both sides of the conversation as small text
// fragments. An [Assembler] accumulates them per speaker until the service
// signals turn completion, then finalizes the turn into [Entry] values:
//
//	a.Add(transcript.Fragment{Speaker: transcript.User, Text: "he"})
//	a.Add(transcript.Fragment{Speaker: transcript.User, Text: "llo"})
//	a.Add(transcript.Fragment{Speaker: transcript.Assistant, Text: "hi"})
//	entries := a.CompleteTurn() // [{user hello} {assistant hi}]
package transcript

import (
	"strings"
	"time"
)

// Speaker identifies one side of the conversation.
type Speaker string

const (
	// User is the caller speaking into the microphone.
	User Speaker = "user"

	// Assistant is the voice agent.
	Assistant Speaker = "assistant"
)

// Fragment is a partial transcription delta of the open turn.
type Fragment struct {
	Speaker Speaker
	Text    string
}

// Entry is one finalized utterance.
type Entry struct {
	Speaker Speaker
	Text    string

	// Timestamp is when the turn was completed.
	Timestamp time.Time
}

// Pending holds the in-progress text of the open turn.
type Pending struct {
	User      string
	Assistant string
}

// Option configures an [Assembler].
type Option func(*Assembler)

// WithUserTurn registers fn to receive the trimmed user text of every
// completed turn in which the user said something. fn runs synchronously
// inside [Assembler.CompleteTurn].
func WithUserTurn(fn func(text string)) Option {
	return func(a *Assembler) {
		a.onUserTurn = fn
	}
}

// WithClock overrides the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) {
		a.now = now
	}
}

// Assembler turns fragments into finalized transcript entries.
//
// Assembler is not safe for concurrent use; it is owned by a single call's
// event loop.
type Assembler struct {
	user      strings.Builder
	assistant strings.Builder
	entries   []Entry

	onUserTurn func(string)
	now        func() time.Time
}

// New creates an empty Assembler.
func New(opts ...Option) *Assembler {
	a := &Assembler{now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Add appends f's text to the open turn of its speaker. Fragments of an
// unknown speaker are ignored.
func (a *Assembler) Add(f Fragment) {
	switch f.Speaker {
	case User:
		a.user.WriteString(f.Text)
	case Assistant:
		a.assistant.WriteString(f.Text)
	}
}

// CompleteTurn closes the open turn. Each speaker's accumulated text is
// trimmed and, if non-empty, appended to the transcript, user first. Both
// accumulators are cleared. The entries added by this turn are returned.
func (a *Assembler) CompleteTurn() []Entry {
	userText := strings.TrimSpace(a.user.String())
	assistantText := strings.TrimSpace(a.assistant.String())
	a.user.Reset()
	a.assistant.Reset()

	var added []Entry
	ts := a.now()
	if userText != "" {
		added = append(added, Entry{Speaker: User, Text: userText, Timestamp: ts})
	}
	if assistantText != "" {
		added = append(added, Entry{Speaker: Assistant, Text: assistantText, Timestamp: ts})
	}
	a.entries = append(a.entries, added...)

	if userText != "" && a.onUserTurn != nil {
		a.onUserTurn(userText)
	}
	return added
}

// Pending returns the untrimmed text accumulated for the open turn.
func (a *Assembler) Pending() Pending {
	return Pending{User: a.user.String(), Assistant: a.assistant.String()}
}

// Transcript returns a copy of all finalized entries in order.
func (a *Assembler) Transcript() []Entry {
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

