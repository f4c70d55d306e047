// Package mock provides test doubles for the live package interfaces.
//
// Use Provider to verify Connect calls and hand out controlled sessions.
// Use Session to script the remote side: Open, Message, Fail and Finish push
// events onto the session's stream, and SentFrames exposes what was sent.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, cfg)
//	sess.Open()
//	sess.Message(live.Message{InputTranscription: "hello"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/pranimitra/pkg/audio"
	"github.com/MrWong99/pranimitra/pkg/provider/live"
)

var (
	_ live.Provider = (*Provider)(nil)
	_ live.Session  = (*Session)(nil)
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Cfg is the SessionConfig passed to Connect.
	Cfg live.SessionConfig
}

// Provider is a mock implementation of live.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by Connect. If nil, Connect returns a new Session.
	Session *Session

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// Block, if non-nil, makes Connect wait until it is closed or the
	// context is done. A done context makes Connect return ctx.Err().
	Block chan struct{}

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Session, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig) (live.Session, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Cfg: cfg})
	block := p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session == nil {
		p.Session = NewSession()
	}
	return p.Session, nil
}

// Calls returns a copy of the recorded Connect calls.
func (p *Provider) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ConnectCall(nil), p.ConnectCalls...)
}

// Session is a mock implementation of live.Session.
type Session struct {
	mu sync.Mutex

	// SendAudioErr, if non-nil, is returned from SendAudio.
	SendAudioErr error

	// CloseErr, if non-nil, is returned from Close.
	CloseErr error

	// SentFrames records every frame accepted by SendAudio.
	SentFrames []audio.Frame

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	events   chan live.Event
	finished bool
}

// NewSession creates a session with a buffered event stream.
func NewSession() *Session {
	return &Session{events: make(chan live.Event, 256)}
}

// SendAudio implements live.Session.
func (s *Session) SendAudio(frame audio.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendAudioErr != nil {
		return s.SendAudioErr
	}
	if s.finished {
		return live.ErrClosed
	}
	s.SentFrames = append(s.SentFrames, frame)
	return nil
}

// Events implements live.Session.
func (s *Session) Events() <-chan live.Event { return s.events }

// Close implements live.Session. The first Close ends the event stream with
// an EventClose.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CloseCallCount++
	err := s.CloseErr
	s.mu.Unlock()
	s.Finish(nil)
	return err
}

// Emit pushes ev onto the event stream. Events after Finish are dropped.
func (s *Session) Emit(ev live.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.events <- ev
}

// Open emits an EventOpen.
func (s *Session) Open() { s.Emit(live.Event{Kind: live.EventOpen}) }

// Message emits an EventMessage carrying m.
func (s *Session) Message(m live.Message) {
	s.Emit(live.Event{Kind: live.EventMessage, Message: &m})
}

// Fail emits an EventError carrying err.
func (s *Session) Fail(err error) {
	s.Emit(live.Event{Kind: live.EventError, Err: err})
}

// Finish emits the final EventClose and closes the stream. Finish is
// idempotent.
func (s *Session) Finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.finished = true
	s.events <- live.Event{Kind: live.EventClose, Err: err}
	close(s.events)
}

// Frames returns a copy of the frames accepted so far.
func (s *Session) Frames() []audio.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audio.Frame(nil), s.SentFrames...)
}

// Closes returns the number of Close calls.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}
