// Package openai implements the live.Provider interface for OpenAI's Realtime
// API.
//
// It establishes a bidirectional WebSocket connection to the OpenAI Realtime
// endpoint and exchanges JSON events according to the Realtime API protocol.
// The Realtime API expects 24 kHz PCM16 input, so 16 kHz capture frames are
// resampled before they are appended to the input audio buffer.
//
// Input transcriptions arrive asynchronously and often after response.done.
// The session holds the turn-complete signal until every committed input
// item has been transcribed, or until the transcript wait elapses, so a
// turn's user text always precedes its completion.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/pranimitra/pkg/audio"
	"github.com/MrWong99/pranimitra/pkg/provider/live"
)

var (
	_ live.Provider = (*Provider)(nil)
	_ live.Session  = (*session)(nil)
)

const (
	defaultModel   = "gpt-4o-realtime-preview"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"

	// realtimeRate is the PCM16 rate the Realtime API uses in both directions.
	realtimeRate = 24000
	eventBuffer  = 64

	defaultTranscriptWait = 2 * time.Second
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the OpenAI model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithTranscriptionModel sets the model used for input audio transcription.
func WithTranscriptionModel(model string) Option {
	return func(p *Provider) { p.transcriptionModel = model }
}

// WithTranscriptWait bounds how long response.done is held back while input
// transcriptions are outstanding. Default 2s.
func WithTranscriptWait(d time.Duration) Option {
	return func(p *Provider) { p.transcriptWait = d }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements live.Provider for OpenAI's Realtime API.
type Provider struct {
	apiKey             string
	model              string
	baseURL            string
	transcriptionModel string
	transcriptWait     time.Duration
}

// New creates a new OpenAI Realtime Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:             apiKey,
		model:              defaultModel,
		baseURL:            defaultBaseURL,
		transcriptionModel: "whisper-1",
		transcriptWait:     defaultTranscriptWait,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Connect establishes a new OpenAI Realtime session. The session.updated
// acknowledgment is reported as a live.EventOpen.
func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig) (live.Session, error) {
	model := p.model
	if cfg.Model != "" {
		model = cfg.Model
	}
	wsURL := fmt.Sprintf("%s?model=%s", p.baseURL, url.QueryEscape(model))

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + p.apiKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: dial: %w", err)
	}
	conn.SetReadLimit(16 << 20)

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:   conn,
		outbox: live.NewOutbox(live.DefaultOutboxSize),
		events: make(chan live.Event, eventBuffer),
		ctx:    sessCtx,
		cancel: sessCancel,

		awaitInput:     cfg.InputTranscription,
		transcriptWait: p.transcriptWait,
		uncommitted:    make(map[string]struct{}),
	}

	if err := sess.writeJSON(ctx, p.sessionUpdate(cfg)); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("openai: session update: %w", err)
	}

	go sess.receiveLoop()
	go sess.writeLoop()

	return sess, nil
}

func (p *Provider) sessionUpdate(cfg live.SessionConfig) sessionUpdateMessage {
	params := sessionParams{
		Modalities:        []string{"audio", "text"},
		Voice:             cfg.Voice,
		Instructions:      cfg.Instructions,
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
	}
	if cfg.InputTranscription {
		params.InputAudioTranscription = &transcriptionParams{Model: p.transcriptionModel}
	}
	return sessionUpdateMessage{Type: "session.update", Session: params}
}

// ── Protocol message types ─────────────────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Modalities              []string             `json:"modalities,omitempty"`
	Voice                   string               `json:"voice,omitempty"`
	Instructions            string               `json:"instructions,omitempty"`
	InputAudioFormat        string               `json:"input_audio_format"`
	OutputAudioFormat       string               `json:"output_audio_format"`
	InputAudioTranscription *transcriptionParams `json:"input_audio_transcription,omitempty"`
}

type transcriptionParams struct {
	Model string `json:"model"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64-encoded PCM16
}

// serverErrorDetail represents the nested error object in an OpenAI Realtime
// error event: {"type":"error","error":{"type":"...","code":"...","message":"..."}}.
type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type serverEvent struct {
	Type       string             `json:"type"`
	ItemID     string             `json:"item_id,omitempty"`
	Delta      string             `json:"delta,omitempty"`
	Transcript string             `json:"transcript,omitempty"`
	Error      *serverErrorDetail `json:"error,omitempty"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn   *websocket.Conn
	outbox *live.Outbox
	events chan live.Event

	mu     sync.Mutex
	closed bool
	opened bool

	ctx    context.Context
	cancel context.CancelFunc

	awaitInput     bool
	transcriptWait time.Duration

	// Owned by receiveLoop.
	uncommitted map[string]struct{} // committed input items without a transcript
	turnHeld    bool
}

type readResult struct {
	data []byte
	err  error
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("openai: marshal: %w", err)
	}
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// receiveLoop converts server events into live events. It owns the events
// channel and closes it after the final EventClose.
func (s *session) receiveLoop() {
	var closeErr error
	defer func() {
		s.outbox.Close()
		select {
		case s.events <- live.Event{Kind: live.EventClose, Err: closeErr}:
		default:
		}
		close(s.events)
	}()

	reads := make(chan readResult)
	go s.readLoop(reads)

	var held <-chan time.Time
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-held:
			held = nil
			slog.Debug("openai: input transcription overdue, completing turn", "items", len(s.uncommitted))
			clear(s.uncommitted)
			s.turnHeld = false
			if !s.emit(live.Event{Kind: live.EventMessage, Message: &live.Message{TurnComplete: true}}) {
				return
			}
		case r := <-reads:
			if r.err != nil {
				if s.ctx.Err() != nil {
					return
				}
				if status := websocket.CloseStatus(r.err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
					closeErr = fmt.Errorf("openai: read: %w", r.err)
					s.emit(live.Event{Kind: live.EventError, Err: closeErr})
				}
				return
			}

			var evt serverEvent
			if err := json.Unmarshal(r.data, &evt); err != nil {
				slog.Debug("openai: skipping malformed server event", "err", err)
				continue
			}
			if ev, ok := s.convert(&evt); ok && !s.emit(ev) {
				return
			}
			switch {
			case !s.turnHeld:
				held = nil
			case held == nil:
				held = time.After(s.transcriptWait)
			}
		}
	}
}

// readLoop feeds raw frames to receiveLoop until the first read error.
func (s *session) readLoop(out chan<- readResult) {
	for {
		_, data, err := s.conn.Read(s.ctx)
		select {
		case out <- readResult{data: data, err: err}:
		case <-s.ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// convert maps one Realtime server event onto a live event.
func (s *session) convert(evt *serverEvent) (live.Event, bool) {
	message := func(m live.Message) (live.Event, bool) {
		return live.Event{Kind: live.EventMessage, Message: &m}, true
	}

	switch evt.Type {
	case "session.updated":
		s.mu.Lock()
		first := !s.opened
		s.opened = true
		s.mu.Unlock()
		if first {
			return live.Event{Kind: live.EventOpen}, true
		}
	case "input_audio_buffer.committed":
		if s.awaitInput && evt.ItemID != "" {
			s.uncommitted[evt.ItemID] = struct{}{}
		}
	case "response.audio.delta":
		if evt.Delta != "" {
			return message(live.Message{Audio: []string{evt.Delta}})
		}
	case "response.audio_transcript.delta":
		if evt.Delta != "" {
			return message(live.Message{OutputTranscription: evt.Delta})
		}
	case "conversation.item.input_audio_transcription.completed",
		"conversation.item.input_audio_transcription.failed":
		delete(s.uncommitted, evt.ItemID)
		m := live.Message{InputTranscription: evt.Transcript}
		if s.turnHeld && len(s.uncommitted) == 0 {
			s.turnHeld = false
			m.TurnComplete = true
		}
		if m.InputTranscription != "" || m.TurnComplete {
			return message(m)
		}
	case "input_audio_buffer.speech_started":
		return message(live.Message{Interrupted: true})
	case "response.done":
		if len(s.uncommitted) > 0 {
			s.turnHeld = true
			return live.Event{}, false
		}
		return message(live.Message{TurnComplete: true})
	case "error":
		text := "unknown error"
		if evt.Error != nil && evt.Error.Message != "" {
			text = evt.Error.Message
		}
		return live.Event{Kind: live.EventError, Err: fmt.Errorf("openai: %s", text)}, true
	}
	return live.Event{}, false
}

func (s *session) emit(ev live.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// writeLoop drains the outbox, resampling each capture frame to the
// Realtime input rate.
func (s *session) writeLoop() {
	err := s.outbox.Run(s.ctx, func(ctx context.Context, f audio.Frame) error {
		pcm, err := audio.DecodeInbound(f.Data)
		if err != nil {
			slog.Warn("openai: dropping undecodable capture frame", "err", err)
			return nil
		}
		pcm = audio.ResampleMono16(pcm, audio.CaptureSampleRate, realtimeRate)
		return s.writeJSON(ctx, appendAudioMessage{
			Type:  "input_audio_buffer.append",
			Audio: audio.EncodeBytes(pcm),
		})
	})
	if err != nil && !errors.Is(err, context.Canceled) && s.ctx.Err() == nil {
		slog.Warn("openai: audio write failed", "err", err)
		s.conn.Close(websocket.StatusInternalError, "write failed")
	}
}

// ── live.Session methods ───────────────────────────────────────────────────────

// SendAudio queues a 16 kHz capture frame.
func (s *session) SendAudio(frame audio.Frame) error {
	return s.outbox.Push(frame)
}

// Events returns the session's event stream.
func (s *session) Events() <-chan live.Event { return s.events }

// Close terminates the session and releases all resources. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.outbox.Close()
	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
