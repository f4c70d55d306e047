// Package gemini implements the live.Provider interface for Google's Gemini
// Live API.
//
// It establishes a bidirectional WebSocket connection to the Gemini Live
// endpoint and exchanges JSON messages according to the BidiGenerateContent
// protocol. Microphone frames are forwarded as realtimeInput media chunks;
// synthesized audio, transcription deltas and turn boundaries arrive as
// serverContent messages and are surfaced as live events.
package gemini

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
	// DefaultModel is the native-audio Live model used when none is configured.
	DefaultModel   = "gemini-2.5-flash-native-audio-preview-09-2025"
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"

	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second
	eventBuffer       = 64
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Gemini model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithOutboxSize sets how many outbound frames may wait for the socket.
func WithOutboxSize(n int) Option {
	return func(p *Provider) { p.outboxSize = n }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements live.Provider for Google's Gemini Live API.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	outboxSize int
}

// New creates a new Gemini Live Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		model:      DefaultModel,
		baseURL:    defaultBaseURL,
		outboxSize: live.DefaultOutboxSize,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Connect dials Gemini Live and sends the setup message. The setupComplete
// acknowledgment is reported later as a live.EventOpen.
func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig) (live.Session, error) {
	wsURL := fmt.Sprintf(
		"%s/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s",
		p.baseURL, url.QueryEscape(p.apiKey),
	)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: dial: %w", err)
	}
	// Inline audio replies can exceed the default 32 KiB read limit.
	conn.SetReadLimit(16 << 20)

	model := p.model
	if cfg.Model != "" {
		model = cfg.Model
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:   conn,
		outbox: live.NewOutbox(p.outboxSize),
		events: make(chan live.Event, eventBuffer),
		done:   make(chan struct{}),
		ctx:    sessCtx,
		cancel: sessCancel,
	}

	if err := sess.writeJSON(ctx, buildSetup(model, cfg)); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("gemini: setup: %w", err)
	}

	go sess.receiveLoop()
	go sess.writeLoop()
	go sess.keepaliveLoop()

	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model                    string           `json:"model"`
	GenerationConfig         generationConfig `json:"generationConfig"`
	SystemInstruction        *content         `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}        `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}        `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []inlineData `json:"mediaChunks"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	Error         *geminiError     `json:"error,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

func buildSetup(model string, cfg live.SessionConfig) setupMessage {
	msg := setupMessage{
		Setup: setupConfig{
			Model: fmt.Sprintf("models/%s", model),
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"AUDIO"},
			},
		},
	}
	if cfg.Instructions != "" {
		msg.Setup.SystemInstruction = &content{Parts: []part{{Text: cfg.Instructions}}}
	}
	if cfg.Voice != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.InputTranscription {
		msg.Setup.InputAudioTranscription = &struct{}{}
	}
	if cfg.OutputTranscription {
		msg.Setup.OutputAudioTranscription = &struct{}{}
	}
	return msg
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn   *websocket.Conn
	outbox *live.Outbox
	events chan live.Event

	mu     sync.Mutex
	closed bool
	done   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gemini: marshal: %w", err)
	}
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// receiveLoop reads messages from the WebSocket and turns them into events.
// It owns the events channel and closes it after the final EventClose.
func (s *session) receiveLoop() {
	var closeErr error
	defer func() {
		s.outbox.Close()
		s.emitFinal(live.Event{Kind: live.EventClose, Err: closeErr})
		close(s.events)
	}()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				closeErr = fmt.Errorf("gemini: read: %w", err)
				s.emit(live.Event{Kind: live.EventError, Err: closeErr})
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("gemini: skipping malformed server message", "err", err)
			continue
		}
		if !s.handleServerMessage(&msg) {
			return
		}
	}
}

// handleServerMessage converts one server message into events. It returns
// false once the session context is done.
func (s *session) handleServerMessage(msg *serverMessage) bool {
	if msg.SetupComplete != nil {
		if !s.emit(live.Event{Kind: live.EventOpen}) {
			return false
		}
	}
	if msg.Error != nil {
		text := "unknown error"
		if msg.Error.Message != "" {
			text = msg.Error.Message
		}
		if !s.emit(live.Event{Kind: live.EventError, Err: fmt.Errorf("gemini: %s", text)}) {
			return false
		}
	}
	if sc := msg.ServerContent; sc != nil {
		m := &live.Message{
			TurnComplete: sc.TurnComplete,
			Interrupted:  sc.Interrupted,
		}
		if sc.InputTranscription != nil {
			m.InputTranscription = sc.InputTranscription.Text
		}
		if sc.OutputTranscription != nil {
			m.OutputTranscription = sc.OutputTranscription.Text
		}
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.InlineData != nil && p.InlineData.Data != "" {
					m.Audio = append(m.Audio, p.InlineData.Data)
				}
			}
		}
		if !s.emit(live.Event{Kind: live.EventMessage, Message: m}) {
			return false
		}
	}
	return true
}

// emit delivers ev unless the session is being torn down.
func (s *session) emit(ev live.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// emitFinal delivers the closing event without blocking a reader that has
// already gone away.
func (s *session) emitFinal(ev live.Event) {
	select {
	case s.events <- ev:
	default:
		slog.Debug("gemini: event stream full, dropping close event")
	}
}

// writeLoop drains the outbox onto the socket.
func (s *session) writeLoop() {
	err := s.outbox.Run(s.ctx, func(ctx context.Context, f audio.Frame) error {
		return s.writeJSON(ctx, realtimeInputMessage{
			RealtimeInput: realtimeInput{
				MediaChunks: []inlineData{{MIMEType: f.MIMEType, Data: f.Data}},
			},
		})
	})
	if err != nil && !errors.Is(err, context.Canceled) && s.ctx.Err() == nil {
		slog.Warn("gemini: audio write failed", "err", err)
		s.conn.Close(websocket.StatusInternalError, "write failed")
	}
}

// keepaliveLoop sends WebSocket pings to keep the Gemini Live connection alive.
func (s *session) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(s.ctx, keepaliveTimeout)
			_ = s.conn.Ping(pingCtx)
			cancel()
		}
	}
}

// ── live.Session methods ───────────────────────────────────────────────────────

// SendAudio queues a capture frame for delivery as a realtimeInput chunk.
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
	s.cancel()    // unblocks receiveLoop, writeLoop and keepaliveLoop
	close(s.done) // signals keepaliveLoop via done channel
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
