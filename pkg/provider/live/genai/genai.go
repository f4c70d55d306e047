// Package genai implements the live.Provider interface on top of the official
// Google Gen AI Go SDK (google.golang.org/genai).
//
// It speaks the same Gemini Live protocol as live/gemini but lets the SDK own
// the WebSocket, authentication and message schema. Use it when the SDK's
// backend selection (Gemini API or Vertex AI) is needed.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	gogenai "google.golang.org/genai"

	"github.com/MrWong99/pranimitra/pkg/audio"
	"github.com/MrWong99/pranimitra/pkg/provider/live"
)

var (
	_ live.Provider = (*Provider)(nil)
	_ live.Session  = (*session)(nil)
)

// DefaultModel is the native-audio Live model used when none is configured.
const DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Live model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the SDK's API endpoint.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// Provider implements live.Provider using the Gen AI SDK.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a Provider for the Gemini API backend.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{apiKey: apiKey, model: DefaultModel}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Connect creates an SDK client and opens a Live session.
func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig) (live.Session, error) {
	clientCfg := &gogenai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: gogenai.BackendGeminiAPI,
	}
	if p.baseURL != "" {
		clientCfg.HTTPOptions = gogenai.HTTPOptions{BaseURL: p.baseURL}
	}
	client, err := gogenai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("genai: new client: %w", err)
	}

	model := p.model
	if cfg.Model != "" {
		model = cfg.Model
	}
	sdkSess, err := client.Live.Connect(ctx, model, connectConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("genai: connect: %w", err)
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		sess:   sdkSess,
		outbox: live.NewOutbox(live.DefaultOutboxSize),
		events: make(chan live.Event, 64),
		ctx:    sessCtx,
		cancel: cancel,
	}
	go s.receiveLoop()
	go s.writeLoop()
	return s, nil
}

func connectConfig(cfg live.SessionConfig) *gogenai.LiveConnectConfig {
	cc := &gogenai.LiveConnectConfig{
		ResponseModalities: []gogenai.Modality{gogenai.ModalityAudio},
	}
	if cfg.Voice != "" {
		cc.SpeechConfig = &gogenai.SpeechConfig{
			VoiceConfig: &gogenai.VoiceConfig{
				PrebuiltVoiceConfig: &gogenai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.Instructions != "" {
		cc.SystemInstruction = &gogenai.Content{
			Parts: []*gogenai.Part{{Text: cfg.Instructions}},
		}
	}
	if cfg.InputTranscription {
		cc.InputAudioTranscription = &gogenai.AudioTranscriptionConfig{}
	}
	if cfg.OutputTranscription {
		cc.OutputAudioTranscription = &gogenai.AudioTranscriptionConfig{}
	}
	return cc
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	sess   *gogenai.Session
	outbox *live.Outbox
	events chan live.Event

	mu     sync.Mutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

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

	for {
		msg, err := s.sess.Receive()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			closeErr = fmt.Errorf("genai: receive: %w", err)
			s.emit(live.Event{Kind: live.EventError, Err: closeErr})
			return
		}
		for _, ev := range convert(msg) {
			if !s.emit(ev) {
				return
			}
		}
	}
}

// convert maps one SDK server message onto live events.
func convert(msg *gogenai.LiveServerMessage) []live.Event {
	var evs []live.Event
	if msg.SetupComplete != nil {
		evs = append(evs, live.Event{Kind: live.EventOpen})
	}
	sc := msg.ServerContent
	if sc == nil {
		return evs
	}
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
			if p != nil && p.InlineData != nil && len(p.InlineData.Data) > 0 {
				m.Audio = append(m.Audio, audio.EncodeBytes(p.InlineData.Data))
			}
		}
	}
	return append(evs, live.Event{Kind: live.EventMessage, Message: m})
}

func (s *session) emit(ev live.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *session) writeLoop() {
	err := s.outbox.Run(s.ctx, func(_ context.Context, f audio.Frame) error {
		pcm, err := audio.DecodeInbound(f.Data)
		if err != nil {
			slog.Warn("genai: dropping undecodable capture frame", "err", err)
			return nil
		}
		return s.sess.SendRealtimeInput(gogenai.LiveRealtimeInput{
			Audio: &gogenai.Blob{Data: pcm, MIMEType: f.MIMEType},
		})
	})
	if err != nil && s.ctx.Err() == nil {
		slog.Warn("genai: audio write failed", "err", err)
	}
}

// SendAudio queues a capture frame for delivery.
func (s *session) SendAudio(frame audio.Frame) error {
	return s.outbox.Push(frame)
}

// Events returns the session's event stream.
func (s *session) Events() <-chan live.Event { return s.events }

// Close terminates the SDK session. Idempotent.
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
	if err := s.sess.Close(); err != nil {
		return fmt.Errorf("genai: close: %w", err)
	}
	return nil
}
