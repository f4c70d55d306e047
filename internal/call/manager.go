// Package call runs duplex voice calls between a microphone and a live
// speech service.
//
// A [Manager] hands out at most one [Call] at a time. Each call runs a
// single event loop goroutine that owns its transcript assembler, its
// playback scheduler and its state; device callbacks and live session events
// reach the loop as messages. The call walks through
//
//	Idle → Connecting → Active → Ending → Idle
//
// with failure paths Connecting → Idle and Active → Idle. Every exit path
// releases the microphone, both device contexts, the processing nodes, the
// live session and the recorder.
package call

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/pranimitra/internal/knowledge"
	"github.com/MrWong99/pranimitra/internal/observe"
	"github.com/MrWong99/pranimitra/internal/prompt"
	"github.com/MrWong99/pranimitra/internal/questionlog"
	"github.com/MrWong99/pranimitra/pkg/audio"
	"github.com/MrWong99/pranimitra/pkg/provider/live"
	"github.com/MrWong99/pranimitra/pkg/recording"
)

// Params selects what a call is about.
type Params struct {
	Language prompt.Language
	Service  prompt.Service

	// Record enables the merged call recording.
	Record bool
}

// ManagerConfig holds all dependencies for a [Manager].
type ManagerConfig struct {
	// Backend provides the microphone and device contexts. Required.
	Backend audio.Backend

	// Provider opens live sessions. Required.
	Provider live.Provider

	// ProviderName labels metrics and logs.
	ProviderName string

	// Model and Voice are passed to the live session.
	Model string
	Voice string

	// Knowledge supplies the corpus embedded in the system prompt. Nil means
	// an empty corpus.
	Knowledge knowledge.Source

	// Questions receives every completed user turn. Nil discards them.
	Questions questionlog.Logger

	// Recordings stores finalized recordings. Nil disables recording.
	Recordings *recording.Store

	// Metrics records call instruments. Nil uses [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// BlockSize is the capture block length in samples. Default
	// [audio.CaptureBlockSize].
	BlockSize int

	// InputSampleRate and OutputSampleRate configure the device contexts.
	// Defaults [audio.CaptureSampleRate] and [audio.PlaybackSampleRate].
	InputSampleRate  int
	OutputSampleRate int

	// OnTranscript, if set, receives live transcript updates on the call's
	// event loop. It must not block.
	OnTranscript func(Update)

	// QuestionTimeout bounds each question log write. Default 5s.
	QuestionTimeout time.Duration
}

// Manager enforces that at most one call is live.
// All exported methods are safe for concurrent use.
type Manager struct {
	cfg ManagerConfig

	mu      sync.Mutex
	current *Call
	wg      sync.WaitGroup
}

// NewManager creates a Manager, filling in defaults.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = audio.CaptureBlockSize
	}
	if cfg.InputSampleRate <= 0 {
		cfg.InputSampleRate = audio.CaptureSampleRate
	}
	if cfg.OutputSampleRate <= 0 {
		cfg.OutputSampleRate = audio.PlaybackSampleRate
	}
	if cfg.Knowledge == nil {
		cfg.Knowledge = knowledge.Static(nil)
	}
	if cfg.Questions == nil {
		cfg.Questions = questionlog.Nop{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.QuestionTimeout <= 0 {
		cfg.QuestionTimeout = 5 * time.Second
	}
	return &Manager{cfg: cfg}
}

// Start begins connecting a new call in the background and returns it
// immediately. Canceling ctx ends the call as if [Call.End] was called.
//
// Returns [ErrCallInProgress] if a call is live.
func (m *Manager) Start(ctx context.Context, p Params) (*Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return nil, ErrCallInProgress
	}
	c := newCall(m, uuid.NewString(), p)
	m.current = c
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		c.run(ctx)
	}()
	return c, nil
}

// Current returns the live call, or nil.
func (m *Manager) Current() *Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Shutdown ends the live call, if any, and waits until every call goroutine
// has returned or ctx expires.
func (m *Manager) Shutdown(ctx context.Context) error {
	if c := m.Current(); c != nil {
		c.End()
	}
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) release(c *Call) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == c {
		m.current = nil
	}
}
