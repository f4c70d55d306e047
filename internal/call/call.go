package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/pranimitra/internal/observe"
	"github.com/MrWong99/pranimitra/internal/prompt"
	"github.com/MrWong99/pranimitra/internal/questionlog"
	"github.com/MrWong99/pranimitra/internal/transcript"
	"github.com/MrWong99/pranimitra/pkg/audio"
	"github.com/MrWong99/pranimitra/pkg/provider/live"
	"github.com/MrWong99/pranimitra/pkg/recording"
)

// errEndRequested marks a connect attempt aborted by End.
var errEndRequested = errors.New("call: end requested")

// Call is one duplex voice call. Its resources are owned by a single event
// loop goroutine; the exported methods only exchange messages with it and
// are safe for concurrent use.
type Call struct {
	id     string
	params Params
	cfg    *ManagerConfig
	mgr    *Manager

	state  atomic.Int32
	status chan StatusEvent

	ready    chan struct{}
	readyErr error

	done   chan struct{}
	result Result
	err    error

	endReq        chan struct{}
	endOnce       sync.Once
	cancelConnect context.CancelFunc
	connectMu     sync.Mutex

	// Playback completions posted from the render goroutine.
	compMu      sync.Mutex
	completions []*Playback
	compSignal  chan struct{}

	// Owned by the event loop.
	log         *slog.Logger
	mic         audio.Microphone
	in          audio.InputContext
	out         audio.OutputContext
	captureNode audio.Node
	monitorNode audio.Node
	session     live.Session
	recorder    *recording.Recorder
	scheduler   *PlaybackScheduler
	assembler   *transcript.Assembler
	pending     []live.Event
	activeAt    time.Time
}

func newCall(m *Manager, id string, p Params) *Call {
	c := &Call{
		id:         id,
		params:     p,
		cfg:        &m.cfg,
		mgr:        m,
		status:     make(chan StatusEvent, 8),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
		endReq:     make(chan struct{}),
		compSignal: make(chan struct{}, 1),
		log:        slog.Default(),
	}
	// Visible as connecting before the event loop runs.
	c.state.Store(int32(StateConnecting))
	return c
}

// ID returns the unique call identifier.
func (c *Call) ID() string { return c.id }

// Params returns the parameters the call was started with.
func (c *Call) Params() Params { return c.params }

// State returns the current lifecycle state.
func (c *Call) State() State { return State(c.state.Load()) }

// Status returns the stream of state transitions. The channel is closed
// after the final idle event.
func (c *Call) Status() <-chan StatusEvent { return c.status }

// Ready waits until the call is active. It returns the startup failure as a
// [*Error], [ErrEnded] if the call was ended while connecting, or ctx's
// error.
func (c *Call) Ready(ctx context.Context) error {
	select {
	case <-c.ready:
		return c.readyErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// End requests the call to end. Calling End more than once, or after the
// call has ended, has no effect.
func (c *Call) End() {
	c.endOnce.Do(func() {
		close(c.endReq)
		c.connectMu.Lock()
		if c.cancelConnect != nil {
			c.cancelConnect()
		}
		c.connectMu.Unlock()
	})
}

// Done is closed once the call is back to idle and every resource has been
// released.
func (c *Call) Done() <-chan struct{} { return c.done }

// Result waits for the call to end. A normally ended call yields its
// transcript and recording; a failed call yields a [*Error].
func (c *Call) Result(ctx context.Context) (Result, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (c *Call) ended() bool {
	select {
	case <-c.endReq:
		return true
	default:
		return false
	}
}

func (c *Call) setState(s State, err error) {
	c.state.Store(int32(s))
	c.status <- StatusEvent{State: s, At: time.Now(), Err: err}
	c.log.Debug("call state changed", "state", s)
}

// ── Event loop ──────────────────────────────────────────────────────────────

func (c *Call) run(parent context.Context) {
	ctx, span := observe.StartCallSpan(parent, observe.CallAttrs{
		ID:       c.id,
		Language: string(c.params.Language),
		Service:  string(c.params.Service),
		Record:   c.params.Record,
	})
	defer span.End()
	c.log = observe.Logger(ctx)
	metrics := c.cfg.Metrics

	defer func() {
		c.mgr.release(c)
		close(c.status)
		close(c.done)
	}()

	c.setState(StateConnecting, nil)
	if err := c.connect(ctx); err != nil {
		if errors.Is(err, errEndRequested) {
			c.setState(StateEnding, nil)
			c.teardown(true)
			c.readyErr = ErrEnded
			close(c.ready)
			c.log.Info("call ended while connecting")
			c.setState(StateIdle, nil)
			return
		}
		var ce *Error
		if !errors.As(err, &ce) {
			ce = newError(KindSessionOpenFailure, err)
		}
		c.teardown(true)
		c.fail(ctx, span, ce)
		close(c.ready)
		return
	}

	c.activeAt = time.Now()
	metrics.ActiveCalls.Add(ctx, 1)
	c.setState(StateActive, nil)
	close(c.ready)
	c.log.Info("call active",
		"language", c.params.Language,
		"service", c.params.Service,
		"recording", c.recorder != nil,
	)

	runtimeErr := c.loop(ctx)

	metrics.ActiveCalls.Add(ctx, -1)
	metrics.CallDuration.Record(ctx, time.Since(c.activeAt).Seconds())

	if runtimeErr != nil {
		c.teardown(true)
		c.fail(ctx, span, newError(KindSessionRuntime, runtimeErr))
		return
	}

	c.setState(StateEnding, nil)
	rec := c.teardown(false)
	c.result = Result{Transcript: c.assembler.Transcript(), Recording: rec}
	c.log.Info("call ended", "entries", len(c.result.Transcript), "recording", rec != nil)
	c.setState(StateIdle, nil)
}

func (c *Call) fail(ctx context.Context, span trace.Span, ce *Error) {
	c.err = ce
	c.readyErr = ce
	c.cfg.Metrics.RecordCallError(ctx, ce.Kind.String())
	span.RecordError(ce)
	span.SetStatus(codes.Error, ce.Kind.String())
	c.log.Error("call failed", "kind", ce.Kind, "err", ce.Err)
	c.setState(StateIdle, ce)
}

// loop processes session events until End, cancellation of ctx, or a
// session runtime failure, which is returned.
func (c *Call) loop(ctx context.Context) error {
	events := c.session.Events()
	for _, ev := range c.pending {
		if err := c.handleEvent(ctx, ev); err != nil {
			return err
		}
	}
	c.pending = nil

	for {
		select {
		case <-c.endReq:
			return nil
		case <-ctx.Done():
			return nil
		case <-c.compSignal:
			c.drainCompletions()
		case ev, ok := <-events:
			if !ok {
				return errors.New("live session event stream ended")
			}
			if err := c.handleEvent(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (c *Call) handleEvent(ctx context.Context, ev live.Event) error {
	switch ev.Kind {
	case live.EventMessage:
		if ev.Message != nil {
			c.handleMessage(ctx, ev.Message)
		}
	case live.EventError:
		if ev.Err == nil {
			return errors.New("live session reported an error")
		}
		return ev.Err
	case live.EventClose:
		if ev.Err != nil {
			return fmt.Errorf("live session closed: %w", ev.Err)
		}
		return errors.New("live session closed unexpectedly")
	}
	return nil
}

func (c *Call) handleMessage(ctx context.Context, msg *live.Message) {
	metrics := c.cfg.Metrics
	if msg.InputTranscription != "" {
		c.assembler.Add(transcript.Fragment{Speaker: transcript.User, Text: msg.InputTranscription})
	}
	if msg.OutputTranscription != "" {
		c.assembler.Add(transcript.Fragment{Speaker: transcript.Assistant, Text: msg.OutputTranscription})
	}

	var added []transcript.Entry
	if msg.TurnComplete {
		added = c.assembler.CompleteTurn()
		for _, e := range added {
			metrics.RecordTranscriptEntry(ctx, string(e.Speaker))
		}
	}

	for _, payload := range msg.Audio {
		buf, err := c.decode(payload)
		if err != nil {
			metrics.DecodeErrors.Add(ctx, 1)
			c.log.Warn("dropping malformed inbound audio", "err", err)
			continue
		}
		var taps []audio.Tap
		if c.recorder != nil {
			taps = append(taps, c.recorder)
		}
		if _, err := c.scheduler.Schedule(buf, taps...); err != nil {
			c.log.Warn("cannot schedule assistant audio", "err", err)
		}
	}

	if msg.Interrupted {
		c.log.Debug("assistant interrupted by caller")
	}

	if c.cfg.OnTranscript != nil {
		c.cfg.OnTranscript(Update{
			CallID:      c.id,
			Pending:     c.assembler.Pending(),
			Entries:     added,
			Interrupted: msg.Interrupted,
		})
	}
}

func (c *Call) decode(payload string) (*audio.Buffer, error) {
	data, err := audio.DecodeInbound(payload)
	if err != nil {
		return nil, err
	}
	return audio.DecodeAudioData(data, audio.PlaybackSampleRate, 1)
}

func (c *Call) postCompletion(p *Playback) {
	c.compMu.Lock()
	c.completions = append(c.completions, p)
	c.compMu.Unlock()
	select {
	case c.compSignal <- struct{}{}:
	default:
	}
}

func (c *Call) drainCompletions() {
	c.compMu.Lock()
	done := c.completions
	c.completions = nil
	c.compMu.Unlock()
	for _, p := range done {
		c.scheduler.Complete(p)
	}
}

// ── Connecting ──────────────────────────────────────────────────────────────

// connect acquires every resource and waits for the session to open. It
// returns errEndRequested when End interrupted it, or a *Error.
func (c *Call) connect(ctx context.Context) error {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.connectMu.Lock()
	c.cancelConnect = cancel
	c.connectMu.Unlock()
	if c.ended() || ctx.Err() != nil {
		return errEndRequested
	}

	classify := func(kind Kind, err error) error {
		if c.ended() || ctx.Err() != nil {
			return errEndRequested
		}
		return newError(kind, err)
	}

	mic, err := c.cfg.Backend.RequestMicrophone(cctx)
	if err != nil {
		if errors.Is(err, audio.ErrPermissionDenied) {
			return classify(KindPermissionDenied, err)
		}
		return classify(KindDeviceInitFailure, fmt.Errorf("request microphone: %w", err))
	}
	c.mic = mic

	if c.in, err = c.cfg.Backend.NewInputContext(c.cfg.InputSampleRate); err != nil {
		return classify(KindDeviceInitFailure, fmt.Errorf("create input context: %w", err))
	}
	if c.out, err = c.cfg.Backend.NewOutputContext(c.cfg.OutputSampleRate); err != nil {
		return classify(KindDeviceInitFailure, fmt.Errorf("create output context: %w", err))
	}
	if c.ended() || ctx.Err() != nil {
		return errEndRequested
	}

	corpus, err := c.cfg.Knowledge.Load(cctx)
	if err != nil {
		if c.ended() || ctx.Err() != nil {
			return errEndRequested
		}
		c.log.Warn("knowledge corpus unavailable, continuing without it", "err", err)
		corpus = nil
	}
	instructions := prompt.Build(c.params.Language, c.params.Service, corpus)

	if err := c.openSession(cctx, instructions); err != nil {
		return classify(KindSessionOpenFailure, err)
	}

	c.assembler = transcript.New(transcript.WithUserTurn(c.logQuestion))
	c.scheduler = NewPlaybackScheduler(c.out, c.cfg.Metrics, c.postCompletion)

	capture := NewCaptureProcessor(c.session, c.cfg.Metrics, c.log)
	if c.captureNode, err = c.in.Process(c.mic, c.cfg.BlockSize, capture.Process); err != nil {
		return classify(KindDeviceInitFailure, fmt.Errorf("attach capture processor: %w", err))
	}

	if c.params.Record && c.cfg.Recordings != nil {
		rec := recording.New(c.out, c.cfg.OutputSampleRate, c.cfg.Recordings)
		if c.monitorNode, err = c.out.Monitor(c.mic, rec); err != nil {
			return classify(KindDeviceInitFailure, fmt.Errorf("route microphone to recorder: %w", err))
		}
		rec.Start()
		c.recorder = rec
	}

	if c.ended() || ctx.Err() != nil {
		return errEndRequested
	}
	return nil
}

func (c *Call) openSession(ctx context.Context, instructions string) error {
	start := time.Now()
	sctx, span := observe.StartSpan(ctx, "live.connect",
		trace.WithAttributes(attribute.String("live.provider", c.cfg.ProviderName)),
	)
	defer span.End()

	session, err := c.cfg.Provider.Connect(sctx, live.SessionConfig{
		Model:               c.cfg.Model,
		Voice:               c.cfg.Voice,
		Instructions:        instructions,
		InputTranscription:  true,
		OutputTranscription: true,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "connect failed")
		return fmt.Errorf("connect live session: %w", err)
	}
	c.session = session

	events := session.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return errors.New("live session closed before opening")
			}
			switch ev.Kind {
			case live.EventOpen:
				c.cfg.Metrics.RecordSessionOpen(ctx, c.cfg.ProviderName, time.Since(start).Seconds())
				return nil
			case live.EventError:
				err := ev.Err
				if err == nil {
					err = errors.New("live session reported an error")
				}
				span.RecordError(err)
				return err
			case live.EventClose:
				if ev.Err != nil {
					return fmt.Errorf("live session closed before opening: %w", ev.Err)
				}
				return errors.New("live session closed before opening")
			default:
				c.pending = append(c.pending, ev)
			}
		}
	}
}

func (c *Call) logQuestion(text string) {
	q := questionlog.Question{
		CallID:   c.id,
		Language: string(c.params.Language),
		Service:  string(c.params.Service),
		Text:     text,
		AskedAt:  time.Now(),
	}
	logger := c.cfg.Questions
	timeout := c.cfg.QuestionTimeout
	log := c.log
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := logger.Log(ctx, q); err != nil {
			log.Warn("question log write failed", "err", err)
		}
	}()
}

// ── Teardown ────────────────────────────────────────────────────────────────

// teardown releases every resource in order: session, recorder, playback,
// processing nodes, output and input contexts, microphone. Each step is
// fail-soft. When discard is set the recording is dropped; otherwise the
// finalized handle is returned.
func (c *Call) teardown(discard bool) *recording.Handle {
	var rec *recording.Handle
	steps := []struct {
		name string
		fn   func() error
	}{
		{"session", func() error {
			if c.session == nil {
				return nil
			}
			return c.session.Close()
		}},
		{"recorder", func() error {
			switch {
			case c.recorder == nil:
			case discard:
				c.recorder.Discard()
			default:
				rec = <-c.recorder.Stop()
			}
			return nil
		}},
		{"playback", func() error {
			if c.scheduler != nil {
				c.scheduler.StopAll()
			}
			return nil
		}},
		{"capture node", disconnect(c.captureNode)},
		{"monitor node", disconnect(c.monitorNode)},
		{"output context", closeContext(c.out)},
		{"input context", closeContext(c.in)},
		{"microphone", func() error {
			if c.mic == nil {
				return nil
			}
			return c.mic.Close()
		}},
	}
	for _, s := range steps {
		if err := runStep(s.fn); err != nil {
			c.log.Warn("call teardown step failed", "step", s.name, "err", err)
		}
	}
	return rec
}

func runStep(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func disconnect(n audio.Node) func() error {
	return func() error {
		if n != nil {
			n.Disconnect()
		}
		return nil
	}
}

// closer is satisfied by both device context kinds.
type closer interface {
	Closed() bool
	Close() error
}

func closeContext(ctx closer) func() error {
	return func() error {
		if ctx == nil || ctx.Closed() {
			return nil
		}
		return ctx.Close()
	}
}
