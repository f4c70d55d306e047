// Package app wires the voice line's subsystems into a running application.
//
// The App struct owns the full lifecycle: New connects the stores, loads the
// knowledge corpus and builds the call manager, Run serves the HTTP surface
// until the context ends, and Shutdown ends the live call and tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithBackend,
// WithProvider, WithKnowledgeSource, ...). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/pranimitra/internal/call"
	"github.com/MrWong99/pranimitra/internal/config"
	"github.com/MrWong99/pranimitra/internal/health"
	"github.com/MrWong99/pranimitra/internal/knowledge"
	"github.com/MrWong99/pranimitra/internal/observe"
	"github.com/MrWong99/pranimitra/internal/prompt"
	"github.com/MrWong99/pranimitra/internal/questionlog"
	"github.com/MrWong99/pranimitra/pkg/audio"
	"github.com/MrWong99/pranimitra/pkg/provider/live"
	"github.com/MrWong99/pranimitra/pkg/recording"
)

// shutdownGrace bounds how long the HTTP server may take to drain.
const shutdownGrace = 5 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	provider live.Provider
	backend  audio.Backend
	metrics  *observe.Metrics

	// Subsystems, initialised in New and torn down in Shutdown.
	source     knowledge.Source
	corpus     *knowledge.Watcher
	questions  questionlog.Logger
	recordings *recording.Store
	calls      *call.Manager
	pools      map[string]*pgxpool.Pool
	checkers   []health.Checker
	handler    http.Handler

	configPath   string
	logLevel     *slog.LevelVar
	onTranscript func(call.Update)

	// defaults holds the call settings new calls start with. Config reloads
	// replace it.
	defaults atomic.Pointer[config.CallConfig]

	// closers are called in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithBackend sets the audio backend. Required.
func WithBackend(b audio.Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithProvider sets the live speech provider. Required.
func WithProvider(p live.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithKnowledgeSource injects a corpus source instead of building one from
// the knowledge config.
func WithKnowledgeSource(s knowledge.Source) Option {
	return func(a *App) { a.source = s }
}

// WithQuestionLogger injects a question logger instead of building one from
// the question_log config.
func WithQuestionLogger(l questionlog.Logger) Option {
	return func(a *App) { a.questions = l }
}

// WithMetrics injects the metric instruments. Default [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithOnTranscript registers a listener for live transcript updates. It runs
// on the call's event loop and must not block.
func WithOnTranscript(fn func(call.Update)) Option {
	return func(a *App) { a.onTranscript = fn }
}

// WithLogLevel lets config reloads change the level of the process logger.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// WithConfigFile makes Run poll path and apply reloadable changes.
func WithConfigFile(path string) Option {
	return func(a *App) { a.configPath = path }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Any resources
// acquired before a failing step are released before New returns.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	a := &App{
		cfg:   cfg,
		pools: make(map[string]*pgxpool.Pool),
	}
	for _, o := range opts {
		o(a)
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if a.backend == nil {
		return nil, errors.New("app: no audio backend")
	}
	if a.provider == nil {
		return nil, errors.New("app: no live provider")
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Knowledge corpus ──────────────────────────────────────────────
	if err := a.initKnowledge(ctx); err != nil {
		return nil, fmt.Errorf("app: init knowledge: %w", err)
	}

	// ── 2. Question log ──────────────────────────────────────────────────
	if err := a.initQuestionLog(ctx); err != nil {
		return nil, fmt.Errorf("app: init question log: %w", err)
	}

	// ── 3. Call manager ──────────────────────────────────────────────────
	a.recordings = recording.NewStore()
	a.calls = call.NewManager(call.ManagerConfig{
		Backend:          a.backend,
		Provider:         a.provider,
		ProviderName:     cfg.Provider.Name,
		Model:            cfg.Provider.Model,
		Voice:            cfg.Provider.Voice,
		Knowledge:        a.corpus,
		Questions:        a.questions,
		Recordings:       a.recordings,
		Metrics:          a.metrics,
		BlockSize:        cfg.Call.BlockSize,
		InputSampleRate:  cfg.Call.InputSampleRate,
		OutputSampleRate: cfg.Call.OutputSampleRate,
		OnTranscript:     a.onTranscript,
		QuestionTimeout:  cfg.Call.QuestionTimeout,
	})
	callCfg := cfg.Call
	a.defaults.Store(&callCfg)

	// ── 4. HTTP surface ──────────────────────────────────────────────────
	a.handler = a.buildHandler()

	slog.Info("app initialised",
		"provider", cfg.Provider.Name,
		"knowledge_entries", len(a.corpus.Current()),
		"question_log", cfg.QuestionLog.Backend,
	)
	return a, nil
}

func (a *App) initKnowledge(ctx context.Context) error {
	if a.source == nil {
		var sources []knowledge.Source
		if a.cfg.Knowledge.File != "" {
			sources = append(sources, knowledge.File{Path: a.cfg.Knowledge.File})
		}
		if dsn := a.cfg.Knowledge.PostgresDSN; dsn != "" {
			pool, err := a.pool(ctx, "knowledge_db", dsn, false)
			if err != nil {
				return err
			}
			src := knowledge.NewPostgresSource(pool)
			if err := src.Migrate(ctx); err != nil {
				return err
			}
			sources = append(sources, src)
		}
		switch len(sources) {
		case 0:
			a.source = knowledge.Default()
		case 1:
			a.source = sources[0]
		default:
			a.source = knowledge.Multi(sources...)
		}
	}

	w, err := knowledge.NewWatcher(ctx, a.source,
		knowledge.WithInterval(a.cfg.Knowledge.PollInterval),
		knowledge.WithOnChange(func(prev, next []knowledge.Entry) {
			slog.Info("knowledge corpus reloaded", "before", len(prev), "after", len(next))
		}),
	)
	if err != nil {
		return err
	}
	a.corpus = w
	a.closers = append(a.closers, func() error {
		w.Stop()
		return nil
	})
	return nil
}

func (a *App) initQuestionLog(ctx context.Context) error {
	if a.questions != nil {
		return nil
	}
	switch a.cfg.QuestionLog.Backend {
	case config.QuestionLogPostgres:
		pool, err := a.pool(ctx, "question_log_db", a.cfg.QuestionLog.PostgresDSN, true)
		if err != nil {
			return err
		}
		l := questionlog.NewPostgresLogger(pool)
		if err := l.Migrate(ctx); err != nil {
			return err
		}
		guarded := questionlog.NewGuarded(l)
		a.checkers = append(a.checkers, health.Checker{Name: "question_log", Check: guarded.Check, Optional: true})
		a.questions = guarded
	case config.QuestionLogNone:
		a.questions = questionlog.Nop{}
	default:
		a.questions = questionlog.NewSlogLogger(slog.Default())
	}
	return nil
}

// pool returns the connection pool for dsn, opening it on first use and
// registering a readiness ping under name. The knowledge source and the
// question log share a pool when their DSNs match; the first registration
// decides whether its ping is optional.
func (a *App) pool(ctx context.Context, name, dsn string, optional bool) (*pgxpool.Pool, error) {
	if p, ok := a.pools[dsn]; ok {
		return p, nil
	}
	p, err := openPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	a.pools[dsn] = p
	ping := health.Ping(name, p)
	ping.Optional = optional
	a.checkers = append(a.checkers, ping)
	a.closers = append(a.closers, func() error {
		p.Close()
		return nil
	})
	return p, nil
}

func (a *App) buildHandler() http.Handler {
	mux := http.NewServeMux()

	checkers := append([]health.Checker{
		{Name: "provider", Check: func(context.Context) error {
			if a.cfg.Provider.APIKey == "" {
				return errors.New("provider.api_key is not configured")
			}
			return nil
		}},
		health.NotEmpty("knowledge", "knowledge corpus is empty", func() int {
			return len(a.corpus.Current())
		}),
	}, a.checkers...)
	health.New(checkers...).Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())
	recording.NewHandler(a.recordings).Register(mux)
	newCallHandler(a).Register(mux)

	return observe.Middleware(a.metrics)(mux)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the HTTP handler Run serves.
func (a *App) Handler() http.Handler { return a.handler }

// Calls returns the call manager.
func (a *App) Calls() *call.Manager { return a.calls }

// Recordings returns the recording store served under /recordings/.
func (a *App) Recordings() *recording.Store { return a.recordings }

// DefaultParams returns the call parameters configured for new calls.
func (a *App) DefaultParams() (call.Params, error) {
	d := a.defaults.Load()
	lang, err := prompt.ParseLanguage(d.Language)
	if err != nil {
		return call.Params{}, err
	}
	svc, err := prompt.ParseService(d.Service)
	if err != nil {
		return call.Params{}, err
	}
	return call.Params{Language: lang, Service: svc, Record: d.Record}, nil
}

// StartCall starts a call and logs its outcome once it ends.
func (a *App) StartCall(ctx context.Context, p call.Params) (*call.Call, error) {
	c, err := a.calls.Start(ctx, p)
	if err != nil {
		return nil, err
	}
	slog.Info("call started",
		"call_id", c.ID(),
		"language", p.Language,
		"service", p.Service,
		"record", p.Record,
	)
	go a.logOutcome(c)
	return c, nil
}

func (a *App) logOutcome(c *call.Call) {
	res, err := c.Result(context.Background())
	log := observe.CallLogger(context.Background(), c.ID())
	if err != nil {
		var ce *call.Error
		if errors.As(err, &ce) {
			log.Warn("call failed", "kind", ce.Kind, "err", ce.Err)
			return
		}
		log.Info("call ended without a result", "err", err)
		return
	}
	args := []any{"entries", len(res.Transcript)}
	if res.Recording != nil {
		args = append(args, "recording", "/recordings/"+res.Recording.ID, "duration", res.Recording.Duration)
	}
	log.Info("call finished", args...)
}

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyConfig applies the reloadable parts of a changed config. Sections that
// need a restart are only logged.
func (a *App) ApplyConfig(_, next *config.Config, diff config.ConfigDiff) {
	if diff.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(diff.NewLogLevel.Level())
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.CallChanged {
		callCfg := next.Call
		a.defaults.Store(&callCfg)
		slog.Info("call defaults changed",
			"language", callCfg.Language,
			"service", callCfg.Service,
			"record", callCfg.Record,
		)
	}
	for _, section := range diff.RestartRequired {
		slog.Warn("config change needs a restart", "section", section)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and polls the config file until ctx is cancelled or a
// component fails. It returns ctx.Err() after a clean stop.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if addr := a.cfg.Server.ListenAddr; addr != "-" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			slog.Info("http server listening", "addr", addr, "tls", a.cfg.Server.TLS != nil)
			var err error
			if tls := a.cfg.Server.TLS; tls != nil {
				err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
			} else {
				err = srv.ListenAndServe()
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("app: http server: %w", err)
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, config.WithOnChange(a.ApplyConfig))
		if err != nil {
			return err
		}
		g.Go(func() error { return w.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown ends the live call and tears down all subsystems in reverse-init
// order. It respects the context deadline: if ctx expires before all closers
// finish, remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.calls.Shutdown(ctx); err != nil {
			slog.Warn("call did not end before deadline", "err", err)
			shutdownErr = err
			return
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// close releases whatever New acquired before it failed.
func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}
