// Command pranimitra runs the farmer voice helpline on the local sound
// hardware.
//
// By default it starts one call immediately and prints the transcript as the
// conversation goes. The first interrupt ends the call, a second interrupt
// exits. With -serve it only runs the HTTP surface and calls are started via
// POST /call.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MrWong99/pranimitra/internal/app"
	"github.com/MrWong99/pranimitra/internal/call"
	"github.com/MrWong99/pranimitra/internal/config"
	"github.com/MrWong99/pranimitra/internal/observe"
	"github.com/MrWong99/pranimitra/internal/prompt"
	"github.com/MrWong99/pranimitra/internal/transcript"
	"github.com/MrWong99/pranimitra/pkg/audio/native"
	"github.com/MrWong99/pranimitra/pkg/provider/live"
	"github.com/MrWong99/pranimitra/pkg/provider/live/gemini"
	"github.com/MrWong99/pranimitra/pkg/provider/live/genai"
	"github.com/MrWong99/pranimitra/pkg/provider/live/openai"
	"github.com/MrWong99/pranimitra/pkg/recording"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the config")
	language := flag.String("language", "", "conversation language (overrides call.language)")
	service := flag.String("service", "", "service scope (overrides call.service)")
	record := flag.Bool("record", false, "record the call (overrides call.record)")
	out := flag.String("out", "", "write the call recording to this WAV file")
	serve := flag.Bool("serve", false, "serve HTTP only; start calls via POST /call")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "pranimitra: load %s: %v\n", *envPath, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "pranimitra: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "pranimitra: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("pranimitra starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName:    "pranimitra",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider ──────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	provider, err := reg.CreateLive(cfg.Provider)
	if err != nil {
		slog.Error("failed to build live provider", "err", err, "available", reg.Names())
		return 1
	}

	// ── Audio hardware ────────────────────────────────────────────────────────
	backend, err := native.New()
	if err != nil {
		slog.Error("failed to open audio backend", "err", err)
		return 1
	}
	defer backend.Close()

	printStartupSummary(cfg)

	application, err := app.New(context.Background(), cfg,
		app.WithBackend(backend),
		app.WithProvider(provider),
		app.WithLogLevel(&level),
		app.WithConfigFile(*configPath),
		app.WithOnTranscript(printUpdate),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	appCtx, cancelApp := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- application.Run(appCtx) }()

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	code := 0
	if !*serve {
		params, err := callParams(application, *language, *service, record)
		if err != nil {
			slog.Error("invalid call parameters", "err", err)
			code = 1
		} else {
			code = runCall(application, params, *out, cfg, sigs, runErr)
		}
	}

	if cfg.Server.ListenAddr != "-" && code == 0 {
		slog.Info("server ready, press Ctrl+C to shut down")
		select {
		case <-sigs:
		case err := <-runErr:
			runErr <- err
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	cancelApp()
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return code
}

// callParams applies the command line overrides to the configured defaults.
func callParams(a *app.App, language, service string, record *bool) (call.Params, error) {
	p, err := a.DefaultParams()
	if err != nil {
		return p, err
	}
	if language != "" {
		if p.Language, err = prompt.ParseLanguage(language); err != nil {
			return p, err
		}
	}
	if service != "" {
		if p.Service, err = prompt.ParseService(service); err != nil {
			return p, err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "record" {
			p.Record = *record
		}
	})
	return p, nil
}

// runCall runs one call until it ends on its own, the user interrupts or the
// application stops. It returns the process exit code.
func runCall(a *app.App, p call.Params, out string, cfg *config.Config, sigs <-chan os.Signal, runErr chan error) int {
	c, err := a.StartCall(context.Background(), p)
	if err != nil {
		slog.Error("failed to start call", "err", err)
		return 1
	}
	fmt.Printf("Connecting: %s, %s. Press Ctrl+C to end the call.\n", p.Language, p.Service)

	status := c.Status()
	appDone := (<-chan error)(runErr)
	for status != nil {
		select {
		case ev, ok := <-status:
			if !ok {
				status = nil
				continue
			}
			if ev.State == call.StateActive {
				fmt.Println("Connected. Start speaking.")
			}
		case <-sigs:
			fmt.Println("Ending call…")
			c.End()
		case err := <-appDone:
			runErr <- err
			appDone = nil
			c.End()
		}
	}

	res, err := c.Result(context.Background())
	if err != nil {
		if errors.Is(err, call.ErrEnded) {
			fmt.Println("Call cancelled before it connected.")
			return 0
		}
		fmt.Fprintf(os.Stderr, "Call failed: %v\n", err)
		return 1
	}

	printTranscript(res)
	if res.Recording != nil {
		if url := recordingURL(cfg, res.Recording); url != "" {
			fmt.Printf("Recording (%s): %s\n", res.Recording.Duration.Round(time.Millisecond), url)
		}
		if out != "" {
			if err := saveRecording(out, res.Recording); err != nil {
				slog.Error("failed to save recording", "path", out, "err", err)
				return 1
			}
			fmt.Printf("Recording saved to %s\n", out)
		}
	}
	return 0
}

// ── Output ─────────────────────────────────────────────────────────────────────

func printUpdate(u call.Update) {
	for _, e := range u.Entries {
		fmt.Printf("%-9s %s\n", label(e.Speaker)+":", e.Text)
	}
	if u.Interrupted {
		fmt.Println("          (interrupted)")
	}
}

func printTranscript(res call.Result) {
	fmt.Println()
	fmt.Printf("Transcript (%d entries)\n", len(res.Transcript))
	for _, e := range res.Transcript {
		fmt.Printf("  %s  %-9s %s\n", e.Timestamp.Format("15:04:05"), label(e.Speaker)+":", e.Text)
	}
}

func label(s transcript.Speaker) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

func recordingURL(cfg *config.Config, h *recording.Handle) string {
	addr := cfg.Server.ListenAddr
	if addr == "-" {
		return ""
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	scheme := "http"
	if cfg.Server.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + addr + "/recordings/" + h.ID
}

func saveRecording(path string, h *recording.Handle) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, h.Open()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the live speech providers that ship with
// pranimitra into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLive("gemini", func(entry config.ProviderEntry) (live.Provider, error) {
		var opts []gemini.Option
		if entry.Model != "" {
			opts = append(opts, gemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		if n := config.OptInt(entry.Options, "outbox_size"); n > 0 {
			opts = append(opts, gemini.WithOutboxSize(n))
		}
		return gemini.New(entry.APIKey, opts...), nil
	})

	reg.RegisterLive("genai", func(entry config.ProviderEntry) (live.Provider, error) {
		var opts []genai.Option
		if entry.Model != "" {
			opts = append(opts, genai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, genai.WithBaseURL(entry.BaseURL))
		}
		return genai.New(entry.APIKey, opts...), nil
	})

	reg.RegisterLive("openai", func(entry config.ProviderEntry) (live.Provider, error) {
		var opts []openai.Option
		if entry.Model != "" {
			opts = append(opts, openai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if m := config.OptString(entry.Options, "transcription_model"); m != "" {
			opts = append(opts, openai.WithTranscriptionModel(m))
		}
		if w := config.OptString(entry.Options, "transcript_wait"); w != "" {
			d, err := time.ParseDuration(w)
			if err != nil {
				return nil, fmt.Errorf("openai: transcript_wait: %w", err)
			}
			opts = append(opts, openai.WithTranscriptWait(d))
		}
		return openai.New(entry.APIKey, opts...), nil
	})
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      Prani Mitra, startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Provider", cfg.Provider.Name+" / "+cfg.Provider.Voice)
	printRow("Language", cfg.Call.Language)
	printRow("Service", cfg.Call.Service)
	if cfg.Call.Record {
		printRow("Recording", "on")
	} else {
		printRow("Recording", "off")
	}
	knowledgeSrc := "(built-in)"
	switch {
	case cfg.Knowledge.File != "" && cfg.Knowledge.PostgresDSN != "":
		knowledgeSrc = "file + postgres"
	case cfg.Knowledge.File != "":
		knowledgeSrc = cfg.Knowledge.File
	case cfg.Knowledge.PostgresDSN != "":
		knowledgeSrc = "postgres"
	}
	printRow("Knowledge", knowledgeSrc)
	printRow("Question log", string(cfg.QuestionLog.Backend))
	if cfg.Server.ListenAddr != "-" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	} else {
		printRow("Listen addr", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(name, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", name, value)
}
