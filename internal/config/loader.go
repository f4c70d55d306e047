package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/pranimitra/internal/prompt"
	"github.com/MrWong99/pranimitra/pkg/audio"
)

// ValidProviderNames lists the built-in live provider names.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"gemini", "genai", "openai"}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8080"
	DefaultProvider        = "gemini"
	DefaultGeminiVoice     = "Zephyr"
	DefaultOpenAIVoice     = "alloy"
	DefaultQuestionTimeout = 5 * time.Second
	DefaultPollInterval    = 30 * time.Second
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references from
// the environment, applies defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.Expand(string(raw), func(key string) string {
		v, ok := os.LookupEnv(key)
		if !ok {
			slog.Warn("config references an unset environment variable", "var", key)
		}
		return v
	})

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field of cfg with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	if cfg.Provider.Name == "" {
		cfg.Provider.Name = DefaultProvider
	}
	if cfg.Provider.Voice == "" {
		switch cfg.Provider.Name {
		case "gemini", "genai":
			cfg.Provider.Voice = DefaultGeminiVoice
		case "openai":
			cfg.Provider.Voice = DefaultOpenAIVoice
		}
	}

	c := &cfg.Call
	if c.Language == "" {
		c.Language = string(prompt.English)
	}
	if c.Service == "" {
		c.Service = string(prompt.ServiceGeneral)
	}
	if c.BlockSize == 0 {
		c.BlockSize = audio.CaptureBlockSize
	}
	if c.InputSampleRate == 0 {
		c.InputSampleRate = audio.CaptureSampleRate
	}
	if c.OutputSampleRate == 0 {
		c.OutputSampleRate = audio.PlaybackSampleRate
	}
	if c.QuestionTimeout == 0 {
		c.QuestionTimeout = DefaultQuestionTimeout
	}

	if cfg.Knowledge.PollInterval == 0 {
		cfg.Knowledge.PollInterval = DefaultPollInterval
	}
	if cfg.QuestionLog.Backend == "" {
		cfg.QuestionLog.Backend = QuestionLogSlog
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Provider
	if cfg.Provider.Name == "" {
		errs = append(errs, errors.New("provider.name is required"))
	} else if !slices.Contains(ValidProviderNames, cfg.Provider.Name) {
		slog.Warn("unknown live provider name, may be a typo or third-party provider",
			"name", cfg.Provider.Name,
			"known", ValidProviderNames,
		)
	}
	if cfg.Provider.APIKey == "" {
		slog.Warn("provider.api_key is empty; calls will fail to connect")
	}

	// Call
	if _, err := prompt.ParseLanguage(cfg.Call.Language); err != nil {
		errs = append(errs, fmt.Errorf("call.language: %w", err))
	}
	if _, err := prompt.ParseService(cfg.Call.Service); err != nil {
		errs = append(errs, fmt.Errorf("call.service: %w", err))
	}
	if cfg.Call.BlockSize < 0 {
		errs = append(errs, fmt.Errorf("call.block_size %d must be positive", cfg.Call.BlockSize))
	}
	if cfg.Call.InputSampleRate < 0 {
		errs = append(errs, fmt.Errorf("call.input_sample_rate %d must be positive", cfg.Call.InputSampleRate))
	}
	if cfg.Call.OutputSampleRate < 0 {
		errs = append(errs, fmt.Errorf("call.output_sample_rate %d must be positive", cfg.Call.OutputSampleRate))
	}
	if cfg.Call.QuestionTimeout < 0 {
		errs = append(errs, fmt.Errorf("call.question_timeout %s must not be negative", cfg.Call.QuestionTimeout))
	}

	// Question log
	ql := cfg.QuestionLog
	if ql.Backend != "" && !ql.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("question_log.backend %q is invalid; valid values: slog, postgres, none", ql.Backend))
	}
	if ql.Backend == QuestionLogPostgres && ql.PostgresDSN == "" {
		errs = append(errs, errors.New("question_log.postgres_dsn is required when backend is postgres"))
	}

	return errors.Join(errs...)
}
