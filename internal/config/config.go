// Package config provides the configuration schema, loader, and live provider
// registry for the Prani Mitra voice line.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level returns the matching slog level. Unknown levels map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// QuestionLogBackend selects where completed user questions are written.
type QuestionLogBackend string

const (
	// QuestionLogSlog writes questions to the structured logger.
	QuestionLogSlog QuestionLogBackend = "slog"

	// QuestionLogPostgres appends questions to a PostgreSQL table.
	QuestionLogPostgres QuestionLogBackend = "postgres"

	// QuestionLogNone discards questions.
	QuestionLogNone QuestionLogBackend = "none"
)

// IsValid reports whether b is a recognised question log backend.
func (b QuestionLogBackend) IsValid() bool {
	switch b {
	case QuestionLogSlog, QuestionLogPostgres, QuestionLogNone:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Provider    ProviderEntry     `yaml:"provider"`
	Call        CallConfig        `yaml:"call"`
	Knowledge   KnowledgeConfig   `yaml:"knowledge"`
	QuestionLog QuestionLogConfig `yaml:"question_log"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP surface listens on (e.g., ":8080").
	// Set to "-" to disable the HTTP surface.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProviderEntry configures the live speech provider.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation ("gemini", "genai"
	// or "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API. Usually given
	// as ${GEMINI_API_KEY} and resolved from the environment.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Voice is the provider's prebuilt voice name.
	Voice string `yaml:"voice"`

	// Options holds provider-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`
}

// CallConfig holds the defaults for new calls.
type CallConfig struct {
	// Language is the default response language (Telugu, Hindi or English).
	Language string `yaml:"language"`

	// Service is the default service scope.
	Service string `yaml:"service"`

	// Record enables the merged call recording.
	Record bool `yaml:"record"`

	// BlockSize is the capture block length in samples.
	BlockSize int `yaml:"block_size"`

	// InputSampleRate and OutputSampleRate configure the device contexts.
	InputSampleRate  int `yaml:"input_sample_rate"`
	OutputSampleRate int `yaml:"output_sample_rate"`

	// QuestionTimeout bounds each question log write.
	QuestionTimeout time.Duration `yaml:"question_timeout"`
}

// KnowledgeConfig selects the knowledge corpus embedded in the system prompt.
// With neither File nor PostgresDSN set, the built-in corpus is used.
type KnowledgeConfig struct {
	// File is a YAML corpus file. It is polled for changes.
	File string `yaml:"file"`

	// PostgresDSN loads additional entries from PostgreSQL.
	PostgresDSN string `yaml:"postgres_dsn"`

	// PollInterval is how often File is checked. Negative disables polling.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// QuestionLogConfig configures the question log.
type QuestionLogConfig struct {
	Backend     QuestionLogBackend `yaml:"backend"`
	PostgresDSN string             `yaml:"postgres_dsn"`
}
