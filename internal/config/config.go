// Package config loads the service's YAML settings file, the teacher's own
// ambient-config style: os.ExpandEnv over the raw bytes before parsing, then
// strict decode via gopkg.in/yaml.v3, with the CLAUDE_MEM_* environment
// variables able to override the LLM provider, API key and model settings.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LLMConfig configures the provider-selecting LLM client.
type LLMConfig struct {
	Provider         string `yaml:"provider"`
	OpenRouterAPIKey string `yaml:"openrouter_api_key"`
	OpenRouterModel  string `yaml:"openrouter_model"`
	GeminiAPIKey     string `yaml:"gemini_api_key"`
	GeminiModel      string `yaml:"gemini_model"`
}

// QueueConfig configures the durable event queue.
type QueueConfig struct {
	Path            string        `yaml:"path"`
	MaxRetries      int           `yaml:"max_retries"`
	ToolResponseCap int           `yaml:"tool_response_cap"`
	StallThreshold  time.Duration `yaml:"stall_threshold"`
}

// SessionStoreConfig configures the SessionStore collaborator.
type SessionStoreConfig struct {
	Path string `yaml:"path"`
}

// WorkerConfig configures tick cadence shared by both summarizer workers.
type WorkerConfig struct {
	TickSchedule  string        `yaml:"tick_schedule"`
	BatchSize     int           `yaml:"batch_size"`
	GCEveryNTicks int           `yaml:"gc_every_n_ticks"`
	GCRetention   time.Duration `yaml:"gc_retention"`
}

// ReaperConfig configures the Orphan Reaper.
type ReaperConfig struct {
	Signature       string        `yaml:"signature"`
	MaxAge          time.Duration `yaml:"max_age"`
	Interval        time.Duration `yaml:"interval"`
	GracefulTimeout time.Duration `yaml:"graceful_timeout"`
}

// HTTPConfig configures the intake HTTP server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// TelemetryConfig configures tracing and metrics. An empty Endpoint keeps
// tracing local: spans print to stdout instead of shipping to a collector.
type TelemetryConfig struct {
	TracingEnabled bool    `yaml:"tracing_enabled"`
	MetricsAddr    string  `yaml:"metrics_addr"`
	Endpoint       string  `yaml:"endpoint"`
	SamplingRate   float64 `yaml:"sampling_rate"`
}

// ModeConfig names the active prompt-fragment bundle and its preamble text.
type ModeConfig struct {
	Name     string `yaml:"name"`
	Preamble string `yaml:"preamble"`
}

// Config is the root settings document.
type Config struct {
	LLM           LLMConfig          `yaml:"llm"`
	Queue         QueueConfig        `yaml:"queue"`
	SessionStore  SessionStoreConfig `yaml:"session_store"`
	EventWorker   WorkerConfig       `yaml:"event_worker"`
	SummaryWorker WorkerConfig       `yaml:"summary_worker"`
	Reaper        ReaperConfig       `yaml:"reaper"`
	HTTP          HTTPConfig         `yaml:"http"`
	Telemetry     TelemetryConfig    `yaml:"telemetry"`
	Mode          ModeConfig         `yaml:"mode"`
}

// Default returns a Config with every field at its operational default,
// matching the package-level defaults each component would otherwise apply
// on its own zero value.
func Default() Config {
	return Config{
		Queue: QueueConfig{
			Path:            "claude-mem-queue.db",
			MaxRetries:      3,
			ToolResponseCap: 50_000,
			StallThreshold:  5 * time.Minute,
		},
		SessionStore: SessionStoreConfig{
			Path: "claude-mem-sessions.db",
		},
		EventWorker: WorkerConfig{
			TickSchedule:  "*/10 * * * * *",
			BatchSize:     10,
			GCEveryNTicks: 100,
			GCRetention:   time.Hour,
		},
		SummaryWorker: WorkerConfig{
			TickSchedule:  "*/10 * * * * *",
			BatchSize:     5,
			GCEveryNTicks: 100,
			GCRetention:   time.Hour,
		},
		Reaper: ReaperConfig{
			Signature:       "claude",
			MaxAge:          30 * time.Minute,
			Interval:        5 * time.Minute,
			GracefulTimeout: 5 * time.Second,
		},
		HTTP: HTTPConfig{Addr: "127.0.0.1:37777"},
		Telemetry: TelemetryConfig{
			SamplingRate: 1.0,
		},
		Mode: ModeConfig{
			Name:     "default",
			Preamble: "Summarize the tool activity below into zero or more observations.",
		},
	}
}

// Load reads path, expands $VAR / ${VAR} references against the process
// environment, and strict-decodes the result over Default(). An empty path
// skips the file, so callers that only need environment overrides can pass
// "". A non-empty path that cannot be read is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		expanded := os.ExpandEnv(string(data))

		decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if err := decoder.Decode(new(struct{})); err != io.EOF {
			return Config{}, fmt.Errorf("config: %s contains more than one YAML document", path)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides lets deployment environment variables win over whatever
// the settings file says, the same precedence order the teacher's service
// config uses for secrets that should never live in a checked-in file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CLAUDE_MEM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("CLAUDE_MEM_OPENROUTER_API_KEY"); v != "" {
		cfg.LLM.OpenRouterAPIKey = v
	}
	if v := os.Getenv("CLAUDE_MEM_OPENROUTER_MODEL"); v != "" {
		cfg.LLM.OpenRouterModel = v
	}
	if v := os.Getenv("CLAUDE_MEM_GEMINI_API_KEY"); v != "" {
		cfg.LLM.GeminiAPIKey = v
	}
	if v := os.Getenv("CLAUDE_MEM_GEMINI_MODEL"); v != "" {
		cfg.LLM.GeminiModel = v
	}
}
