// Package config loads memoryagentd configuration from a YAML file with
// environment variable overrides.
//
// Precedence (highest to lowest):
//  1. Environment variables (MEMORYAGENT_LOGGING_LEVEL, ...)
//  2. YAML config file (~/.config/memoryagent/config.yaml)
//  3. Defaults
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete daemon configuration.
type Config struct {
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	GraphStore  GraphStoreConfig  `koanf:"graphstore"`
	Scheduler   SchedulerConfig   `koanf:"scheduler"`
	Planner     PlannerConfig     `koanf:"planner"`
	Engine      EngineConfig      `koanf:"engine"`

	// Workspaces are root paths registered for watching at startup.
	Workspaces []string `koanf:"workspaces"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // trace, debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	ServiceName    string   `koanf:"service_name"`
	Endpoint       string   `koanf:"endpoint"`
	Protocol       string   `koanf:"protocol"` // grpc or http/protobuf
	Insecure       bool     `koanf:"insecure"`
	SamplingRate   float64  `koanf:"sampling_rate"`
	MetricInterval Duration `koanf:"metric_interval"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	Provider string  `koanf:"provider"` // tei or fastembed
	BaseURL  string  `koanf:"base_url"`
	Model    string  `koanf:"model"`
	APIKey   Secret  `koanf:"api_key"`
	CacheDir string  `koanf:"cache_dir"`
	RPS      float64 `koanf:"rps"` // 0 disables client-side rate limiting
	Burst    int     `koanf:"burst"`
}

// VectorStoreConfig selects and configures the vector backend.
type VectorStoreConfig struct {
	Provider string              `koanf:"provider"` // chromem or qdrant
	Chromem  ChromemStoreConfig  `koanf:"chromem"`
	Qdrant   QdrantStoreConfig   `koanf:"qdrant"`
}

// ChromemStoreConfig configures the embedded chromem backend.
type ChromemStoreConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantStoreConfig configures the Qdrant backend.
type QdrantStoreConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	UseTLS bool   `koanf:"use_tls"`
	APIKey Secret `koanf:"api_key"`
}

// GraphStoreConfig configures the embedded graph backend.
type GraphStoreConfig struct {
	Path string `koanf:"path"`
}

// SchedulerConfig tunes incremental reindexing.
type SchedulerConfig struct {
	Debounce   Duration `koanf:"debounce"`
	Workers    int      `koanf:"workers"`
	WatcherTTL Duration `koanf:"watcher_ttl"`
}

// PlannerConfig tunes query routing and fusion.
type PlannerConfig struct {
	VectorWeight float64 `koanf:"vector_weight"`
	MaxDepth     int     `koanf:"max_depth"`
	CacheSize    int     `koanf:"cache_size"`
}

// EngineConfig tunes bulk indexing.
type EngineConfig struct {
	MaxFileSizeKB int  `koanf:"max_file_size_kb"`
	Concurrency   int  `koanf:"concurrency"`
	Redact        bool `koanf:"redact"`
}

// NewDefaultConfig returns the configuration used when no file and no
// environment overrides are present.
func NewDefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			ServiceName:    "memoryagentd",
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			Insecure:       true,
			SamplingRate:   1.0,
			MetricInterval: Duration(30 * time.Second),
		},
		Embeddings: EmbeddingsConfig{
			Provider: "tei",
			BaseURL:  "http://localhost:8080",
			Model:    "BAAI/bge-small-en-v1.5",
		},
		VectorStore: VectorStoreConfig{
			Provider: "chromem",
		},
		Scheduler: SchedulerConfig{
			Debounce:   Duration(750 * time.Millisecond),
			Workers:    3,
			WatcherTTL: Duration(15 * time.Minute),
		},
		Planner: PlannerConfig{
			VectorWeight: 0.6,
			MaxDepth:     2,
			CacheSize:    256,
		},
		Engine: EngineConfig{
			MaxFileSizeKB: 512,
			Concurrency:   4,
			Redact:        true,
		},
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %q", c.Logging.Format)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.ServiceName == "" {
			return errors.New("telemetry service name required when enabled")
		}
		if c.Telemetry.Endpoint == "" {
			return errors.New("telemetry endpoint required when enabled")
		}
		switch c.Telemetry.Protocol {
		case "grpc", "http/protobuf":
		default:
			return fmt.Errorf("invalid telemetry protocol: %q", c.Telemetry.Protocol)
		}
		if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
			return fmt.Errorf("telemetry sampling rate must be in [0,1], got %v", c.Telemetry.SamplingRate)
		}
	}

	switch c.Embeddings.Provider {
	case "tei":
		if c.Embeddings.BaseURL == "" {
			return errors.New("embeddings base_url required for tei provider")
		}
	case "fastembed":
	default:
		return fmt.Errorf("invalid embeddings provider: %q", c.Embeddings.Provider)
	}
	if c.Embeddings.RPS < 0 {
		return fmt.Errorf("embeddings rps cannot be negative: %v", c.Embeddings.RPS)
	}

	switch c.VectorStore.Provider {
	case "chromem":
	case "qdrant":
		if c.VectorStore.Qdrant.Host == "" {
			return errors.New("qdrant host required")
		}
		if c.VectorStore.Qdrant.Port < 1 || c.VectorStore.Qdrant.Port > 65535 {
			return fmt.Errorf("invalid qdrant port: %d", c.VectorStore.Qdrant.Port)
		}
	default:
		return fmt.Errorf("invalid vectorstore provider: %q", c.VectorStore.Provider)
	}

	if d := c.Scheduler.Debounce.Duration(); d < 100*time.Millisecond || d > 10*time.Second {
		return fmt.Errorf("scheduler debounce must be between 100ms and 10s, got %v", d)
	}
	if c.Scheduler.Workers < 1 || c.Scheduler.Workers > 16 {
		return fmt.Errorf("scheduler workers must be between 1 and 16, got %d", c.Scheduler.Workers)
	}
	if c.Scheduler.WatcherTTL.Duration() <= 0 {
		return errors.New("scheduler watcher_ttl must be positive")
	}

	if c.Planner.VectorWeight < 0 || c.Planner.VectorWeight > 1 {
		return fmt.Errorf("planner vector_weight must be in [0,1], got %v", c.Planner.VectorWeight)
	}
	if c.Planner.MaxDepth < 1 || c.Planner.MaxDepth > 3 {
		return fmt.Errorf("planner max_depth must be between 1 and 3, got %d", c.Planner.MaxDepth)
	}
	if c.Planner.CacheSize < 0 {
		return fmt.Errorf("planner cache_size cannot be negative: %d", c.Planner.CacheSize)
	}

	if c.Engine.MaxFileSizeKB < 1 {
		return fmt.Errorf("engine max_file_size_kb must be positive, got %d", c.Engine.MaxFileSizeKB)
	}
	if c.Engine.Concurrency < 1 || c.Engine.Concurrency > 64 {
		return fmt.Errorf("engine concurrency must be between 1 and 64, got %d", c.Engine.Concurrency)
	}

	return nil
}
