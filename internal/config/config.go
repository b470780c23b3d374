package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the global configuration for the stream monitor.
// All sketch parameters are fixed at construction; there is no runtime
// mutation surface.
type Config struct {
	Sketch   SketchConfig   `yaml:"sketch"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Report   ReportConfig   `yaml:"report"`
	Alert    AlertConfig    `yaml:"alert"`
	Producer ProducerConfig `yaml:"producer"`
	Source   SourceConfig   `yaml:"source"`
	Database DatabaseConfig `yaml:"database"`
	Notify   NotifyConfig   `yaml:"notify"`
}

type SketchConfig struct {
	HLLPrecision      int       `yaml:"hll_precision"`
	CMSketchWidth     int       `yaml:"cm_sketch_width"`
	CMSketchDepth     int       `yaml:"cm_sketch_depth"`
	DigestCompression float64   `yaml:"digest_compression"`
	Quantiles         []float64 `yaml:"quantiles"`
}

type PipelineConfig struct {
	QueueSize int `yaml:"queue_size"`

	// DropPolicy is either "block" (producers wait, natural backpressure)
	// or "drop" (events are discarded with a counted drop).
	DropPolicy string `yaml:"drop_policy"`

	// ShutdownGrace bounds how long the loop keeps draining buffered
	// events after cancellation before abandoning the rest.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`

	MaxKeyLength int `yaml:"max_key_length"`
}

type ReportConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type AlertConfig struct {
	HistorySize       int     `yaml:"history_size"`
	StdDevMultiplier  float64 `yaml:"stddev_multiplier"`
	MinBaselineMillis float64 `yaml:"min_baseline_ms"`
}

type ProducerConfig struct {
	Users        int           `yaml:"users"`
	ValueMean    float64       `yaml:"value_mean"`
	ValueStdDev  float64       `yaml:"value_stddev"`
	MinLatencyMS float64       `yaml:"min_latency_ms"`
	MaxLatencyMS float64       `yaml:"max_latency_ms"`
	Interval     time.Duration `yaml:"interval"`
	Seed         int64         `yaml:"seed"`
}

type SourceConfig struct {
	// Type selects the event source: "simulator" or "postgres".
	Type        string `yaml:"type"`
	SlotName    string `yaml:"slot_name"`
	Publication string `yaml:"publication"`
	ValueColumn string `yaml:"value_column"`
	Backfill    bool   `yaml:"backfill"`
	Table       string `yaml:"table"`
	KeyColumn   string `yaml:"key_column"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

type NotifyConfig struct {
	// WebhookURL receives alert JSON; empty disables notification.
	WebhookURL string `yaml:"webhook_url"`
}

// Load reads the configuration from the specified file path and applies
// defaults for anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file overrides it. Sketch
// defaults mirror the dimensions the pipeline was tuned with.
func Default() *Config {
	return &Config{
		Sketch: SketchConfig{
			HLLPrecision:      14,
			CMSketchWidth:     1000,
			CMSketchDepth:     5,
			DigestCompression: 100,
			Quantiles:         []float64{0.5, 0.95, 0.99},
		},
		Pipeline: PipelineConfig{
			QueueSize:     1024,
			DropPolicy:    "block",
			ShutdownGrace: 2 * time.Second,
			MaxKeyLength:  256,
		},
		Report: ReportConfig{
			Interval: 10 * time.Second,
		},
		Alert: AlertConfig{
			HistorySize:       30,
			StdDevMultiplier:  2.0,
			MinBaselineMillis: 50.0,
		},
		Producer: ProducerConfig{
			Users:        5000,
			ValueMean:    50,
			ValueStdDev:  10,
			MinLatencyMS: 20,
			MaxLatencyMS: 60,
			Interval:     10 * time.Millisecond,
		},
		Source: SourceConfig{
			Type: "simulator",
		},
	}
}

// Validate rejects structurally invalid settings. Sketch parameters get the
// full check at construction; this catches the rest early.
func (c *Config) Validate() error {
	if c.Pipeline.QueueSize <= 0 {
		return fmt.Errorf("pipeline queue_size must be positive, got %d", c.Pipeline.QueueSize)
	}
	if c.Pipeline.DropPolicy != "block" && c.Pipeline.DropPolicy != "drop" {
		return fmt.Errorf("pipeline drop_policy must be %q or %q, got %q", "block", "drop", c.Pipeline.DropPolicy)
	}
	if c.Pipeline.ShutdownGrace <= 0 {
		return fmt.Errorf("pipeline shutdown_grace must be positive, got %s", c.Pipeline.ShutdownGrace)
	}
	if len(c.Sketch.Quantiles) == 0 {
		return fmt.Errorf("sketch quantiles must not be empty")
	}
	for _, q := range c.Sketch.Quantiles {
		if q < 0 || q > 1 {
			return fmt.Errorf("sketch quantile %g outside [0, 1]", q)
		}
	}
	switch c.Source.Type {
	case "simulator", "postgres":
	default:
		return fmt.Errorf("source type must be %q or %q, got %q", "simulator", "postgres", c.Source.Type)
	}
	if c.Source.Type == "postgres" && c.Source.SlotName == "" {
		return fmt.Errorf("source slot_name is required for the postgres source")
	}
	return nil
}
