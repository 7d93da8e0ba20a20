package config

import (
	"time"

	"github.com/yndnr/heapsight-go/internal/core/domain"
)

// Config is the root configuration.
type Config struct {
	Capture CaptureSection `koanf:"capture" json:"capture" yaml:"capture"`
	Scan    ScanSection    `koanf:"scan" json:"scan" yaml:"scan"`
	Runtime RuntimeSection `koanf:"runtime" json:"runtime" yaml:"runtime"`
	App     AppSection     `koanf:"app" json:"app" yaml:"app"`
	Layout  domain.Layout  `koanf:"layout" json:"layout" yaml:"layout"`
	Tree    TreeSection    `koanf:"tree" json:"tree" yaml:"tree"`
	Image   ImageSection   `koanf:"image" json:"image" yaml:"image"`
	Log     LogSection     `koanf:"log" json:"log" yaml:"log"`
	Metrics MetricsSection `koanf:"metrics" json:"metrics" yaml:"metrics"`
}

// CaptureSection configures region capture.
type CaptureSection struct {
	// Retries is the number of bulk reads tried per region.
	Retries int `koanf:"retries" json:"retries" yaml:"retries"`
	// Workers is the capture pool size.
	Workers int `koanf:"workers" json:"workers" yaml:"workers"`
	// ReadsPerSecond paces bulk reads. Zero disables pacing.
	ReadsPerSecond float64 `koanf:"reads_per_second" json:"reads_per_second" yaml:"reads_per_second"`
	// MaxRegionSize skips larger regions. Zero keeps all.
	MaxRegionSize uint64 `koanf:"max_region_size" json:"max_region_size" yaml:"max_region_size"`
}

// ScanSection configures heuristic scans.
type ScanSection struct {
	Workers     int    `koanf:"workers" json:"workers" yaml:"workers"`
	NameReadLen uint64 `koanf:"name_read_len" json:"name_read_len" yaml:"name_read_len"`
}

// RuntimeSection configures built-in type resolution.
type RuntimeSection struct {
	BuiltinAttempts   int           `koanf:"builtin_attempts" json:"builtin_attempts" yaml:"builtin_attempts"`
	RetryDelay        time.Duration `koanf:"retry_delay" json:"retry_delay" yaml:"retry_delay"`
	BuiltinWindowMask uint64        `koanf:"builtin_window_mask" json:"builtin_window_mask" yaml:"builtin_window_mask"`
}

// AppSection configures the application root lookup.
type AppSection struct {
	RootType   string `koanf:"root_type" json:"root_type" yaml:"root_type"`
	WindowMask uint64 `koanf:"window_mask" json:"window_mask" yaml:"window_mask"`
}

// TreeSection bounds the UI tree walk.
type TreeSection struct {
	MaxDepth int `koanf:"max_depth" json:"max_depth" yaml:"max_depth"`
	MaxNodes int `koanf:"max_nodes" json:"max_nodes" yaml:"max_nodes"`
	// Keys replaces the default keys of interest when set.
	Keys []string `koanf:"keys" json:"keys,omitempty" yaml:"keys,omitempty"`
}

// ImageSection configures offline heap images.
type ImageSection struct {
	Dir string `koanf:"dir" json:"dir" yaml:"dir"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" json:"level" yaml:"level"`
	Format string `koanf:"format" json:"format" yaml:"format"`
}

// MetricsSection configures the Prometheus endpoint.
type MetricsSection struct {
	// Addr is the listen address of /metrics. Empty disables it.
	Addr string `koanf:"addr" json:"addr" yaml:"addr"`
}
