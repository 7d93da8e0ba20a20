package config

import (
	"fmt"

	"github.com/yndnr/heapsight-go/internal/infra/confloader"
)

// Load builds the configuration from the defaults, the file at path (YAML or
// TOML, optional), HEAPSIGHT_* environment variables and flags, in that order
// of increasing priority. flags uses dotted keys such as "scan.workers".
func Load(path string, flags map[string]any) (*Config, error) {
	cfg := Default()

	l := confloader.NewLoader()
	if err := l.LoadFile(path); err != nil {
		return nil, err
	}
	if err := l.LoadEnv(); err != nil {
		return nil, err
	}
	if len(flags) > 0 {
		if err := l.LoadMap(flags); err != nil {
			return nil, err
		}
	}
	if err := l.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
