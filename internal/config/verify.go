package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yndnr/heapsight-go/internal/infra/workpool"
)

// Verify validates the configuration. All problems are reported together.
func Verify(cfg *Config) error {
	var errs []error
	errs = append(errs, verifyCapture(&cfg.Capture)...)
	errs = append(errs, verifyScan(&cfg.Scan)...)
	errs = append(errs, verifyRuntime(&cfg.Runtime, &cfg.App)...)
	errs = append(errs, verifyTree(&cfg.Tree)...)
	errs = append(errs, verifyLog(&cfg.Log)...)
	if err := cfg.Layout.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func verifyWorkers(key string, n int) error {
	if n < 1 || n > workpool.MaxWorkers {
		return fmt.Errorf("%s must be between 1 and %d, got %d", key, workpool.MaxWorkers, n)
	}
	return nil
}

func verifyCapture(cfg *CaptureSection) []error {
	var errs []error
	if cfg.Retries < 1 {
		errs = append(errs, errors.New("capture.retries must be at least 1"))
	}
	if err := verifyWorkers("capture.workers", cfg.Workers); err != nil {
		errs = append(errs, err)
	}
	if cfg.ReadsPerSecond < 0 {
		errs = append(errs, errors.New("capture.reads_per_second must not be negative"))
	}
	return errs
}

func verifyScan(cfg *ScanSection) []error {
	var errs []error
	if err := verifyWorkers("scan.workers", cfg.Workers); err != nil {
		errs = append(errs, err)
	}
	if cfg.NameReadLen < 1 || cfg.NameReadLen > 255 {
		errs = append(errs, fmt.Errorf("scan.name_read_len must be between 1 and 255, got %d", cfg.NameReadLen))
	}
	return errs
}

func verifyRuntime(rt *RuntimeSection, app *AppSection) []error {
	var errs []error
	if rt.BuiltinAttempts < 1 {
		errs = append(errs, errors.New("runtime.builtin_attempts must be at least 1"))
	}
	if rt.RetryDelay < 0 {
		errs = append(errs, errors.New("runtime.retry_delay must not be negative"))
	}
	if rt.BuiltinWindowMask == 0 {
		errs = append(errs, errors.New("runtime.builtin_window_mask must not be zero"))
	}
	if strings.TrimSpace(app.RootType) == "" {
		errs = append(errs, errors.New("app.root_type is required"))
	}
	if app.WindowMask == 0 {
		errs = append(errs, errors.New("app.window_mask must not be zero"))
	}
	return errs
}

func verifyTree(cfg *TreeSection) []error {
	var errs []error
	if cfg.MaxDepth < 1 {
		errs = append(errs, errors.New("tree.max_depth must be at least 1"))
	}
	if cfg.MaxNodes < 1 {
		errs = append(errs, errors.New("tree.max_nodes must be at least 1"))
	}
	return errs
}

func verifyLog(cfg *LogSection) []error {
	var errs []error
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Level))
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not json or text", cfg.Format))
	}
	return errs
}
