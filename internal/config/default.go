package config

import (
	"github.com/yndnr/heapsight-go/internal/core/domain"
)

// Default configuration values.
const (
	DefaultCaptureRetries = 3
	DefaultWorkers        = 4
	DefaultNameReadLen    = 16

	DefaultBuiltinAttempts = 3
	DefaultRootType        = "UIRoot"

	DefaultTreeMaxDepth = 32
	DefaultTreeMaxNodes = 100000

	DefaultImageDir = "heapsight-image"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Capture: CaptureSection{
			Retries: DefaultCaptureRetries,
			Workers: DefaultWorkers,
		},
		Scan: ScanSection{
			Workers:     DefaultWorkers,
			NameReadLen: DefaultNameReadLen,
		},
		Runtime: RuntimeSection{
			BuiltinAttempts:   DefaultBuiltinAttempts,
			BuiltinWindowMask: domain.BuiltinWindowMask,
		},
		App: AppSection{
			RootType:   DefaultRootType,
			WindowMask: domain.AppWindowMask,
		},
		Layout: domain.DefaultLayout(),
		Tree: TreeSection{
			MaxDepth: DefaultTreeMaxDepth,
			MaxNodes: DefaultTreeMaxNodes,
		},
		Image: ImageSection{
			Dir: DefaultImageDir,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
