package command

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/heapsight-go/internal/cli/output"
	"github.com/yndnr/heapsight-go/internal/config"
	"github.com/yndnr/heapsight-go/internal/infra/buildinfo"
	"github.com/yndnr/heapsight-go/internal/telemetry/logger"
)

const envKey = "env"

// Env is the state shared by every command, built once before the command
// runs.
type Env struct {
	Config     *config.Config
	ConfigPath string
	Format     output.Format
	Logger     *slog.Logger
}

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:     "heapsight",
		Usage:    "Inspect the object heap of an embedded Python 2.7 runtime",
		Version:  buildinfo.String(),
		Flags:    globalFlags(),
		Metadata: map[string]any{},
		Commands: []*cli.Command{
			AttachCommand(),
			LocateCommand(),
			TreeCommand(),
			ImageCommand(),
			DictCommand(),
			TypeNameCommand(),
			ShellCommand(),
			WatchCommand(),
			VersionCommand(),
		},
		Before: setup,
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Configuration file (YAML or TOML)",
			EnvVars: []string{"HEAPSIGHT_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "Log format: text, json",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   string(output.FormatTable),
		},
		&cli.IntFlag{
			Name:    "workers",
			Aliases: []string{"w"},
			Usage:   "Worker count for capture and scans (1-16)",
		},
	}
}

// overrides maps the global flags that were set onto configuration keys.
func overrides(c *cli.Context) map[string]any {
	m := map[string]any{}
	if c.IsSet("log-level") {
		m["log.level"] = c.String("log-level")
	}
	if c.IsSet("log-format") {
		m["log.format"] = c.String("log-format")
	}
	if c.IsSet("workers") {
		m["capture.workers"] = c.Int("workers")
		m["scan.workers"] = c.Int("workers")
	}
	return m
}

// setup loads the configuration and the logger.
func setup(c *cli.Context) error {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return err
	}

	path := c.String("config")
	cfg, err := config.Load(path, overrides(c))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: c.App.ErrWriter,
	})

	c.App.Metadata[envKey] = &Env{
		Config:     cfg,
		ConfigPath: path,
		Format:     format,
		Logger:     log,
	}
	return nil
}

// GetEnv retrieves the command environment from context.
func GetEnv(c *cli.Context) (*Env, error) {
	if env, ok := c.App.Metadata[envKey].(*Env); ok {
		return env, nil
	}
	return nil, errors.New("command environment not initialized")
}

// Print writes data in the selected output format.
func (e *Env) Print(c *cli.Context, data any) error {
	return output.NewFormatter(e.Format).Format(c.App.Writer, data)
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
