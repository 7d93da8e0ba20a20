package command

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/heapsight-go/internal/cli/repl"
	"github.com/yndnr/heapsight-go/internal/core/domain"
	"github.com/yndnr/heapsight-go/internal/session"
)

// ShellCommand returns the shell command.
func ShellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Attach once and inspect the snapshot interactively",
		Flags: []cli.Flag{
			pidFlag(),
			imageFlag(false),
			rootTypeFlag(),
			&cli.StringFlag{
				Name:  "history",
				Usage: "History file (empty keeps history in memory)",
				Value: repl.DefaultHistoryFile(),
			},
		},
		Action: shellAction,
	}
}

func shellAction(c *cli.Context) error {
	return withSession(c, func(env *Env, s *session.Session) error {
		if _, err := s.Attach(c.Context); err != nil {
			env.Logger.Warn("attach incomplete", "error", err)
		}

		history := repl.NewHistory(c.String("history"), repl.DefaultHistorySize)
		if err := history.Load(); err != nil {
			env.Logger.Warn("history not loaded", "error", err)
		}
		defer func() {
			if err := history.Save(); err != nil {
				env.Logger.Warn("history not saved", "error", err)
			}
		}()

		r := repl.New(shellCommands(c, env, s),
			repl.WithIO(c.App.Reader, c.App.Writer),
			repl.WithHistory(history),
		)
		return r.Run(c.Context)
	})
}

// shellCommands binds the shell commands to one session.
func shellCommands(c *cli.Context, env *Env, s *session.Session) []repl.Command {
	return []repl.Command{
		{
			Name:  "report",
			Usage: "Print the attach report",
			Run: func(context.Context, []string) error {
				return printReport(c, env, s.Report())
			},
		},
		{
			Name:  "attach",
			Usage: "Run the resolution chain on the current snapshot",
			Run: func(ctx context.Context, _ []string) error {
				r, err := s.Attach(ctx)
				if err != nil {
					return err
				}
				return printReport(c, env, r)
			},
		},
		{
			Name:  "refresh",
			Usage: "Capture memory again and relocate the root instances",
			Run: func(ctx context.Context, _ []string) error {
				if err := reattach(ctx, s); err != nil {
					return err
				}
				return printReport(c, env, s.Report())
			},
		},
		{
			Name:  "stats",
			Usage: "Show the snapshot size and the type cache size",
			Run: func(context.Context, []string) error {
				n, size := s.Stats()
				return env.Print(c, snapshotStats{Regions: n, Bytes: size, CachedTypes: len(s.UserTypes())})
			},
		},
		{
			Name:  "types",
			Usage: "List the user-defined types named so far",
			Run: func(context.Context, []string) error {
				return env.Print(c, s.UserTypes())
			},
		},
		{
			Name:  "typename",
			Usage: "typename ADDR: resolve the type name of an object",
			Run: func(ctx context.Context, args []string) error {
				addr, err := oneAddr(args)
				if err != nil {
					return err
				}
				name, err := s.ResolveTypeName(ctx, addr)
				if err != nil {
					return err
				}
				return env.Print(c, domain.TypeName{Addr: addr, Name: name})
			},
		},
		{
			Name:  "text",
			Usage: "text ADDR: decode a str or unicode object",
			Run: func(ctx context.Context, args []string) error {
				addr, err := oneAddr(args)
				if err != nil {
					return err
				}
				text, err := s.ReadText(ctx, addr)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(c.App.Writer, "%q\n", text)
				return err
			},
		},
		{
			Name:  "dict",
			Usage: "dict ADDR: decode a dict",
			Run: func(ctx context.Context, args []string) error {
				addr, err := oneAddr(args)
				if err != nil {
					return err
				}
				rows, err := dictRows(ctx, s, addr)
				if err != nil {
					return err
				}
				return env.Print(c, rows)
			},
		},
		{
			Name:  "tree",
			Usage: "tree [ADDR...]: print the UI tree under the root instances or the given objects",
			Run: func(ctx context.Context, args []string) error {
				roots := make([]domain.Addr, 0, len(args))
				for _, a := range args {
					addr, err := domain.ParseAddr(a)
					if err != nil {
						return err
					}
					roots = append(roots, addr)
				}
				nodes, err := s.ReadTree(ctx, roots...)
				if len(nodes) == 0 && err != nil {
					return err
				}
				if err != nil {
					env.Logger.Warn("some trees could not be read", "error", err)
				}
				return printTrees(c, env, nodes)
			},
		},
	}
}

// snapshotStats is the output of the stats shell command.
type snapshotStats struct {
	Regions     int    `json:"regions" yaml:"regions"`
	Bytes       uint64 `json:"bytes" yaml:"bytes"`
	CachedTypes int    `json:"cached_types" yaml:"cached_types"`
}

func oneAddr(args []string) (domain.Addr, error) {
	if len(args) != 1 {
		return 0, domain.ErrInvalidArgument.WithDetails("expected one address")
	}
	return domain.ParseAddr(args[0])
}
