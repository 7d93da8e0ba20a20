package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/heapsight-go/internal/cli/output"
	"github.com/yndnr/heapsight-go/internal/session"
)

// AttachCommand returns the attach command.
func AttachCommand() *cli.Command {
	return &cli.Command{
		Name:  "attach",
		Usage: "Run the attach pipeline and print what was resolved",
		Description: "Captures the target's memory, finds the runtime type, resolves the\n" +
			"built-in types and locates the application root type and its instances.",
		Flags:  []cli.Flag{pidFlag(), imageFlag(false), rootTypeFlag()},
		Action: attachAction,
	}
}

// LocateCommand returns the locate command, the attach pipeline against a
// saved image.
func LocateCommand() *cli.Command {
	return &cli.Command{
		Name:   "locate",
		Usage:  "Locate the application root in a saved heap image",
		Flags:  []cli.Flag{imageFlag(true), rootTypeFlag()},
		Action: attachAction,
	}
}

func attachAction(c *cli.Context) error {
	return withSession(c, func(env *Env, s *session.Session) error {
		r, err := s.Attach(c.Context)
		if err != nil {
			return err
		}
		return printReport(c, env, r)
	})
}

// printReport prints the attach report. Tables get the built-ins as a
// second table.
func printReport(c *cli.Context, env *Env, r *session.Report) error {
	if env.Format != output.FormatTable {
		return env.Print(c, r)
	}

	summary := *r
	summary.Builtins = nil
	if err := env.Print(c, summary); err != nil {
		return err
	}
	if len(r.Builtins) == 0 {
		return nil
	}

	t := &output.Table{Headers: []string{"BUILTIN", "ADDR"}}
	for _, b := range r.Builtins {
		t.AddRow(b.Name, b.Addr.String())
	}
	if _, err := c.App.Writer.Write([]byte("\n")); err != nil {
		return err
	}
	return t.Render(c.App.Writer)
}
