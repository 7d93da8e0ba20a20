package command

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/heapsight-go/internal/cli/output"
	"github.com/yndnr/heapsight-go/internal/core/domain"
	"github.com/yndnr/heapsight-go/internal/session"
	"github.com/yndnr/heapsight-go/internal/uitree"
)

// TreeCommand returns the tree command.
func TreeCommand() *cli.Command {
	return &cli.Command{
		Name:  "tree",
		Usage: "Attach and print the UI tree under each root instance",
		Flags: []cli.Flag{
			pidFlag(),
			imageFlag(false),
			rootTypeFlag(),
			&cli.StringSliceFlag{
				Name:  "root",
				Usage: "Read from this address instead of the located root instances (repeatable)",
			},
			&cli.IntFlag{
				Name:  "max-depth",
				Usage: "Depth bound (default from tree.max_depth)",
			},
		},
		Action: treeAction,
	}
}

func treeAction(c *cli.Context) error {
	var roots []domain.Addr
	for _, s := range c.StringSlice("root") {
		a, err := domain.ParseAddr(s)
		if err != nil {
			return err
		}
		roots = append(roots, a)
	}

	return withSession(c, func(env *Env, s *session.Session) error {
		if _, err := s.Attach(c.Context); err != nil {
			return err
		}
		nodes, err := s.ReadTree(c.Context, roots...)
		if len(nodes) == 0 && err != nil {
			return err
		}
		if err != nil {
			env.Logger.Warn("some trees could not be read", "error", err)
		}

		return printTrees(c, env, nodes)
	})
}

// printTrees prints nodes in the output format, or as indented text for
// tables.
func printTrees(c *cli.Context, env *Env, nodes []*uitree.Node) error {
	if env.Format != output.FormatTable {
		return env.Print(c, nodes)
	}
	for _, n := range nodes {
		writeTree(c.App.Writer, n, 0)
	}
	return nil
}

// writeTree prints one node per line, children indented below their parent.
func writeTree(w io.Writer, n *uitree.Node, depth int) {
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(n.Addr.String())
	b.WriteByte(' ')
	b.WriteString(n.Type)
	if n.Truncated {
		b.WriteString(" [truncated]")
	}

	keys := make([]string, 0, len(n.Fields))
	for k := range n.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fieldText(n.Fields[k]))
	}
	fmt.Fprintln(w, b.String())

	for _, ch := range n.Children {
		writeTree(w, ch, depth+1)
	}
}

// fieldText renders a decoded field value on one line.
func fieldText(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case string:
		return fmt.Sprintf("%q", x)
	case *uitree.Node:
		if x == nil {
			return "None"
		}
		return "<" + x.Type + " " + x.Addr.String() + ">"
	case uitree.Ref:
		if x.Type == "" {
			return "<" + x.Addr.String() + ">"
		}
		return "<" + x.Type + " " + x.Addr.String() + ">"
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = fieldText(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + fieldText(x[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(x)
	}
}
