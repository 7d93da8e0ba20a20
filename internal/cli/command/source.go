package command

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/heapsight-go/internal/config"
	"github.com/yndnr/heapsight-go/internal/core/domain"
	"github.com/yndnr/heapsight-go/internal/memory/procmem"
	"github.com/yndnr/heapsight-go/internal/session"
	"github.com/yndnr/heapsight-go/internal/storage/image"
)

var errNoSource = errors.New("either --pid or --image is required")

func pidFlag() cli.Flag {
	return &cli.IntFlag{
		Name:    "pid",
		Aliases: []string{"p"},
		Usage:   "Process ID of the target",
	}
}

func imageFlag(required bool) cli.Flag {
	return &cli.StringFlag{
		Name:     "image",
		Aliases:  []string{"i"},
		Usage:    "Directory of a saved heap image",
		Required: required,
	}
}

func rootTypeFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "root-type",
		Usage: "Type name of the application root (default from app.root_type)",
	}
}

func addrFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "addr",
		Aliases:  []string{"a"},
		Usage:    "Object address (decimal or 0x-prefixed hex)",
		Required: true,
	}
}

// target is an opened memory source.
type target struct {
	source procmem.Source
	store  *image.Store
	close  func() error
}

// openTarget opens the process named by --pid or the image named by --image.
func openTarget(c *cli.Context, env *Env) (*target, error) {
	switch {
	case c.String("image") != "":
		st, err := image.Open(c.String("image"), image.WithLogger(env.Logger))
		if err != nil {
			return nil, err
		}
		return &target{source: st, store: st, close: st.Close}, nil
	case c.Int("pid") > 0:
		p, err := procmem.Open(c.Int("pid"), env.Logger)
		if err != nil {
			return nil, fmt.Errorf("open process %d: %w", c.Int("pid"), err)
		}
		return &target{source: p, close: p.Close}, nil
	default:
		return nil, errNoSource
	}
}

// commandConfig applies the per-command flags --root-type and --max-depth
// to a copy of the configuration.
func commandConfig(c *cli.Context, env *Env) *config.Config {
	cfg := *env.Config
	if name := c.String("root-type"); name != "" {
		cfg.App.RootType = name
	}
	if n := c.Int("max-depth"); n > 0 {
		cfg.Tree.MaxDepth = n
	}
	return &cfg
}

// newSession creates a session over t.
func newSession(c *cli.Context, env *Env, t *target, opts ...session.Option) *session.Session {
	opts = append([]session.Option{
		session.WithConfig(commandConfig(c, env)),
		session.WithLogger(env.Logger),
	}, opts...)
	return session.New(t.source, opts...)
}

// withSession opens the target, runs fn with a fresh session and releases
// both afterwards.
func withSession(c *cli.Context, fn func(env *Env, s *session.Session) error) error {
	env, err := GetEnv(c)
	if err != nil {
		return err
	}
	t, err := openTarget(c, env)
	if err != nil {
		return err
	}
	defer t.close()

	s := newSession(c, env, t)
	defer s.Drop()
	return fn(env, s)
}

func parseAddr(c *cli.Context) (domain.Addr, error) {
	return domain.ParseAddr(c.String("addr"))
}
