package command

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/heapsight-go/internal/core/domain"
	"github.com/yndnr/heapsight-go/internal/session"
)

// DictCommand returns the dict command.
func DictCommand() *cli.Command {
	return &cli.Command{
		Name:   "dict",
		Usage:  "Decode the dict at an address",
		Flags:  []cli.Flag{pidFlag(), imageFlag(false), addrFlag()},
		Action: dictAction,
	}
}

// TypeNameCommand returns the typename command.
func TypeNameCommand() *cli.Command {
	return &cli.Command{
		Name:   "typename",
		Usage:  "Resolve the type name of the object at an address",
		Flags:  []cli.Flag{pidFlag(), imageFlag(false), addrFlag()},
		Action: typeNameAction,
	}
}

// prepare captures memory and resolves the built-ins so values can be
// typed. A runtime that cannot be resolved leaves objects untyped.
func prepare(c *cli.Context, env *Env, s *session.Session) error {
	if _, err := s.Capture(c.Context); err != nil {
		return err
	}
	if _, err := s.FindRuntimeType(c.Context); err != nil {
		env.Logger.Warn("runtime not resolved, objects are untyped", "error", err)
		return nil
	}
	if _, err := s.ResolveBuiltinTypes(c.Context); err != nil {
		env.Logger.Warn("builtin types not resolved, objects are untyped", "error", err)
	}
	return nil
}

// dictRow is one decoded dict entry.
type dictRow struct {
	Key       domain.Addr `json:"key" yaml:"key"`
	KeyType   string      `json:"key_type" yaml:"key_type"`
	KeyText   string      `json:"key_text,omitempty" yaml:"key_text,omitempty"`
	Value     domain.Addr `json:"value" yaml:"value"`
	ValueType string      `json:"value_type" yaml:"value_type"`
}

func dictAction(c *cli.Context) error {
	addr, err := parseAddr(c)
	if err != nil {
		return err
	}

	return withSession(c, func(env *Env, s *session.Session) error {
		if err := prepare(c, env, s); err != nil {
			return err
		}
		rows, err := dictRows(c.Context, s, addr)
		if err != nil {
			return err
		}
		return env.Print(c, rows)
	})
}

// dictRows decodes the dict at addr and types its keys and values.
func dictRows(ctx context.Context, s *session.Session, addr domain.Addr) ([]dictRow, error) {
	entries, err := s.DecodeDict(ctx, addr)
	if err != nil {
		return nil, err
	}

	addrs := make([]domain.Addr, 0, 2*len(entries))
	for _, e := range entries {
		addrs = append(addrs, e.Key, e.Value)
	}
	names, err := s.TypeNames(ctx, addrs)
	if err != nil {
		return nil, err
	}

	rows := make([]dictRow, len(entries))
	for i, e := range entries {
		rows[i] = dictRow{
			Key:       e.Key,
			KeyType:   names[e.Key],
			Value:     e.Value,
			ValueType: names[e.Value],
		}
		if text, err := s.ReadText(ctx, e.Key); err == nil {
			rows[i].KeyText = text
		}
	}
	return rows, nil
}

func typeNameAction(c *cli.Context) error {
	addr, err := parseAddr(c)
	if err != nil {
		return err
	}

	return withSession(c, func(env *Env, s *session.Session) error {
		if err := prepare(c, env, s); err != nil {
			return err
		}
		name, err := s.ResolveTypeName(c.Context, addr)
		if err != nil {
			return err
		}
		return env.Print(c, domain.TypeName{Addr: addr, Name: name})
	})
}
