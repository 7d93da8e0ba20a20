package session

import (
	"context"

	"github.com/yndnr/heapsight-go/internal/core/domain"
	"github.com/yndnr/heapsight-go/internal/locator"
	"github.com/yndnr/heapsight-go/internal/pyruntime"
	"github.com/yndnr/heapsight-go/internal/uitree"
)

// reader decodes objects of the current snapshot. Built-in type checks are
// enabled once the built-ins are resolved.
func (s *Session) reader() (*pyruntime.Reader, error) {
	snap, err := s.current()
	if err != nil {
		return nil, err
	}
	return pyruntime.NewReader(snap, s.resolver.Builtins(), s.types,
		pyruntime.WithReaderLayout(s.cfg.Layout),
		pyruntime.WithPool(s.scanPool),
		pyruntime.WithReaderMetrics(s.metrics),
		pyruntime.WithReaderLogger(s.log)), nil
}

// ResolveTypeName returns the type name of the object at addr. Names of
// user-defined types are cached for the life of the session.
func (s *Session) ResolveTypeName(ctx context.Context, addr domain.Addr) (string, error) {
	done, err := s.begin(ctx)
	if err != nil {
		return "", err
	}
	defer done()

	r, err := s.reader()
	if err != nil {
		return "", err
	}
	name, ok := r.ResolveTypeName(addr)
	if !ok {
		return "", domain.ErrCorruptStructure.WithDetails(addr.String() + ": type name unresolved")
	}
	return name, nil
}

// TypeNames resolves the type names of many objects concurrently. Objects
// whose name cannot be read are left out.
func (s *Session) TypeNames(ctx context.Context, addrs []domain.Addr) (map[domain.Addr]string, error) {
	done, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	r, err := s.reader()
	if err != nil {
		return nil, err
	}
	return r.TypeNames(addrs), nil
}

// ReadText decodes the str or unicode object at addr.
func (s *Session) ReadText(ctx context.Context, addr domain.Addr) (string, error) {
	done, err := s.begin(ctx)
	if err != nil {
		return "", err
	}
	defer done()

	if err := s.machine.Require(locator.BuiltinsResolved); err != nil {
		return "", err
	}
	r, err := s.reader()
	if err != nil {
		return "", err
	}
	return r.ReadText(addr)
}

// DecodeDict decodes the dict at addr into its non-null entries.
func (s *Session) DecodeDict(ctx context.Context, addr domain.Addr) ([]domain.DictEntry, error) {
	done, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	r, err := s.reader()
	if err != nil {
		return nil, err
	}
	return r.DecodeDict(addr)
}

// DecodeStrDict decodes a dict with str keys, as found behind instance
// attributes.
func (s *Session) DecodeStrDict(ctx context.Context, addr domain.Addr) (map[string]domain.Addr, error) {
	done, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	if err := s.machine.Require(locator.BuiltinsResolved); err != nil {
		return nil, err
	}
	r, err := s.reader()
	if err != nil {
		return nil, err
	}
	return r.DecodeStrDict(addr)
}

// ReadTree reads the UI trees rooted at roots. With no roots it reads from
// every located root instance. Trees that cannot be read are left out and the
// first error is returned with the rest.
func (s *Session) ReadTree(ctx context.Context, roots ...domain.Addr) ([]*uitree.Node, error) {
	done, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	if len(roots) == 0 {
		if err := s.machine.Require(locator.RootInstancesResolved); err != nil {
			return nil, err
		}
		roots = s.locator.Instances().Sorted()
	} else if err := s.machine.Require(locator.BuiltinsResolved); err != nil {
		return nil, err
	}

	r, err := s.reader()
	if err != nil {
		return nil, err
	}
	tree := uitree.New(r,
		uitree.WithKeys(s.cfg.Tree.Keys),
		uitree.WithMaxDepth(s.cfg.Tree.MaxDepth),
		uitree.WithMaxNodes(s.cfg.Tree.MaxNodes),
		uitree.WithPool(s.scanPool),
		uitree.WithMetrics(s.metrics),
		uitree.WithLogger(s.log))
	return tree.ReadAll(roots)
}
