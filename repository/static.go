// Package repository provides [depresolve.MetadataProvider] implementations: an in-memory
// repository that can be populated programmatically or from YAML descriptors, and a provider that
// asks an external command for metadata.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"testing"

	dr "github.com/rhansen/depresolve"
	"github.com/rhansen/depresolve/internal/version"
)

// ErrNotFound is returned when no component matches a selector.
var ErrNotFound = errors.New("no matching component")

// A Static is an in-memory repository of component metadata.  A Static is safe for concurrent use.
type Static struct {
	mu      sync.RWMutex
	modules map[dr.ModuleIdentity][]*dr.ComponentMetadata // Oldest version first.
}

var _ dr.MetadataProvider = (*Static)(nil)

// NewStatic returns an empty repository.
func NewStatic() *Static {
	return &Static{modules: map[dr.ModuleIdentity][]*dr.ComponentMetadata{}}
}

// Add adds component metadata to the repository.  It is an error to add the same component twice.
func (s *Static) Add(md *dr.ComponentMetadata) error {
	if err := md.Check(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.modules[md.Id.Module]
	i, found := slices.BinarySearchFunc(cs, md.Id, func(c *dr.ComponentMetadata, id dr.ComponentIdentity) int {
		return dr.ComponentIdentityCompare(c.Id, id)
	})
	if found {
		return fmt.Errorf("component %v already in repository", md.Id)
	}
	s.modules[md.Id.Module] = slices.Insert(cs, i, md)
	return nil
}

// AddComponent is a convenience wrapper around [NewComponent] and [Static.Add].
func (s *Static) AddComponent(id string, opts ...Option) error {
	md, err := NewComponent(id, opts...)
	if err != nil {
		return err
	}
	return s.Add(md)
}

// Lookup returns the metadata of the given component.
func (s *Static) Lookup(id dr.ComponentIdentity) (*dr.ComponentMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, md := range s.modules[id.Module] {
		if md.Id == id {
			return md, nil
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrNotFound, id)
}

// Versions returns the known versions of the given module, oldest first.
func (s *Static) Versions(m dr.ModuleIdentity) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versionsLocked(m)
}

// Resolve returns the newest component matching the selector.
func (s *Static) Resolve(ctx context.Context, sel dr.ModuleSelector) (*dr.ComponentMetadata, error) {
	if err := context.Cause(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs := s.modules[sel.Module]
	for _, md := range slices.Backward(cs) {
		if version.Accepts(sel.Version, md.Id.Version) {
			slog.DebugContext(ctx, "static repository resolved selector", "selector", sel, "component", md.Id)
			return md, nil
		}
	}
	return nil, fmt.Errorf("%w for %v (known versions: %v)", ErrNotFound, sel, s.versionsLocked(sel.Module))
}

func (s *Static) versionsLocked(m dr.ModuleIdentity) []string {
	var vs []string
	for _, md := range s.modules[m] {
		vs = append(vs, md.Id.Version)
	}
	return vs
}

// A TestStatic is like [Static] but with a more ergonomic interface meant for unit tests.
type TestStatic struct {
	*Static
	t *testing.T
}

func NewTestStatic(t *testing.T) *TestStatic {
	t.Helper()
	return &TestStatic{Static: NewStatic(), t: t}
}

func (s *TestStatic) Add(id string, opts ...Option) *TestStatic {
	s.t.Helper()
	if err := s.AddComponent(id, opts...); err != nil {
		s.t.Fatal(err)
	}
	return s
}

// Root returns the metadata of the given component, which must have been added.
func (s *TestStatic) Root(id string) *dr.ComponentMetadata {
	s.t.Helper()
	cId, err := dr.ParseComponentIdentity(id)
	if err != nil {
		s.t.Fatal(err)
	}
	md, err := s.Lookup(cId)
	if err != nil {
		s.t.Fatal(err)
	}
	return md
}
