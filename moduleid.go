package depresolve

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rhansen/depresolve/internal/version"
)

// A ModuleIdentity identifies a module independently of its version (a Maven groupId and
// artifactId, or an Ivy organisation and module name).
type ModuleIdentity struct {
	Group string
	Name  string
}

// NewModuleIdentity constructs a [ModuleIdentity] from its group and name components.
func NewModuleIdentity(group, name string) ModuleIdentity {
	return ModuleIdentity{Group: group, Name: name}
}

func (m ModuleIdentity) String() string {
	return m.Group + ":" + m.Name
}

// Check asserts that neither the group nor the name is empty or contains a colon.
func (m ModuleIdentity) Check() error {
	if m.Group == "" {
		return errors.New("module group is the empty string")
	}
	if m.Name == "" {
		return errors.New("module name is the empty string")
	}
	if strings.Contains(m.Group, ":") || strings.Contains(m.Name, ":") {
		return fmt.Errorf("module identity %q contains a colon", m.String())
	}
	return nil
}

// ModuleIdentityCompare orders two [ModuleIdentity] values by group, then by name.
func ModuleIdentityCompare(a, b ModuleIdentity) int {
	if c := strings.Compare(a.Group, b.Group); c != 0 {
		return c
	}
	return strings.Compare(a.Name, b.Name)
}

// A ComponentIdentity identifies one specific version of a module.  Exactly one component state
// exists per [ComponentIdentity] during a resolution.
type ComponentIdentity struct {
	Module  ModuleIdentity
	Version string
}

// NewComponentIdentity constructs a [ComponentIdentity] from its group, name, and version.
func NewComponentIdentity(group, name, ver string) ComponentIdentity {
	return ComponentIdentity{Module: NewModuleIdentity(group, name), Version: ver}
}

// ParseComponentIdentity parses a "group:name:version" string.
func ParseComponentIdentity(s string) (ComponentIdentity, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return ComponentIdentity{}, fmt.Errorf("component identity %q: want group:name:version", s)
	}
	cId := NewComponentIdentity(parts[0], parts[1], parts[2])
	if err := cId.Check(); err != nil {
		return ComponentIdentity{}, fmt.Errorf("component identity %q: %w", s, err)
	}
	return cId, nil
}

func (c ComponentIdentity) String() string {
	return c.Module.String() + ":" + c.Version
}

// Check asserts that the module identity is valid and the version is concrete (not empty and not a
// dynamic selector such as "latest").
func (c ComponentIdentity) Check() error {
	if err := c.Module.Check(); err != nil {
		return err
	}
	if c.Version == "" {
		return errors.New("version is the empty string")
	}
	if version.IsDynamic(c.Version) {
		return fmt.Errorf("version %q is dynamic, want a concrete version", c.Version)
	}
	return nil
}

// ComponentIdentityCompare orders two [ComponentIdentity] values by module, then by version
// (oldest first).
func ComponentIdentityCompare(a, b ComponentIdentity) int {
	if c := ModuleIdentityCompare(a.Module, b.Module); c != 0 {
		return c
	}
	return version.Compare(a.Version, b.Version)
}

// A ModuleSelector is a requested dependency target: a module and the version asked for.  The
// version may be concrete, "latest", or a prefix range such as "1.+"; turning a selector into a
// concrete [ComponentIdentity] is the job of the [MetadataProvider].
type ModuleSelector struct {
	Module  ModuleIdentity
	Version string
}

// NewModuleSelector constructs a [ModuleSelector].
func NewModuleSelector(group, name, ver string) ModuleSelector {
	return ModuleSelector{Module: NewModuleIdentity(group, name), Version: ver}
}

// ParseModuleSelector parses a "group:name[:version]" string.  A missing version means "latest".
func ParseModuleSelector(s string) (ModuleSelector, error) {
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 2:
		parts = append(parts, version.Latest)
	case 3:
	default:
		return ModuleSelector{}, fmt.Errorf("module selector %q: want group:name[:version]", s)
	}
	sel := NewModuleSelector(parts[0], parts[1], parts[2])
	if err := sel.Module.Check(); err != nil {
		return ModuleSelector{}, fmt.Errorf("module selector %q: %w", s, err)
	}
	if sel.Version == "" {
		sel.Version = version.Latest
	}
	return sel, nil
}

func (s ModuleSelector) String() string {
	return s.Module.String() + ":" + s.Version
}

// Matches reports whether the given component satisfies this selector.
func (s ModuleSelector) Matches(c ComponentIdentity) bool {
	return s.Module == c.Module && version.Accepts(s.Version, c.Version)
}
