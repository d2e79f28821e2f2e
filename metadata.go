package depresolve

import (
	"context"
	"fmt"
	"slices"
)

// A MetadataKind is the discriminant of the [ComponentMetadata] tagged variant.
type MetadataKind uint8

const (
	// KindUnknown is the zero value and is never valid.
	KindUnknown MetadataKind = iota
	// KindLocal is a component defined by the build itself (the root, or another project in the
	// same build).  Only local configurations may declare file dependencies.
	KindLocal
	// KindMaven is a component described by a Maven POM.
	KindMaven
	// KindIvy is a component described by an Ivy descriptor.  Ivy exclude rules may be scoped to
	// specific configurations of the declaring component.
	KindIvy
)

func (k MetadataKind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindMaven:
		return "maven"
	case KindIvy:
		return "ivy"
	default:
		return fmt.Sprintf("MetadataKind(%d)", uint8(k))
	}
}

// MavenInfo is the [KindMaven] payload of [ComponentMetadata].
type MavenInfo struct {
	Packaging string
}

// IvyInfo is the [KindIvy] payload of [ComponentMetadata].
type IvyInfo struct {
	Branch string
	Status string
}

// ComponentMetadata describes one version of a module: its identity and its configurations.  The
// Kind field selects which (if any) of the per-kind payload fields is populated.
type ComponentMetadata struct {
	Id             ComponentIdentity
	Kind           MetadataKind
	Configurations []*ConfigurationMetadata

	Maven *MavenInfo
	Ivy   *IvyInfo
}

// Configuration returns the named configuration, or nil if there is no such configuration.
func (cm *ComponentMetadata) Configuration(name string) *ConfigurationMetadata {
	for _, c := range cm.Configurations {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Check validates the structure of the metadata.  A failed check is an [*InvariantError]: it
// indicates a broken metadata provider, not a dependency problem.
func (cm *ComponentMetadata) Check() error {
	fail := func(format string, args ...any) error {
		return &InvariantError{Component: cm.Id, Err: fmt.Errorf(format, args...)}
	}
	if err := cm.Id.Check(); err != nil {
		return fail("%w", err)
	}
	switch cm.Kind {
	case KindLocal:
		if cm.Maven != nil || cm.Ivy != nil {
			return fail("local metadata carries a repository payload")
		}
	case KindMaven:
		if cm.Ivy != nil {
			return fail("maven metadata carries an ivy payload")
		}
	case KindIvy:
		if cm.Maven != nil {
			return fail("ivy metadata carries a maven payload")
		}
	default:
		return fail("unexpected metadata kind %v", cm.Kind)
	}
	seen := map[string]bool{}
	for _, c := range cm.Configurations {
		if c == nil {
			return fail("nil configuration")
		}
		if seen[c.Name] {
			return fail("duplicate configuration %q", c.Name)
		}
		seen[c.Name] = true
		if cm.Kind != KindLocal && len(c.Files) > 0 {
			return fail("configuration %q of non-local component declares file dependencies", c.Name)
		}
		for _, d := range c.Dependencies {
			if err := d.Selector.Module.Check(); err != nil {
				return fail("configuration %q: dependency %v: %w", c.Name, d.Selector, err)
			}
		}
	}
	return nil
}

// excludes returns the exclude rules that apply when the given configuration is traversed.  Ivy
// rules can be scoped to a subset of configurations; other kinds apply every rule.
func (cm *ComponentMetadata) excludes(conf *ConfigurationMetadata) []ExcludeRule {
	if cm.Kind != KindIvy {
		return conf.Excludes
	}
	return slices.DeleteFunc(slices.Clone(conf.Excludes), func(r ExcludeRule) bool {
		return len(r.Configurations) > 0 && !slices.Contains(r.Configurations, conf.Name)
	})
}

// ConfigurationMetadata is one configuration (a named, resolvable dependency bucket) of a
// component.
type ConfigurationMetadata struct {
	Name string
	// Transitive is false if the dependencies of this configuration's dependencies should not be
	// followed.
	Transitive   bool
	Dependencies []DependencyMetadata
	Excludes     []ExcludeRule
	Artifacts    []Artifact
	Attributes   map[string]string
	// Files lists file-only dependencies.  Only allowed on [KindLocal] components.
	Files []FileDependency
}

// DefaultConfiguration is the target configuration of a dependency that does not name one.
const DefaultConfiguration = "default"

// DependencyMetadata is one declared dependency of a configuration.
type DependencyMetadata struct {
	Selector ModuleSelector
	// Configurations names the target configurations.  Empty means [DefaultConfiguration].
	Configurations []string
	// Transitive is false if the target's own dependencies should not be followed through this
	// dependency.
	Transitive bool
	// Force marks the requested version as preferred by conflict resolution.
	Force bool
	// Pending marks a dependency that only takes effect if some other (non-pending) dependency
	// pulls the same module into the graph, such as a dependency constraint or platform entry.
	Pending  bool
	Excludes []ExcludeRule
	// Artifacts, if non-empty, replaces the target configurations' own artifacts.
	Artifacts []Artifact
}

func (d DependencyMetadata) targetConfigurations() []string {
	if len(d.Configurations) == 0 {
		return []string{DefaultConfiguration}
	}
	return d.Configurations
}

func (d DependencyMetadata) String() string {
	return d.Selector.String()
}

// An Artifact names one file published by a configuration.
type Artifact struct {
	Name      string
	Type      string
	Extension string
}

func (a Artifact) String() string {
	return fmt.Sprintf("%s.%s(%s)", a.Name, a.Extension, a.Type)
}

// A FileDependency is a dependency on local files rather than on a module.
type FileDependency struct {
	Paths []string
}

// A MetadataProvider resolves a [ModuleSelector] to the metadata of one concrete component.  The
// engine calls Resolve at most once per distinct selector and may call it concurrently (see
// [WithPrefetch]); the provider must be safe for concurrent use if prefetching is enabled.
type MetadataProvider interface {
	Resolve(ctx context.Context, sel ModuleSelector) (*ComponentMetadata, error)
}

// MetadataProviderFunc adapts a function to the [MetadataProvider] interface.
type MetadataProviderFunc func(ctx context.Context, sel ModuleSelector) (*ComponentMetadata, error)

func (f MetadataProviderFunc) Resolve(ctx context.Context, sel ModuleSelector) (*ComponentMetadata, error) {
	return f(ctx, sel)
}
