package repository

import (
	"fmt"

	dr "github.com/rhansen/depresolve"
)

// An Option controls the creation of a component by [NewComponent].
type Option func(*dr.ComponentMetadata) error

// A ConfOption controls the creation of one configuration.  See [Configuration].
type ConfOption func(*dr.ConfigurationMetadata) error

// A DepOption controls the creation of one dependency.  See [DependsOn].
type DepOption func(*dr.DependencyMetadata) error

// NewComponent creates component metadata.  The id has the form group:name:version.  By default the
// component is a [dr.KindMaven] component with jar packaging and no configurations.
func NewComponent(id string, opts ...Option) (*dr.ComponentMetadata, error) {
	cId, err := dr.ParseComponentIdentity(id)
	if err != nil {
		return nil, err
	}
	md := &dr.ComponentMetadata{
		Id:    cId,
		Kind:  dr.KindMaven,
		Maven: &dr.MavenInfo{Packaging: "jar"},
	}
	for _, opt := range opts {
		if err := opt(md); err != nil {
			return nil, fmt.Errorf("component %v: %w", cId, err)
		}
	}
	if err := md.Check(); err != nil {
		return nil, err
	}
	return md, nil
}

// Local makes the component a [dr.KindLocal] component, such as a project in the current build.
func Local() Option {
	return func(md *dr.ComponentMetadata) error {
		md.Kind = dr.KindLocal
		md.Maven = nil
		md.Ivy = nil
		return nil
	}
}

// Maven makes the component a [dr.KindMaven] component with the given packaging.
func Maven(packaging string) Option {
	return func(md *dr.ComponentMetadata) error {
		md.Kind = dr.KindMaven
		md.Maven = &dr.MavenInfo{Packaging: packaging}
		md.Ivy = nil
		return nil
	}
}

// Ivy makes the component a [dr.KindIvy] component with the given branch and status.
func Ivy(branch, status string) Option {
	return func(md *dr.ComponentMetadata) error {
		md.Kind = dr.KindIvy
		md.Ivy = &dr.IvyInfo{Branch: branch, Status: status}
		md.Maven = nil
		return nil
	}
}

// Configuration adds a transitive configuration with the given name.
func Configuration(name string, opts ...ConfOption) Option {
	return func(md *dr.ComponentMetadata) error {
		conf := &dr.ConfigurationMetadata{Name: name, Transitive: true}
		for _, opt := range opts {
			if err := opt(conf); err != nil {
				return fmt.Errorf("configuration %q: %w", name, err)
			}
		}
		md.Configurations = append(md.Configurations, conf)
		return nil
	}
}

// NonTransitive marks the configuration as non-transitive.
func NonTransitive() ConfOption {
	return func(conf *dr.ConfigurationMetadata) error {
		conf.Transitive = false
		return nil
	}
}

// DependsOn adds a transitive dependency on the given selector, which has the form
// group:name[:version].  A missing version means the latest version.
func DependsOn(sel string, opts ...DepOption) ConfOption {
	return func(conf *dr.ConfigurationMetadata) error {
		s, err := dr.ParseModuleSelector(sel)
		if err != nil {
			return err
		}
		dep := dr.DependencyMetadata{Selector: s, Transitive: true}
		for _, opt := range opts {
			if err := opt(&dep); err != nil {
				return fmt.Errorf("dependency %v: %w", s, err)
			}
		}
		conf.Dependencies = append(conf.Dependencies, dep)
		return nil
	}
}

// Excludes adds exclude rules to the configuration.
func Excludes(rules ...dr.ExcludeRule) ConfOption {
	return func(conf *dr.ConfigurationMetadata) error {
		conf.Excludes = append(conf.Excludes, rules...)
		return nil
	}
}

// Artifacts adds published artifacts to the configuration.
func Artifacts(as ...dr.Artifact) ConfOption {
	return func(conf *dr.ConfigurationMetadata) error {
		conf.Artifacts = append(conf.Artifacts, as...)
		return nil
	}
}

// Attribute sets a configuration attribute.
func Attribute(k, v string) ConfOption {
	return func(conf *dr.ConfigurationMetadata) error {
		if conf.Attributes == nil {
			conf.Attributes = map[string]string{}
		}
		conf.Attributes[k] = v
		return nil
	}
}

// Files adds a file-only dependency.  Only [Local] components may have them.
func Files(paths ...string) ConfOption {
	return func(conf *dr.ConfigurationMetadata) error {
		if len(paths) == 0 {
			return fmt.Errorf("file dependency with no paths")
		}
		conf.Files = append(conf.Files, dr.FileDependency{Paths: paths})
		return nil
	}
}

// TargetConfigurations makes the dependency target the named configurations instead of
// [dr.DefaultConfiguration].
func TargetConfigurations(names ...string) DepOption {
	return func(dep *dr.DependencyMetadata) error {
		dep.Configurations = append(dep.Configurations, names...)
		return nil
	}
}

// Intransitive marks the dependency as non-transitive.
func Intransitive() DepOption {
	return func(dep *dr.DependencyMetadata) error {
		dep.Transitive = false
		return nil
	}
}

// Force marks the requested version as forced.
func Force() DepOption {
	return func(dep *dr.DependencyMetadata) error {
		dep.Force = true
		return nil
	}
}

// Pending marks the dependency as pending.  See [dr.DependencyMetadata.Pending].
func Pending() DepOption {
	return func(dep *dr.DependencyMetadata) error {
		dep.Pending = true
		return nil
	}
}

// DepExcludes adds exclude rules that apply to everything reached through the dependency.
func DepExcludes(rules ...dr.ExcludeRule) DepOption {
	return func(dep *dr.DependencyMetadata) error {
		dep.Excludes = append(dep.Excludes, rules...)
		return nil
	}
}

// DepArtifacts replaces the artifacts of the dependency's target configurations.
func DepArtifacts(as ...dr.Artifact) DepOption {
	return func(dep *dr.DependencyMetadata) error {
		dep.Artifacts = append(dep.Artifacts, as...)
		return nil
	}
}
