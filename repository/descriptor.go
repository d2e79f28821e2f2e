package repository

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"

	dr "github.com/rhansen/depresolve"
	"gopkg.in/yaml.v3"
)

// A File is the root of a repository descriptor document:
//
//	components:
//	  - id: org.example:app:1.0
//	    kind: maven
//	    configurations:
//	      - name: default
//	        dependencies:
//	          - selector: org.example:lib:1.+
//	            excludes:
//	              - {group: org.unwanted}
type File struct {
	Components []ComponentDescriptor `yaml:"components" json:"components"`
}

// A ComponentDescriptor describes one component.  Kind is one of local, maven (the default), or
// ivy.
type ComponentDescriptor struct {
	Id             string                    `yaml:"id" json:"id"`
	Kind           string                    `yaml:"kind,omitempty" json:"kind,omitempty"`
	Packaging      string                    `yaml:"packaging,omitempty" json:"packaging,omitempty"`
	Branch         string                    `yaml:"branch,omitempty" json:"branch,omitempty"`
	Status         string                    `yaml:"status,omitempty" json:"status,omitempty"`
	Configurations []ConfigurationDescriptor `yaml:"configurations" json:"configurations"`
}

// A ConfigurationDescriptor describes one configuration.  Transitive defaults to true.
type ConfigurationDescriptor struct {
	Name         string                 `yaml:"name" json:"name"`
	Transitive   *bool                  `yaml:"transitive,omitempty" json:"transitive,omitempty"`
	Dependencies []DependencyDescriptor `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	Excludes     []ExcludeDescriptor    `yaml:"excludes,omitempty" json:"excludes,omitempty"`
	Artifacts    []ArtifactDescriptor   `yaml:"artifacts,omitempty" json:"artifacts,omitempty"`
	Attributes   map[string]string      `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	Files        [][]string             `yaml:"files,omitempty" json:"files,omitempty"`
}

// A DependencyDescriptor describes one dependency.  Transitive defaults to true.
type DependencyDescriptor struct {
	Selector       string               `yaml:"selector" json:"selector"`
	Configurations []string             `yaml:"configurations,omitempty" json:"configurations,omitempty"`
	Transitive     *bool                `yaml:"transitive,omitempty" json:"transitive,omitempty"`
	Force          bool                 `yaml:"force,omitempty" json:"force,omitempty"`
	Pending        bool                 `yaml:"pending,omitempty" json:"pending,omitempty"`
	Excludes       []ExcludeDescriptor  `yaml:"excludes,omitempty" json:"excludes,omitempty"`
	Artifacts      []ArtifactDescriptor `yaml:"artifacts,omitempty" json:"artifacts,omitempty"`
}

type ExcludeDescriptor struct {
	Group          string   `yaml:"group,omitempty" json:"group,omitempty"`
	Name           string   `yaml:"name,omitempty" json:"name,omitempty"`
	Artifact       string   `yaml:"artifact,omitempty" json:"artifact,omitempty"`
	Type           string   `yaml:"type,omitempty" json:"type,omitempty"`
	Extension      string   `yaml:"extension,omitempty" json:"extension,omitempty"`
	Configurations []string `yaml:"configurations,omitempty" json:"configurations,omitempty"`
}

type ArtifactDescriptor struct {
	Name      string `yaml:"name" json:"name"`
	Type      string `yaml:"type,omitempty" json:"type,omitempty"`
	Extension string `yaml:"extension,omitempty" json:"extension,omitempty"`
}

// Metadata converts the descriptor to validated component metadata.
func (cd *ComponentDescriptor) Metadata() (*dr.ComponentMetadata, error) {
	var opts []Option
	switch cd.Kind {
	case "", "maven":
		packaging := cd.Packaging
		if packaging == "" {
			packaging = "jar"
		}
		opts = append(opts, Maven(packaging))
	case "ivy":
		opts = append(opts, Ivy(cd.Branch, cd.Status))
	case "local":
		opts = append(opts, Local())
	default:
		return nil, fmt.Errorf("component %s: unknown kind %q", cd.Id, cd.Kind)
	}
	for _, conf := range cd.Configurations {
		opts = append(opts, Configuration(conf.Name, conf.options()...))
	}
	return NewComponent(cd.Id, opts...)
}

func (cd *ConfigurationDescriptor) options() []ConfOption {
	var opts []ConfOption
	if cd.Transitive != nil && !*cd.Transitive {
		opts = append(opts, NonTransitive())
	}
	for _, dep := range cd.Dependencies {
		opts = append(opts, DependsOn(dep.Selector, dep.options()...))
	}
	if len(cd.Excludes) > 0 {
		opts = append(opts, Excludes(excludeRules(cd.Excludes)...))
	}
	if len(cd.Artifacts) > 0 {
		opts = append(opts, Artifacts(artifacts(cd.Artifacts)...))
	}
	for k, v := range cd.Attributes {
		opts = append(opts, Attribute(k, v))
	}
	for _, paths := range cd.Files {
		opts = append(opts, Files(paths...))
	}
	return opts
}

func (dd *DependencyDescriptor) options() []DepOption {
	var opts []DepOption
	if len(dd.Configurations) > 0 {
		opts = append(opts, TargetConfigurations(dd.Configurations...))
	}
	if dd.Transitive != nil && !*dd.Transitive {
		opts = append(opts, Intransitive())
	}
	if dd.Force {
		opts = append(opts, Force())
	}
	if dd.Pending {
		opts = append(opts, Pending())
	}
	if len(dd.Excludes) > 0 {
		opts = append(opts, DepExcludes(excludeRules(dd.Excludes)...))
	}
	if len(dd.Artifacts) > 0 {
		opts = append(opts, DepArtifacts(artifacts(dd.Artifacts)...))
	}
	return opts
}

func excludeRules(eds []ExcludeDescriptor) []dr.ExcludeRule {
	var rules []dr.ExcludeRule
	for _, ed := range eds {
		rules = append(rules, dr.ExcludeRule{
			Group:          ed.Group,
			Name:           ed.Name,
			Artifact:       ed.Artifact,
			Type:           ed.Type,
			Extension:      ed.Extension,
			Configurations: ed.Configurations,
		})
	}
	return rules
}

func artifacts(ads []ArtifactDescriptor) []dr.Artifact {
	var as []dr.Artifact
	for _, ad := range ads {
		as = append(as, dr.Artifact{Name: ad.Name, Type: ad.Type, Extension: ad.Extension})
	}
	return as
}

// LoadYAML reads a YAML repository descriptor (see [File]) and adds its components to s.
func (s *Static) LoadYAML(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	for {
		var f File
		if err := dec.Decode(&f); errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return fmt.Errorf("failed to parse repository descriptor: %w", err)
		}
		for _, cd := range f.Components {
			md, err := cd.Metadata()
			if err != nil {
				return err
			}
			if err := s.Add(md); err != nil {
				return err
			}
		}
	}
}

// LoadYAML is a convenience function that creates a new [Static] from a YAML repository
// descriptor.
func LoadYAML(data []byte) (*Static, error) {
	s := NewStatic()
	if err := s.LoadYAML(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return s, nil
}

// AddFromDir reads all *.yaml and *.yml files in the given directory and adds their components
// to s.
func (s *Static) AddFromDir(dir string) (retErr error) {
	r, err := os.OpenRoot(dir)
	if err != nil {
		return err
	}
	defer func() {
		if err := r.Close(); retErr == nil {
			retErr = err
		}
	}()
	ents, err := fs.ReadDir(r.FS(), ".")
	if err != nil {
		return err
	}
	for _, e := range ents {
		if e.IsDir() || (path.Ext(e.Name()) != ".yaml" && path.Ext(e.Name()) != ".yml") {
			continue
		}
		data, err := r.ReadFile(e.Name())
		if err != nil {
			return err
		}
		if err := s.LoadYAML(bytes.NewReader(data)); err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
	}
	return nil
}
