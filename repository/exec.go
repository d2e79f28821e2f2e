package repository

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"

	dr "github.com/rhansen/depresolve"
	"github.com/rhansen/depresolve/internal/command"
	"github.com/rhansen/depresolve/internal/version"
)

// An Exec provider obtains metadata by running an external command.  For each selector the
// command is run with the module's group and name appended to its arguments, and must print a
// stream of [ComponentDescriptor] objects, one per known version of the module.  The newest
// version accepted by the selector is returned.
type Exec struct {
	// Dir is the working directory of the command.
	Dir  string
	Args []string
	// Env, if non-nil, replaces the command's environment.  Entries have the form name=value.
	Env []string
	// YAML selects a stream of YAML documents instead of concatenated JSON objects.
	YAML bool
}

var _ dr.MetadataProvider = (*Exec)(nil)

func (x *Exec) Resolve(ctx context.Context, sel dr.ModuleSelector) (*dr.ComponentMetadata, error) {
	if x.Env != nil {
		ctx = context.WithValue(ctx, command.EnvKey, x.Env)
	}
	dec := command.JSON
	if x.YAML {
		dec = command.YAML
	}
	args := slices.Concat(x.Args, []string{sel.Module.Group, sel.Module.Name})
	cds, done := command.DecodeStream[ComponentDescriptor](ctx, x.Dir, dec, args...)
	best, err := pickNewest(cds, sel)
	if derr := done(); err == nil {
		err = derr
	}
	if err != nil {
		return nil, err
	}
	if best == nil {
		return nil, fmt.Errorf("%w for %v", ErrNotFound, sel)
	}
	slog.DebugContext(ctx, "metadata command resolved selector", "selector", sel, "component", best.Id)
	return best, nil
}

func pickNewest(cds iter.Seq[ComponentDescriptor], sel dr.ModuleSelector) (*dr.ComponentMetadata, error) {
	var best *dr.ComponentMetadata
	for cd := range cds {
		md, err := cd.Metadata()
		if err != nil {
			return nil, err
		}
		if md.Id.Module != sel.Module {
			return nil, fmt.Errorf("metadata command returned %v for module %v", md.Id, sel.Module)
		}
		if !version.Accepts(sel.Version, md.Id.Version) {
			continue
		}
		if best == nil || version.Compare(md.Id.Version, best.Id.Version) > 0 {
			best = md
		}
	}
	return best, nil
}
