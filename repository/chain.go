package repository

import (
	"context"
	"errors"

	dr "github.com/rhansen/depresolve"
)

// Chain returns a provider that asks each of the given providers in turn and returns the first
// metadata found.  A provider error other than [ErrNotFound] stops the search.
func Chain(ps ...dr.MetadataProvider) dr.MetadataProvider {
	return dr.MetadataProviderFunc(func(ctx context.Context, sel dr.ModuleSelector) (*dr.ComponentMetadata, error) {
		var errs []error
		for _, p := range ps {
			md, err := p.Resolve(ctx, sel)
			if err == nil {
				return md, nil
			}
			if !errors.Is(err, ErrNotFound) {
				return nil, err
			}
			errs = append(errs, err)
		}
		if len(errs) == 0 {
			return nil, ErrNotFound
		}
		return nil, errors.Join(errs...)
	})
}
