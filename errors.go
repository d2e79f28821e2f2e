package depresolve

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolved is wrapped by edge failures where no component could be found for the
	// requested selector.
	ErrUnresolved = errors.New("could not resolve")
	// ErrSubstitution is wrapped by edge failures caused by a dependency substitution rule.
	ErrSubstitution = errors.New("dependency substitution failed")
	// ErrMissingConfiguration is wrapped by edge failures where the selected component has no
	// configuration with the requested name.
	ErrMissingConfiguration = errors.New("configuration not found")
)

// A ResolveError is an edge-local failure: one dependency of one node could not be resolved.
// Such failures never abort the resolution; they are collected in [Graph.Failures].
type ResolveError struct {
	// From is the component and configuration that declared the dependency.
	From      ComponentIdentity
	FromConf  string
	Requested ModuleSelector
	Err       error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("%v(%s) -> %v: %v", e.From, e.FromConf, e.Requested, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// An InvariantError indicates structurally invalid input, such as metadata with an unknown kind
// discriminant.  It aborts the resolution.
type InvariantError struct {
	Component ComponentIdentity
	Err       error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invalid metadata for %v: %v", e.Component, e.Err)
}

func (e *InvariantError) Unwrap() error {
	return e.Err
}
