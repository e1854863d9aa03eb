// Package resolver implements C3: dispatching a WantedDependency to one of
// N type-specific resolvers, returning a canonical identity and Resolution.
package resolver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/packlock/pstore/pkgref"
)

// Options carries the shared configuration every resolver may consult.
type Options struct {
	Registry string
	Offline  bool
	PkgID    string
	Prefix   string
	// RawRegistryConfig passes through npm-style config keys, notably
	// per-scope registry overrides ("@scope:registry"), to resolvers that
	// know how to interpret them.
	RawRegistryConfig map[string]string
}

// Result is what a successful Resolve call produces.
type Result struct {
	Identity       pkgref.PackageIdentity
	Resolution     pkgref.Resolution
	Latest         string
	NormalizedPref string
}

// Resolver claims and resolves a subset of WantedDependency prefs.
type Resolver interface {
	// Type names this resolver for logging and registration order
	// diagnostics.
	Type() string
	// Claims reports whether this resolver owns wanted.Pref. The registry
	// probes resolvers in registration order and the first claim wins.
	Claims(wanted pkgref.WantedDependency) bool
	// Resolve performs the resolution. Callers only invoke this after
	// Claims returned true.
	Resolve(ctx context.Context, wanted pkgref.WantedDependency, opts Options) (Result, error)
}

// Factory builds a Resolver given shared options, mirroring the teacher's
// client-option-factory construction style.
type Factory func(shared Options) Resolver

// Registry dispatches to the first registered Resolver that claims a given
// pref.
type Registry struct {
	resolvers []Resolver
	logger    *slog.Logger
}

// New builds a Registry from an ordered list of factories, each
// instantiated once against shared.
func New(shared Options, logger *slog.Logger, factories ...Factory) *Registry {
	r := &Registry{logger: logger}
	for _, f := range factories {
		r.resolvers = append(r.resolvers, f(shared))
	}
	return r
}

func (r *Registry) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

// Resolve probes registered resolvers in order and delegates to the first
// that claims wanted.Pref.
func (r *Registry) Resolve(ctx context.Context, wanted pkgref.WantedDependency, opts Options) (Result, error) {
	for _, res := range r.resolvers {
		if !res.Claims(wanted) {
			continue
		}
		r.log().Debug("resolving", "resolver", res.Type(), "pref", wanted.Pref)
		result, err := res.Resolve(ctx, wanted, opts)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %s: %w", ErrResolverFailure, res.Type(), err)
		}
		return result, nil
	}
	return Result{}, fmt.Errorf("%w: %s", ErrBadPref, wanted.Pref)
}
