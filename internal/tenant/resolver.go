package tenant

import (
	"context"
	"fmt"
	"net/http"
)

// Resolver applies the environment policy on top of a Directory.
type Resolver struct {
	directory  *Directory
	defaultID  string
	production bool
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithDefaultID overrides the fallback tenant id.
func WithDefaultID(id string) ResolverOption {
	return func(r *Resolver) {
		if id != "" {
			r.defaultID = id
		}
	}
}

// WithProduction switches unknown hosts from falling back to being refused.
func WithProduction(production bool) ResolverOption {
	return func(r *Resolver) {
		r.production = production
	}
}

// NewResolver creates a resolver over directory.
func NewResolver(directory *Directory, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		directory: directory,
		defaultID: DefaultID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultID returns the fallback tenant id.
func (r *Resolver) DefaultID() string {
	return r.defaultID
}

// ResolveFromHost looks rawHost up in the directory. Unknown hosts resolve to
// the default tenant outside production and to absent in production.
// A directory load failure is returned as an error, never as absent.
func (r *Resolver) ResolveFromHost(ctx context.Context, rawHost string) (string, bool, error) {
	id, ok, err := r.directory.Lookup(ctx, rawHost)
	if err != nil {
		return "", false, err
	}
	if ok {
		return id, true, nil
	}
	if !r.production {
		return r.defaultID, true, nil
	}
	return "", false, nil
}

// ResolveFromRequest returns the tenant for a downstream handler.
//
// The tenant attached by the edge filter (context or header) is preferred;
// otherwise the live Host header is resolved. A nil request means rendering
// happens with no live request, which yields the default tenant. Any other
// failure to resolve is ErrUnresolved.
func (r *Resolver) ResolveFromRequest(req *http.Request) (string, error) {
	if req == nil {
		return r.defaultID, nil
	}
	ctx := req.Context()
	if id, ok := IDFromContext(ctx); ok {
		return id, nil
	}
	if id := req.Header.Get(HeaderName); id != "" {
		return id, nil
	}

	id, ok, err := r.ResolveFromHost(ctx, req.Host)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: host %q", ErrUnresolved, NormalizeHost(req.Host))
	}
	return id, nil
}
