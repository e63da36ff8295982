// Package tenant resolves which tenant's content set applies to a request.
//
// Tenants are addressed by hostname. A Directory maps normalized hosts to
// tenant identifiers and a Resolver applies the environment policy on top of
// it: unknown hosts fall back to a default tenant outside production and are
// refused in production.
package tenant

import (
	"context"
	"errors"
)

// DefaultID is the tenant served for unmapped hosts outside production and
// during rendering with no live request.
const DefaultID = "nini"

// HeaderName carries the resolved tenant id from the edge filter to
// downstream handlers. Values supplied by clients are always overwritten.
const HeaderName = "X-Tenant-ID"

var (
	// ErrUnresolved is returned when a live request maps to no tenant.
	ErrUnresolved = errors.New("tenant: unable to resolve tenant")
	// ErrDirectoryInvalid is returned when the directory artifact is malformed.
	ErrDirectoryInvalid = errors.New("tenant: invalid directory")
)

// contextKey is the type for tenant context keys
type contextKey string

const idContextKey contextKey = "tenant_id"

// WithID returns a copy of ctx carrying the resolved tenant id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idContextKey, id)
}

// IDFromContext returns the tenant id attached by WithID.
func IDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(idContextKey).(string)
	return id, ok && id != ""
}
