// Package edge implements the per-request routing filter that runs in front
// of every gallery route: tenant resolution, admin presence gating and locale
// routing.
package edge

import (
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/HugeFrog24/nini-artgallery/internal/locale"
	"github.com/HugeFrog24/nini-artgallery/internal/metrics"
	"github.com/HugeFrog24/nini-artgallery/internal/server"
	"github.com/HugeFrog24/nini-artgallery/internal/tenant"
)

// AdminTokenCookie is the cookie carrying the admin session token.
const AdminTokenCookie = "admin-token"

var (
	adminPath   = regexp.MustCompile(`^/[a-z]{2}/admin`)
	staticAsset = regexp.MustCompile(`\.\w+$`)
)

// Filter resolves the tenant and locale for each request before it reaches
// the router. It keeps no per-request state.
type Filter struct {
	resolver   *tenant.Resolver
	negotiator *locale.Negotiator
	metrics    metrics.Recorder
	logger     *slog.Logger
	exempt     map[string]bool
}

// Option configures a Filter.
type Option func(*Filter)

// WithMetrics sets the recorder for resolution and locale outcomes.
func WithMetrics(rec metrics.Recorder) Option {
	return func(f *Filter) {
		if rec != nil {
			f.metrics = rec
		}
	}
}

// WithLogger sets the filter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Filter) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithExempt passes the given exact paths straight through, with no tenant
// or locale handling. Used for operational endpoints.
func WithExempt(paths ...string) Option {
	return func(f *Filter) {
		for _, p := range paths {
			f.exempt[p] = true
		}
	}
}

// New creates a filter.
func New(resolver *tenant.Resolver, negotiator *locale.Negotiator, opts ...Option) *Filter {
	f := &Filter{
		resolver:   resolver,
		negotiator: negotiator,
		metrics:    metrics.Noop{},
		logger:     slog.Default(),
		exempt:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Middleware wraps next with the filter.
func (f *Filter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		path := r.URL.Path
		if f.exempt[path] {
			next.ServeHTTP(w, r)
			return
		}

		// Always the live Host header; nothing has been injected yet.
		tenantID, ok, err := f.resolver.ResolveFromHost(ctx, r.Host)
		if err != nil {
			f.metrics.IncTenantResolution(metrics.OutcomeError)
			f.logger.Error("tenant directory unavailable",
				slog.String("host", r.Host),
				slog.String("error", err.Error()))
			server.AddError(ctx, err)
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		if !ok {
			f.metrics.IncTenantResolution(metrics.OutcomeUnresolved)
			server.AddLogField(ctx, "host", tenant.NormalizeHost(r.Host))
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		f.metrics.IncTenantResolution(metrics.OutcomeResolved)

		// Client-supplied values are replaced, never trusted.
		r.Header.Set(tenant.HeaderName, tenantID)
		ctx = tenant.WithID(ctx, tenantID)
		server.AddLogField(ctx, "tenant_id", tenantID)

		if adminPath.MatchString(path) && !strings.Contains(path, "/login") && path != "/api/admin/config" {
			if AdminToken(r) == "" {
				seg := strings.Split(path, "/")[1]
				http.Redirect(w, r, "/"+seg+"/admin/login", http.StatusTemporaryRedirect)
				return
			}
			if code := strings.Split(path, "/")[1]; locale.IsSupported(code) {
				ctx = locale.WithLocale(ctx, code)
				r.Header.Set(locale.HeaderName, code)
			} else {
				r.Header.Del(locale.HeaderName)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if strings.HasPrefix(path, "/api") || strings.HasPrefix(path, "/_next") || staticAsset.MatchString(path) {
			r.Header.Del(locale.HeaderName)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		decision := f.negotiator.NegotiateRequest(r)
		f.metrics.IncLocaleDecision(decision.Kind.String())
		switch decision.Kind {
		case locale.NotFound:
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		case locale.Redirect:
			if decision.SetCookie {
				locale.SetCookie(w, decision.Locale)
			}
			http.Redirect(w, r, decision.Target, http.StatusTemporaryRedirect)
			return
		}

		if decision.SetCookie {
			locale.SetCookie(w, decision.Locale)
		}
		server.AddLogField(ctx, "locale", decision.Locale)
		r.Header.Set(locale.HeaderName, decision.Locale)
		next.ServeHTTP(w, r.WithContext(locale.WithLocale(ctx, decision.Locale)))
	})
}

// AdminToken returns the admin token from the admin-token cookie or a Bearer
// Authorization header. Only presence is checked here.
func AdminToken(r *http.Request) string {
	if c, err := r.Cookie(AdminTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return auth[len("Bearer "):]
	}
	return ""
}
