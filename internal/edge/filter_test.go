package edge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/HugeFrog24/nini-artgallery/internal/locale"
	"github.com/HugeFrog24/nini-artgallery/internal/tenant"
)

type seen struct {
	called       bool
	tenantID     string
	header       string
	locale       string
	localeHeader string
}

func newFilter(t *testing.T, production bool, loader tenant.Loader, opts ...Option) (http.Handler, *seen) {
	t.Helper()
	if loader == nil {
		loader = tenant.LoaderFunc(func(context.Context) (map[string]string, error) {
			return map[string]string{"gallery.example.com": "nini", "other.test": "ana"}, nil
		})
	}
	resolver := tenant.NewResolver(tenant.NewDirectory(loader), tenant.WithProduction(production))
	f := New(resolver, locale.NewNegotiator(), opts...)

	s := &seen{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.called = true
		s.tenantID, _ = tenant.IDFromContext(r.Context())
		s.header = r.Header.Get(tenant.HeaderName)
		s.localeHeader = r.Header.Get(locale.HeaderName)
		s.locale, _ = locale.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	return f.Middleware(next), s
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestKnownHostContinues(t *testing.T) {
	h, s := newFilter(t, true, nil)
	req := httptest.NewRequest(http.MethodGet, "http://gallery.example.com/en/", nil)
	rec := serve(h, req)

	if rec.Code != http.StatusOK || !s.called {
		t.Fatalf("status = %d, called = %v; want 200, true", rec.Code, s.called)
	}
	if s.tenantID != "nini" || s.header != "nini" {
		t.Errorf("tenant = %q/%q, want nini", s.tenantID, s.header)
	}
	if s.locale != "en" {
		t.Errorf("locale = %q, want en", s.locale)
	}
}

func TestUnknownHostProductionIsNotFound(t *testing.T) {
	h, s := newFilter(t, true, nil)
	rec := serve(h, httptest.NewRequest(http.MethodGet, "http://random.test/en/", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if s.called {
		t.Error("downstream handler ran for unknown production host")
	}
	if got := rec.Header().Get("Set-Cookie"); got != "" {
		t.Errorf("Set-Cookie = %q, want none", got)
	}
}

func TestUnknownHostDevelopmentDefaults(t *testing.T) {
	h, s := newFilter(t, false, nil)
	rec := serve(h, httptest.NewRequest(http.MethodGet, "http://localhost:3000/de/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if s.tenantID != tenant.DefaultID {
		t.Errorf("tenant = %q, want %q", s.tenantID, tenant.DefaultID)
	}
}

func TestDirectoryFailureIsUnavailable(t *testing.T) {
	loader := tenant.LoaderFunc(func(context.Context) (map[string]string, error) {
		return nil, errors.New("disk gone")
	})
	h, s := newFilter(t, false, loader)
	rec := serve(h, httptest.NewRequest(http.MethodGet, "http://gallery.example.com/en/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if s.called {
		t.Error("downstream handler ran after directory failure")
	}
}

func TestClientTenantHeaderOverwritten(t *testing.T) {
	h, s := newFilter(t, true, nil)
	req := httptest.NewRequest(http.MethodGet, "http://other.test/api/artworks", nil)
	req.Header.Set(tenant.HeaderName, "nini")
	serve(h, req)
	if s.header != "ana" || s.tenantID != "ana" {
		t.Errorf("tenant = %q/%q, want ana", s.tenantID, s.header)
	}
}

func TestAdminGate(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		cookie     string
		bearer     string
		wantStatus int
		wantTarget string
	}{
		{"no token redirects", "/de/admin/settings", "", "", http.StatusTemporaryRedirect, "/de/admin/login"},
		{"cookie token forwards", "/de/admin/settings", "tok", "", http.StatusOK, ""},
		{"bearer token forwards", "/en/admin", "", "tok", http.StatusOK, ""},
		{"login page not gated", "/en/admin/login", "", "", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newFilter(t, true, nil)
			req := httptest.NewRequest(http.MethodGet, "http://gallery.example.com"+tt.path, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: AdminTokenCookie, Value: tt.cookie})
			}
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			req.AddCookie(&http.Cookie{Name: locale.CookieName, Value: "en"})
			rec := serve(h, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantTarget != "" {
				if got := rec.Header().Get("Location"); got != tt.wantTarget {
					t.Errorf("Location = %q, want %q", got, tt.wantTarget)
				}
			}
		})
	}
}

func TestAPIAndStaticSkipLocale(t *testing.T) {
	for _, path := range []string{"/api/chat", "/_next/static/x", "/sounds/pop.mp3", "/favicon.ico"} {
		t.Run(path, func(t *testing.T) {
			h, s := newFilter(t, true, nil)
			rec := serve(h, httptest.NewRequest(http.MethodGet, "http://gallery.example.com"+path, nil))
			if rec.Code != http.StatusOK || !s.called {
				t.Fatalf("status = %d, called = %v; want forward", rec.Code, s.called)
			}
			if s.locale != "" {
				t.Errorf("locale = %q, want none", s.locale)
			}
			if s.tenantID != "nini" {
				t.Errorf("tenant = %q, want nini", s.tenantID)
			}
		})
	}
}

func TestLocaleRedirects(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		cookie     string
		accept     string
		wantStatus int
		wantTarget string
	}{
		{"cookie preference", "/artwork/7", "de", "", http.StatusTemporaryRedirect, "/de/artwork/7"},
		{"accept language", "/", "", "es-ES,es;q=0.9", http.StatusTemporaryRedirect, "/es"},
		{"default", "/", "", "", http.StatusTemporaryRedirect, "/en"},
		{"unsupported prefix", "/xx/artwork/7", "", "", http.StatusNotFound, ""},
		{"supported prefix", "/ka/", "de", "", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newFilter(t, true, nil)
			req := httptest.NewRequest(http.MethodGet, "http://gallery.example.com"+tt.path, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: locale.CookieName, Value: tt.cookie})
			}
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			rec := serve(h, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantTarget != "" {
				if got := rec.Header().Get("Location"); got != tt.wantTarget {
					t.Errorf("Location = %q, want %q", got, tt.wantTarget)
				}
			}
		})
	}
}

func TestContinueSetsCookieWhenChanged(t *testing.T) {
	h, _ := newFilter(t, true, nil)
	req := httptest.NewRequest(http.MethodGet, "http://gallery.example.com/tr/", nil)
	req.AddCookie(&http.Cookie{Name: locale.CookieName, Value: "en"})
	rec := serve(h, req)
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != "tr" {
		t.Errorf("cookies = %v, want locale=tr", cookies)
	}
}

func TestAdminToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := AdminToken(req); got != "" {
		t.Errorf("AdminToken() = %q, want empty", got)
	}
	req.Header.Set("Authorization", "Basic abc")
	if got := AdminToken(req); got != "" {
		t.Errorf("AdminToken(basic) = %q, want empty", got)
	}
	req.Header.Set("Authorization", "Bearer abc")
	if got := AdminToken(req); got != "abc" {
		t.Errorf("AdminToken(bearer) = %q, want abc", got)
	}
	req.AddCookie(&http.Cookie{Name: AdminTokenCookie, Value: "cookie"})
	if got := AdminToken(req); got != "cookie" {
		t.Errorf("AdminToken(cookie) = %q, want cookie", got)
	}
}

func TestExemptPathsBypassFilter(t *testing.T) {
	h, s := newFilter(t, true, nil, WithExempt("/healthz", "/metrics"))
	for _, path := range []string{"/healthz", "/metrics"} {
		*s = seen{}
		rec := serve(h, httptest.NewRequest(http.MethodGet, "http://unknown.test"+path, nil))
		if rec.Code != http.StatusOK || !s.called {
			t.Errorf("%s: status = %d, called = %v; want forward", path, rec.Code, s.called)
		}
		if s.tenantID != "" {
			t.Errorf("%s: tenant = %q, want none", path, s.tenantID)
		}
	}

	rec := serve(h, httptest.NewRequest(http.MethodGet, "http://gallery.example.com/healthz/x", nil))
	if rec.Code != http.StatusTemporaryRedirect {
		t.Errorf("/healthz/x status = %d, want %d", rec.Code, http.StatusTemporaryRedirect)
	}
}

func TestAdminUnsupportedLocaleDropsClientHeader(t *testing.T) {
	h, s := newFilter(t, true, nil)
	req := httptest.NewRequest(http.MethodGet, "http://gallery.example.com/xx/admin/settings", nil)
	req.AddCookie(&http.Cookie{Name: AdminTokenCookie, Value: "tok"})
	req.Header.Set(locale.HeaderName, "de")
	rec := serve(h, req)
	if rec.Code != http.StatusOK || !s.called {
		t.Fatalf("status = %d, called = %v; want forward", rec.Code, s.called)
	}
	if s.localeHeader != "" || s.locale != "" {
		t.Errorf("locale = %q, header = %q; want both empty", s.locale, s.localeHeader)
	}
}
