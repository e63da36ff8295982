package runtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/HugeFrog24/nini-artgallery/internal/admin"
	"github.com/HugeFrog24/nini-artgallery/internal/pkg/config"
)

func writeFixture(t *testing.T, root, rel, body string) {
	t.Helper()
	name := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(name, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	root := t.TempDir()
	writeFixture(t, root, "data/tenants.json", `{"Gallery.Test.":"nini"}`)
	writeFixture(t, root, "data/tenants/nini/artist.json",
		`{"name":"Nini","description":"Paper folder","defaultLanguage":"en"}`)
	writeFixture(t, root, "data/tenants/nini/artist-translations.json", `{}`)
	writeFixture(t, root, "data/tenants/nini/artworks-base.json", `{"categorySections":[
  {"id":"origami","artworks":[{"id":"crane","imageUrl":"/img/crane.jpg","category":"origami","mediumKey":"paper","year":2021}]}
]}`)
	writeFixture(t, root, "messages/artworks/nini/en.json", `{
  "Categories":{"origami":{"title":"Origami","description":"Folded paper"}},
  "Artworks":{"crane":{"title":"Crane","description":"A folded crane"}},
  "Mediums":{"paper":"Paper"}
}`)
	writeFixture(t, root, "messages/ui/en.json", `{"Site":{"name":"{artistName}'s Gallery"}}`)
	writeFixture(t, root, "messages/ui/admin/en.json", `{}`)

	cfg := &config.Config{
		Server: config.ServerConfig{
			Environment:     "production",
			RequestTimeout:  5 * time.Second,
			ShutdownTimeout: time.Second,
		},
		Tenants: config.TenantsConfig{Path: filepath.Join(root, "data", "tenants.json"), DefaultID: "nini"},
		Content: config.ContentConfig{Backend: "fs", Dir: root, CacheSize: 16},
		Admin:   config.AdminConfig{OTPStore: "memory"},
		Storage: config.StorageConfig{Type: "memory"},
	}
	app, err := New(context.Background(), cfg,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAdminConfig(admin.Config{}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { app.Close() })
	return app
}

func do(t *testing.T, h http.Handler, method, target, host string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader("{}"))
	req.Host = host
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(context.Background(), nil); err == nil {
		t.Error("New(nil) error = nil, want error")
	}
}

func TestRoutes(t *testing.T) {
	app := newTestApp(t)
	h := app.Handler()

	tests := []struct {
		name     string
		method   string
		target   string
		host     string
		status   int
		contains string
	}{
		{"root redirects to default locale", http.MethodGet, "/", "gallery.test:8080", http.StatusTemporaryRedirect, ""},
		{"locale page", http.MethodGet, "/en", "gallery.test", http.StatusOK, `"siteName":"Nini's Gallery"`},
		{"locale page with trailing slash", http.MethodGet, "/en/", "Gallery.Test.:443", http.StatusOK, `"title":"Crane"`},
		{"unprefixed artwork redirects", http.MethodGet, "/artwork/crane", "gallery.test", http.StatusTemporaryRedirect, ""},
		{"unrouted path is still filtered", http.MethodGet, "/about/team/x", "gallery.test", http.StatusTemporaryRedirect, ""},
		{"admin page without token", http.MethodGet, "/en/admin", "gallery.test", http.StatusTemporaryRedirect, ""},
		{"artwork page", http.MethodGet, "/en/artwork/crane", "gallery.test", http.StatusOK, `"title":"Crane"`},
		{"unsupported locale", http.MethodGet, "/xx", "gallery.test", http.StatusNotFound, ""},
		{"unknown host", http.MethodGet, "/en", "elsewhere.test", http.StatusNotFound, ""},
		{"artworks api", http.MethodGet, "/api/artworks?search=crane", "gallery.test", http.StatusOK, `"id":"crane"`},
		{"chat without key", http.MethodPost, "/api/chat", "gallery.test", http.StatusServiceUnavailable, "Chat is not configured yet."},
		{"admin config", http.MethodGet, "/api/admin/config", "gallery.test", http.StatusOK, `"configured":false`},
		{"admin settings need a session", http.MethodGet, "/api/admin/settings/artist", "gallery.test", http.StatusUnauthorized, "Unauthorized"},
		{"health ignores tenant", http.MethodGet, "/healthz", "elsewhere.test", http.StatusOK, `"ok"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.target, tt.host)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if tt.contains != "" && !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("body = %s, want it to contain %s", rec.Body.String(), tt.contains)
			}
		})
	}

	redirects := map[string]string{
		"/":              "/en",
		"/artwork/crane": "/en/artwork/crane",
		"/en/admin":      "/en/admin/login",
	}
	for target, want := range redirects {
		rec := do(t, h, http.MethodGet, target, "gallery.test")
		if loc := rec.Header().Get("Location"); loc != want {
			t.Errorf("GET %s Location = %q, want %q", target, loc, want)
		}
	}

	rec := do(t, h, http.MethodGet, "/", "gallery.test")
	if c := rec.Result().Cookies(); len(c) != 1 || c[0].Name != "locale" || c[0].Value != "en" {
		t.Errorf("GET / cookies = %v, want locale=en", c)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("response has no X-Request-ID")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t)
	h := app.Handler()
	do(t, h, http.MethodGet, "/en", "gallery.test")
	do(t, h, http.MethodGet, "/en", "elsewhere.test")

	rec := do(t, h, http.MethodGet, "/metrics", "anything")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`gallery_tenant_resolutions_total{outcome="resolved"} 1`,
		`gallery_tenant_resolutions_total{outcome="unresolved"} 1`,
		`gallery_http_requests_total{method="GET",route="/{locale}",status="200"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

func TestServeAndShutdown(t *testing.T) {
	app := newTestApp(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		cancel()
		t.Fatalf("GET /healthz: %v", err)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if body["status"] != "ok" {
		t.Errorf("healthz = %v", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}
