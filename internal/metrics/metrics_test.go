package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromCounters(t *testing.T) {
	p := NewProm("gallery")
	p.IncTenantResolution(OutcomeResolved)
	p.IncTenantResolution(OutcomeResolved)
	p.IncLocaleDecision("redirect")
	p.IncToolCall("setTheme", "ok")

	if got := testutil.ToFloat64(p.tenantResolutions.WithLabelValues(OutcomeResolved)); got != 2 {
		t.Errorf("tenant resolutions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.localeDecisions.WithLabelValues("redirect")); got != 1 {
		t.Errorf("locale decisions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.toolCalls.WithLabelValues("setTheme", "ok")); got != 1 {
		t.Errorf("tool calls = %v, want 1", got)
	}
}

func TestPromInstancesAreIndependent(t *testing.T) {
	a := NewProm("gallery")
	b := NewProm("gallery")
	a.IncChatTurn("ok")
	if got := testutil.ToFloat64(b.chatTurns.WithLabelValues("ok")); got != 0 {
		t.Errorf("second instance chat turns = %v, want 0", got)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	p := NewProm("gallery")
	r := chi.NewRouter()
	r.Use(Middleware(p))
	r.Get("/api/artworks", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", p.Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/artworks", nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	want := `gallery_http_requests_total{method="GET",route="/api/artworks",status="418"} 1`
	if !strings.Contains(string(body), want) {
		t.Errorf("metrics output missing %q\n%s", want, body)
	}
}
