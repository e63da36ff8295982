// Package site serves the visitor-facing gallery data: the page bundle for a
// locale, single artwork pages and the filtered artworks API. Rendering is
// left to the frontend; these handlers return JSON.
package site

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/HugeFrog24/nini-artgallery/internal/content"
	"github.com/HugeFrog24/nini-artgallery/internal/locale"
	"github.com/HugeFrog24/nini-artgallery/internal/server"
	"github.com/HugeFrog24/nini-artgallery/internal/tenant"
)

// Page is everything a locale's gallery page is rendered from.
type Page struct {
	*content.Bundle
	SiteName        string                  `json:"siteName"`
	PersonalMessage content.PersonalMessage `json:"personalMessage"`
	SiteKeywords    []string                `json:"siteKeywords"`
}

// ArtworkPage is the data for a single artwork's page.
type ArtworkPage struct {
	Locale   string                `json:"locale"`
	SiteName string                `json:"siteName"`
	Artist   content.ArtistProfile `json:"artist"`
	Artwork  content.Artwork       `json:"artwork"`
}

// Handler serves the public routes.
type Handler struct {
	tenants *tenant.Resolver
	content *content.Resolver
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// New creates the site handler.
func New(tenants *tenant.Resolver, resolver *content.Resolver, opts ...Option) *Handler {
	h := &Handler{
		tenants: tenants,
		content: resolver,
		logger:  slog.Default(),
		tracer:  otel.Tracer("github.com/HugeFrog24/nini-artgallery/internal/site"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes mounts the public routes on r. Locale routes expect the edge
// filter to have validated the locale segment.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/artworks", h.handleArtworks)
	r.Get("/{locale}", h.handlePage)
	r.Get("/{locale}/artwork/{id}", h.handleArtwork)
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleArtworks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	query := content.Query{
		Category: q.Get("category"),
		Year:     q.Get("year"),
		Medium:   q.Get("medium"),
		Search:   strings.TrimSpace(q.Get("search")),
		SortBy:   q.Get("sortBy"),
		Order:    q.Get("order"),
		Locale:   requestLocale(r),
	}
	if query.Order == "" {
		query.Order = content.OrderAsc
	}

	tenantID, err := h.tenants.ResolveFromRequest(r)
	if err != nil {
		h.internalError(w, r, "resolve tenant", err)
		return
	}
	catalog, err := h.content.Catalog(ctx, tenantID, query.Locale, content.FailOnMissing)
	if err != nil {
		h.internalError(w, r, "load catalog", err)
		return
	}
	sections := content.Apply(catalog, query)
	h.logger.Debug("artworks query",
		slog.String("tenant_id", tenantID),
		slog.String("locale", query.Locale),
		slog.String("search", query.Search),
		slog.Int("sections", len(sections)))
	writeJSON(w, http.StatusOK, sections)
}

// requestLocale picks the ?locale= parameter, then the edge-negotiated
// locale, then the locale cookie.
func requestLocale(r *http.Request) string {
	if code := r.URL.Query().Get("locale"); locale.IsSupported(code) {
		return code
	}
	if code, ok := locale.FromContext(r.Context()); ok {
		return code
	}
	if c, err := r.Cookie(locale.CookieName); err == nil && locale.IsSupported(c.Value) {
		return c.Value
	}
	return locale.Default
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	code, ok := h.pageLocale(w, r)
	if !ok {
		return
	}
	tenantID, err := h.tenants.ResolveFromRequest(r)
	if err != nil {
		h.internalError(w, r, "resolve tenant", err)
		return
	}
	page, err := h.Page(r.Context(), tenantID, code)
	if err != nil {
		h.internalError(w, r, "build page", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) handleArtwork(w http.ResponseWriter, r *http.Request) {
	code, ok := h.pageLocale(w, r)
	if !ok {
		return
	}
	tenantID, err := h.tenants.ResolveFromRequest(r)
	if err != nil {
		h.internalError(w, r, "resolve tenant", err)
		return
	}
	bundle, err := h.content.GetBundle(r.Context(), tenantID, code)
	if err != nil {
		h.internalError(w, r, "build artwork page", err)
		return
	}
	id := chi.URLParam(r, "id")
	artwork, found := bundle.FindArtwork(id)
	if !found {
		server.AddLogField(r.Context(), "artwork_id", id)
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not Found"})
		return
	}
	siteName, err := siteName(bundle)
	if err != nil {
		h.internalError(w, r, "build artwork page", err)
		return
	}
	writeJSON(w, http.StatusOK, ArtworkPage{
		Locale:   code,
		SiteName: siteName,
		Artist:   bundle.Artist,
		Artwork:  artwork,
	})
}

func (h *Handler) pageLocale(w http.ResponseWriter, r *http.Request) (string, bool) {
	code := chi.URLParam(r, "locale")
	if !locale.IsSupported(code) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not Found"})
		return "", false
	}
	return code, true
}

// Page assembles the gallery page for (tenantID, code). The personal
// message and keywords are optional documents.
func (h *Handler) Page(ctx context.Context, tenantID, code string) (*Page, error) {
	ctx, span := h.tracer.Start(ctx, "site.Page", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("locale", code),
	))
	defer span.End()

	page := &Page{SiteKeywords: []string{}}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bundle, err := h.content.GetBundle(gctx, tenantID, code)
		if err != nil {
			return err
		}
		page.Bundle = bundle
		return nil
	})
	g.Go(func() error {
		msg, err := h.content.PersonalMessage(gctx, tenantID)
		if errors.Is(err, content.ErrNotFound) {
			return nil
		}
		page.PersonalMessage = msg
		return err
	})
	g.Go(func() error {
		keywords, err := h.content.SiteKeywords(gctx, tenantID)
		if errors.Is(err, content.ErrNotFound) {
			return nil
		}
		if keywords != nil {
			page.SiteKeywords = keywords
		}
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	name, err := siteName(page.Bundle)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	page.SiteName = name
	return page, nil
}

func siteName(b *content.Bundle) (string, error) {
	tmpl, err := b.UI("Site.name")
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(tmpl, "{artistName}", b.Artist.Name), nil
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg+" failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()))
	server.AddError(r.Context(), err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
