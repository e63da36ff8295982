package content

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Invalidator is implemented by stores that cache per-tenant documents.
type Invalidator interface {
	InvalidateTenant(tenantID string)
}

// Resolver reads tenant documents and assembles locale-resolved content.
type Resolver struct {
	store  Store
	logger *slog.Logger
	tracer trace.Tracer
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the resolver logger.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a resolver over store.
func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:  store,
		logger: slog.Default(),
		tracer: otel.Tracer("github.com/HugeFrog24/nini-artgallery/internal/content"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the underlying document store.
func (r *Resolver) Store() Store {
	return r.store
}

// GetBundle assembles the content bundle for (tenantID, locale). The three
// slices are read concurrently and joined; the first failure wins. The
// merged bundle is built fresh on every call.
func (r *Resolver) GetBundle(ctx context.Context, tenantID, locale string) (*Bundle, error) {
	ctx, span := r.tracer.Start(ctx, "content.GetBundle", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("locale", locale),
	))
	defer span.End()

	bundle := &Bundle{TenantID: tenantID, Locale: locale}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ui, err := r.UIStrings(gctx, locale)
		if err != nil {
			return err
		}
		bundle.UIStrings = ui
		return nil
	})
	g.Go(func() error {
		artist, err := r.Artist(gctx, tenantID, locale)
		if err != nil {
			return err
		}
		bundle.Artist = artist
		return nil
	})
	g.Go(func() error {
		catalog, err := r.Catalog(gctx, tenantID, locale, FailOnMissing)
		if err != nil {
			return err
		}
		bundle.Catalog = catalog
		return nil
	})

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		r.logger.Error("content bundle assembly failed",
			slog.String("tenant_id", tenantID),
			slog.String("locale", locale),
			slog.String("error", err.Error()))
		return nil, err
	}
	return bundle, nil
}

// UIStrings loads the shared interface strings for locale. Admin strings are
// merged under the "admin" prefix. Both documents are required.
func (r *Resolver) UIStrings(ctx context.Context, locale string) (Messages, error) {
	ui, err := r.messages(ctx, SharedMessages(CategoryUI, locale))
	if err != nil {
		return nil, err
	}
	admin, err := r.messages(ctx, SharedMessages(CategoryAdminUI, locale))
	if err != nil {
		return nil, err
	}
	out := make(Messages, len(ui)+len(admin))
	out.Merge("", ui)
	out.Merge("admin", admin)
	return out, nil
}

// Artist returns the artist profile for locale, falling back to the tenant's
// primary-language record when no translation exists for locale. Both
// documents are required.
func (r *Resolver) Artist(ctx context.Context, tenantID, locale string) (ArtistProfile, error) {
	var (
		record       ArtistRecord
		translations ArtistTranslations
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		record, err = r.ReadArtist(gctx, tenantID)
		return err
	})
	g.Go(func() error {
		var err error
		translations, err = r.ReadArtistTranslations(gctx, tenantID)
		return err
	})
	if err := g.Wait(); err != nil {
		return ArtistProfile{}, err
	}

	if tr, ok := translations[locale]; ok {
		return ArtistProfile{Name: tr.Name, Description: tr.Description}, nil
	}
	return ArtistProfile{Name: record.Name, Description: record.Description}, nil
}

// Catalog merges the tenant's base catalog with the locale's translations.
func (r *Resolver) Catalog(ctx context.Context, tenantID, locale string, policy MissingKeyPolicy) ([]CategorySection, error) {
	var (
		base  baseCatalog
		table Messages
	)
	tableKey := TenantMessages(CategoryArtworks, tenantID, locale)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.readJSON(gctx, TenantData(tenantID, FileArtworksBase), &base)
	})
	g.Go(func() error {
		var err error
		table, err = r.messages(gctx, tableKey)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return mergeCatalog(base.CategorySections, table, locale, tableKey.Path(), policy)
}

// PersonalMessage reads the tenant's broadcast message.
func (r *Resolver) PersonalMessage(ctx context.Context, tenantID string) (PersonalMessage, error) {
	var m PersonalMessage
	if err := r.readJSON(ctx, TenantData(tenantID, FilePersonalMessage), &m); err != nil {
		return PersonalMessage{}, err
	}
	return m, nil
}

// SiteKeywords reads the tenant's keyword tags.
func (r *Resolver) SiteKeywords(ctx context.Context, tenantID string) ([]string, error) {
	var doc tagsDocument
	if err := r.readJSON(ctx, TenantData(tenantID, FileTags), &doc); err != nil {
		return nil, err
	}
	return doc.SiteKeywords, nil
}

// ReadArtist reads the tenant's primary-language artist record.
func (r *Resolver) ReadArtist(ctx context.Context, tenantID string) (ArtistRecord, error) {
	var rec ArtistRecord
	if err := r.readJSON(ctx, TenantData(tenantID, FileArtist), &rec); err != nil {
		return ArtistRecord{}, err
	}
	return rec, nil
}

// ReadArtistTranslations reads the tenant's per-locale artist translations.
func (r *Resolver) ReadArtistTranslations(ctx context.Context, tenantID string) (ArtistTranslations, error) {
	var tr ArtistTranslations
	if err := r.readJSON(ctx, TenantData(tenantID, FileArtistTranslations), &tr); err != nil {
		return nil, err
	}
	if tr == nil {
		tr = ArtistTranslations{}
	}
	return tr, nil
}

// WriteArtist replaces the artist name and description. The stored default
// language is preserved.
func (r *Resolver) WriteArtist(ctx context.Context, tenantID string, profile ArtistProfile) (ArtistRecord, error) {
	current, err := r.ReadArtist(ctx, tenantID)
	if err != nil {
		return ArtistRecord{}, err
	}
	updated := ArtistRecord{
		Name:            profile.Name,
		Description:     profile.Description,
		DefaultLanguage: current.DefaultLanguage,
	}
	if err := r.writeJSON(ctx, TenantData(tenantID, FileArtist), updated); err != nil {
		return ArtistRecord{}, err
	}
	return updated, nil
}

// WriteArtistTranslations replaces the artist translations document.
func (r *Resolver) WriteArtistTranslations(ctx context.Context, tenantID string, tr ArtistTranslations) error {
	return r.writeJSON(ctx, TenantData(tenantID, FileArtistTranslations), tr)
}

// WritePersonalMessage replaces the broadcast message document.
func (r *Resolver) WritePersonalMessage(ctx context.Context, tenantID string, m PersonalMessage) error {
	return r.writeJSON(ctx, TenantData(tenantID, FilePersonalMessage), m)
}

// Invalidate drops cached raw documents for tenantID when the store caches.
func (r *Resolver) Invalidate(tenantID string) {
	if inv, ok := r.store.(Invalidator); ok {
		inv.InvalidateTenant(tenantID)
		r.logger.Info("content cache invalidated", slog.String("tenant_id", tenantID))
	}
}

func (r *Resolver) messages(ctx context.Context, key Key) (Messages, error) {
	data, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	m, err := ParseMessages(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return m, nil
}

func (r *Resolver) readJSON(ctx context.Context, key Key, v any) error {
	data, err := r.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	return nil
}

func (r *Resolver) writeJSON(ctx context.Context, key Key, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.store.Put(ctx, key, data); err != nil {
		return err
	}
	r.Invalidate(key.TenantID)
	return nil
}
