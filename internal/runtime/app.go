// Package runtime assembles the gallery from its configuration and manages
// the lifecycle of the HTTP server and its background workers.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/HugeFrog24/nini-artgallery/internal/admin"
	"github.com/HugeFrog24/nini-artgallery/internal/chat"
	"github.com/HugeFrog24/nini-artgallery/internal/content"
	"github.com/HugeFrog24/nini-artgallery/internal/edge"
	"github.com/HugeFrog24/nini-artgallery/internal/locale"
	"github.com/HugeFrog24/nini-artgallery/internal/metrics"
	"github.com/HugeFrog24/nini-artgallery/internal/pkg/config"
	"github.com/HugeFrog24/nini-artgallery/internal/server"
	"github.com/HugeFrog24/nini-artgallery/internal/site"
	"github.com/HugeFrog24/nini-artgallery/internal/storage"
	"github.com/HugeFrog24/nini-artgallery/internal/storage/memory"
	"github.com/HugeFrog24/nini-artgallery/internal/storage/sqlite"
	"github.com/HugeFrog24/nini-artgallery/internal/tenant"
)

// ChatPath is the streaming chat endpoint. It is exempt from the request
// timeout.
const ChatPath = "/api/chat"

// Operational endpoints, served without tenant or locale handling.
const (
	HealthPath  = "/healthz"
	MetricsPath = "/metrics"
)

const sweepInterval = time.Minute

// App is a fully wired gallery. It can be embedded in a larger program or
// run standalone by cmd/gallery.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	// Dependencies, injectable via options.
	contentStore content.Store
	transcripts  storage.TranscriptStore
	otps         admin.OTPStore
	mailer       admin.Mailer
	completer    chat.Completer
	adminCfg     *admin.Config

	directory *tenant.Directory
	tenants   *tenant.Resolver
	content   *content.Resolver
	metrics   *metrics.Prom
	server    *server.Server

	closers []func() error
}

// New builds the gallery described by cfg.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	a := &App{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.cfg
	production := cfg.Server.Production()

	a.directory = tenant.NewDirectory(tenant.FileLoader{Path: cfg.Tenants.Path})
	a.tenants = tenant.NewResolver(a.directory,
		tenant.WithDefaultID(cfg.Tenants.DefaultID),
		tenant.WithProduction(production),
	)

	store, err := a.openContentStore(ctx)
	if err != nil {
		return err
	}
	cached, err := content.NewCachedStore(store, cfg.Content.CacheSize)
	if err != nil {
		return err
	}
	a.content = content.NewResolver(cached, content.WithLogger(a.logger))

	if a.transcripts == nil {
		if a.transcripts, err = a.openTranscripts(); err != nil {
			return err
		}
	}

	if a.adminCfg == nil {
		adminCfg, err := admin.LoadConfigFromEnv()
		if err != nil {
			return err
		}
		a.adminCfg = &adminCfg
	}
	if a.otps == nil {
		if a.otps, err = a.openOTPStore(ctx); err != nil {
			return err
		}
	}

	a.metrics = metrics.NewProm("gallery")
	a.server = server.New(server.Config{
		Port:            cfg.Server.Port,
		RequestTimeout:  cfg.Server.RequestTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		TimeoutExempt:   []string{ChatPath},
	}, a.logger)

	a.routes(production)

	a.logger.Info("gallery assembled",
		slog.String("environment", cfg.Server.Environment),
		slog.String("content_backend", cfg.Content.Backend),
		slog.String("storage", cfg.Storage.Type),
		slog.String("otp_store", cfg.Admin.OTPStore),
		slog.Bool("admin_configured", a.adminCfg.Configured()),
		slog.Bool("chat_configured", cfg.Chat.APIKey != "" || a.completer != nil))
	return nil
}

func (a *App) routes(production bool) {
	filter := edge.New(a.tenants, locale.NewNegotiator(),
		edge.WithMetrics(a.metrics),
		edge.WithLogger(a.logger),
		edge.WithExempt(HealthPath, MetricsPath),
	)

	chatOpts := []chat.Option{chat.WithMetrics(a.metrics), chat.WithLogger(a.logger)}
	if a.completer != nil {
		chatOpts = append(chatOpts, chat.WithCompleter(a.completer))
	}
	if a.transcripts != nil {
		chatOpts = append(chatOpts, chat.WithTranscripts(a.transcripts))
	}
	chatAPI := chat.NewAPI(chat.Config{
		APIKey:      a.cfg.Chat.APIKey,
		BaseURL:     a.cfg.Chat.BaseURL,
		Model:       a.cfg.Chat.Model,
		MaxChars:    a.cfg.Chat.MaxChars,
		TokenBudget: a.cfg.Chat.TokenBudget,
	}, a.tenants, a.content, chatOpts...)

	adminOpts := []admin.Option{
		admin.WithOTPStore(a.otps),
		admin.WithProduction(production),
		admin.WithLogger(a.logger),
	}
	if a.mailer != nil {
		adminOpts = append(adminOpts, admin.WithMailer(a.mailer))
	}
	if a.transcripts != nil {
		adminOpts = append(adminOpts, admin.WithTranscripts(a.transcripts))
	}
	adminHandler := admin.NewHandler(*a.adminCfg, a.tenants, a.content, adminOpts...)
	siteHandler := site.New(a.tenants, a.content, site.WithLogger(a.logger))

	// The filter runs at the root so that paths without a route still get
	// tenant resolution, the admin gate and locale redirects.
	r := a.server.Router
	r.Use(metrics.Middleware(a.metrics))
	r.Use(filter.Middleware)
	r.Use(middleware.StripSlashes)

	r.Method(http.MethodGet, MetricsPath, a.metrics.Handler())
	r.Get(HealthPath, site.Healthz)
	r.Method(http.MethodPost, ChatPath, chatAPI)
	adminHandler.Routes(r)
	siteHandler.Routes(r)
}

func (a *App) openContentStore(ctx context.Context) (content.Store, error) {
	if a.contentStore != nil {
		return a.contentStore, nil
	}
	switch a.cfg.Content.Backend {
	case "s3":
		store, err := content.NewS3StoreFromEnv(ctx, a.cfg.Content.S3.Bucket, a.cfg.Content.S3.Prefix)
		if err != nil {
			return nil, fmt.Errorf("open s3 content store: %w", err)
		}
		return store, nil
	default:
		return content.NewFileStore(a.cfg.Content.Dir), nil
	}
}

func (a *App) openTranscripts() (storage.TranscriptStore, error) {
	switch a.cfg.Storage.Type {
	case "sqlite":
		store, err := sqlite.New(a.cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open transcript store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case "memory":
		return memory.New(), nil
	default:
		return nil, nil
	}
}

func (a *App) openOTPStore(ctx context.Context) (admin.OTPStore, error) {
	if a.cfg.Admin.OTPStore != "redis" {
		return admin.NewMemoryOTPStore(*a.adminCfg), nil
	}
	url := a.cfg.Admin.RedisURL
	if url == "" {
		url = a.adminCfg.RedisURL
	}
	store, err := admin.NewRedisOTPStore(ctx, url, *a.adminCfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)
	return store, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.server.Router
}

// Start listens on the configured port and serves until ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	if err := a.startWorkers(ctx); err != nil {
		return err
	}
	return a.server.Start(ctx)
}

// Serve is Start on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	if err := a.startWorkers(ctx); err != nil {
		return err
	}
	return a.server.Serve(ctx, ln)
}

func (a *App) startWorkers(ctx context.Context) error {
	// A directory that cannot load now still fails requests with 503; the
	// warm-up only surfaces the problem early in the log.
	if _, err := a.directory.Load(ctx); err != nil {
		a.logger.Warn("tenant directory not loaded", slog.String("error", err.Error()))
	}
	if a.cfg.Tenants.Watch {
		if err := tenant.Watch(ctx, a.cfg.Tenants.Path, a.directory, a.logger); err != nil {
			return fmt.Errorf("watch tenant directory: %w", err)
		}
	}
	if sweeper, ok := a.otps.(*admin.MemoryOTPStore); ok {
		go sweeper.RunSweeper(ctx, sweepInterval)
	}
	return nil
}

// Close releases stores opened by New.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
