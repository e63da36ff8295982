package runtime

import (
	"errors"
	"log/slog"

	"github.com/HugeFrog24/nini-artgallery/internal/admin"
	"github.com/HugeFrog24/nini-artgallery/internal/chat"
	"github.com/HugeFrog24/nini-artgallery/internal/content"
	"github.com/HugeFrog24/nini-artgallery/internal/storage"
)

// Option is a functional option for configuring an App.
type Option func(*App) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) error {
		if logger == nil {
			return errors.New("nil logger")
		}
		a.logger = logger
		return nil
	}
}

// WithContentStore replaces the configured content backend. The store is
// still wrapped by the raw-document cache.
func WithContentStore(store content.Store) Option {
	return func(a *App) error {
		a.contentStore = store
		return nil
	}
}

// WithTranscriptStore replaces the configured transcript storage.
// The caller keeps ownership and closes it.
func WithTranscriptStore(store storage.TranscriptStore) Option {
	return func(a *App) error {
		a.transcripts = store
		return nil
	}
}

// WithOTPStore replaces the configured admin code store.
func WithOTPStore(store admin.OTPStore) Option {
	return func(a *App) error {
		a.otps = store
		return nil
	}
}

// WithMailer replaces the SMTP mailer.
func WithMailer(m admin.Mailer) Option {
	return func(a *App) error {
		a.mailer = m
		return nil
	}
}

// WithAdminConfig uses cfg instead of reading the admin environment.
func WithAdminConfig(cfg admin.Config) Option {
	return func(a *App) error {
		a.adminCfg = &cfg
		return nil
	}
}

// WithCompleter replaces the upstream chat model client.
func WithCompleter(c chat.Completer) Option {
	return func(a *App) error {
		a.completer = c
		return nil
	}
}
