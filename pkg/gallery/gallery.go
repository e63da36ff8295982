// Package gallery provides the public API for embedding the gallery server.
// This is the stable API for external consumers.
package gallery

import (
	"github.com/HugeFrog24/nini-artgallery/internal/pkg/config"
	"github.com/HugeFrog24/nini-artgallery/internal/runtime"
)

// App is a fully wired gallery.
// See internal/runtime.App for full documentation.
type App = runtime.App

// Option is a functional option for configuring an App.
type Option = runtime.Option

// Config is the gallery configuration.
type Config = config.Config

// New builds a gallery from cfg.
// Example:
//
//	cfg, err := gallery.LoadConfig()
//	app, err := gallery.New(ctx, cfg, gallery.WithLogger(logger))
var New = runtime.New

// LoadConfig reads config.yaml and GALLERY_ environment overrides.
var LoadConfig = config.Load

// Configuration options
var (
	WithLogger          = runtime.WithLogger
	WithContentStore    = runtime.WithContentStore
	WithTranscriptStore = runtime.WithTranscriptStore
	WithOTPStore        = runtime.WithOTPStore
	WithMailer          = runtime.WithMailer
	WithAdminConfig     = runtime.WithAdminConfig
	WithCompleter       = runtime.WithCompleter
)
