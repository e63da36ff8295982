// Package admin implements the gallery owner's back office: one-time-code
// login for a single configured address, JWT sessions, and the settings
// endpoints that write tenant content.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/HugeFrog24/nini-artgallery/internal/content"
	"github.com/HugeFrog24/nini-artgallery/internal/edge"
	"github.com/HugeFrog24/nini-artgallery/internal/locale"
	"github.com/HugeFrog24/nini-artgallery/internal/server"
	"github.com/HugeFrog24/nini-artgallery/internal/storage"
	"github.com/HugeFrog24/nini-artgallery/internal/tenant"
)

// Field limits for settings writes, counted in characters.
const (
	MaxArtistName        = 100
	MaxArtistDescription = 1000
	MaxRecipient         = 100
	MaxMessage           = 2000
)

const maxBodyBytes = 64 << 10

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Token   string `json:"token,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Handler serves /api/admin.
type Handler struct {
	cfg         Config
	otps        OTPStore
	mailer      Mailer
	tokens      *Tokens
	content     *content.Resolver
	tenants     *tenant.Resolver
	transcripts storage.TranscriptStore
	production  bool
	logger      *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithOTPStore replaces the in-memory code store.
func WithOTPStore(s OTPStore) Option {
	return func(h *Handler) { h.otps = s }
}

// WithMailer replaces the SMTP mailer.
func WithMailer(m Mailer) Option {
	return func(h *Handler) { h.mailer = m }
}

// WithTranscripts exposes chat transcripts to the admin.
func WithTranscripts(s storage.TranscriptStore) Option {
	return func(h *Handler) { h.transcripts = s }
}

// WithProduction marks session cookies Secure.
func WithProduction(production bool) Option {
	return func(h *Handler) { h.production = production }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler creates the admin handler.
func NewHandler(cfg Config, tenants *tenant.Resolver, resolver *content.Resolver, opts ...Option) *Handler {
	cfg.applyDefaults()
	h := &Handler{
		cfg:     cfg,
		tenants: tenants,
		content: resolver,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.otps == nil {
		h.otps = NewMemoryOTPStore(cfg)
	}
	if h.mailer == nil {
		h.mailer = NewSMTPMailer(cfg)
	}
	h.tokens = NewTokens(cfg.JWTSecret, cfg.AdminEmail, cfg.SessionTTL)
	return h
}

// Routes mounts the admin API on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/admin", func(r chi.Router) {
		r.Get("/config", h.handleConfig)
		r.Post("/auth/request-otp", h.handleRequestOTP)
		r.Post("/auth/verify-otp", h.handleVerifyOTP)
		r.Get("/auth/session", h.handleSession)
		r.Post("/auth/logout", h.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(h.requireSession)
			r.Get("/settings/artist", h.handleGetArtist)
			r.Put("/settings/artist", h.handlePutArtist)
			r.Get("/settings/personal-message", h.handleGetPersonalMessage)
			r.Put("/settings/personal-message", h.handlePutPersonalMessage)
			r.Get("/transcripts", h.handleListTranscripts)
			r.Get("/transcripts/{id}", h.handleGetTranscript)
			r.Delete("/transcripts/{id}", h.handleDeleteTranscript)
		})
	})
}

type sessionCtxKey struct{}

// SessionFromContext returns the session attached by the auth middleware.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionCtxKey{}).(*Session)
	return s, ok
}

func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := edge.AdminToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, response{Message: "Unauthorized"})
			return
		}
		session, err := h.tokens.Verify(token)
		if err != nil {
			server.AddError(r.Context(), err)
			writeJSON(w, http.StatusUnauthorized, response{Message: "Unauthorized"})
			return
		}
		ctx := context.WithValue(r.Context(), sessionCtxKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	configured := h.cfg.Configured()
	message := "Admin is properly configured"
	if !configured {
		h.logger.Warn("admin not configured", slog.Any("missing", h.cfg.Missing()))
		message = "Admin login requires environment configuration"
	}
	writeJSON(w, http.StatusOK, map[string]any{"configured": configured, "message": message})
}

func (h *Handler) notConfigured(w http.ResponseWriter) bool {
	if h.cfg.Configured() {
		return false
	}
	h.logger.Error("admin login not configured", slog.Any("missing", h.cfg.Missing()))
	writeJSON(w, http.StatusServiceUnavailable, response{
		Message: "Admin login is not configured. Please check server configuration.",
	})
	return true
}

func (h *Handler) handleRequestOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notConfigured(w) {
		return
	}

	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(w, r, &body); err != nil || body.Email == "" {
		writeJSON(w, http.StatusBadRequest, response{Message: "Valid email is required"})
		return
	}
	if body.Email != h.cfg.AdminEmail {
		writeJSON(w, http.StatusForbidden, response{Message: "Unauthorized email address"})
		return
	}

	allowed, err := h.otps.Allow(ctx, body.Email)
	if err != nil {
		h.internalError(w, r, "otp rate check failed", err)
		return
	}
	if !allowed {
		writeJSON(w, http.StatusTooManyRequests, response{Message: "Too many requests. Please try again in 15 minutes."})
		return
	}

	code, err := GenerateOTP()
	if err != nil {
		h.internalError(w, r, "otp generation failed", err)
		return
	}

	if err := h.sendCode(ctx, r, body.Email, code); err != nil {
		h.logger.Error("failed to send otp email", slog.String("error", err.Error()))
		server.AddError(ctx, err)
		writeJSON(w, http.StatusInternalServerError, response{Message: "Failed to send verification email. Please try again."})
		return
	}

	if err := h.otps.Save(ctx, body.Email, code); err != nil {
		h.internalError(w, r, "otp store failed", err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "Verification code sent to your email address"})
}

func (h *Handler) sendCode(ctx context.Context, r *http.Request, email, code string) error {
	loc := locale.Default
	if c, err := r.Cookie(locale.CookieName); err == nil && locale.IsSupported(c.Value) {
		loc = c.Value
	}
	tenantID, err := h.tenants.ResolveFromRequest(r)
	if err != nil {
		return err
	}
	msg, err := ComposeOTPEmail(ctx, h.content, tenantID, loc, email, code)
	if err != nil {
		return err
	}
	return h.mailer.Send(ctx, msg)
}

func (h *Handler) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notConfigured(w) {
		return
	}

	var body struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	if err := decodeBody(w, r, &body); err != nil || body.Email == "" || body.OTP == "" {
		writeJSON(w, http.StatusBadRequest, response{Message: "Email and OTP are required"})
		return
	}
	if body.Email != h.cfg.AdminEmail {
		writeJSON(w, http.StatusForbidden, response{Message: "Unauthorized email address"})
		return
	}

	ok, err := h.otps.Verify(ctx, body.Email, body.OTP)
	if err != nil {
		h.internalError(w, r, "otp verification failed", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusUnauthorized, response{Message: "Invalid or expired verification code"})
		return
	}

	token, err := h.tokens.Issue(body.Email)
	if err != nil {
		h.internalError(w, r, "session issue failed", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     edge.AdminTokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.tokens.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.production,
		SameSite: http.SameSiteStrictMode,
	})
	h.logger.Info("admin signed in", slog.String("email", body.Email))
	writeJSON(w, http.StatusOK, response{Success: true, Message: "Authentication successful", Token: token})
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(edge.AdminTokenCookie)
	if err != nil || c.Value == "" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	session, err := h.tokens.Verify(c.Value)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "email": session.Email})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     edge.AdminTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.production,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, response{Success: true, Message: "Signed out"})
}

// tenantID resolves the request's tenant or answers 404.
func (h *Handler) tenantID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := h.tenants.ResolveFromRequest(r)
	if err != nil {
		server.AddError(r.Context(), err)
		writeJSON(w, http.StatusNotFound, response{Message: "Unknown tenant"})
		return "", false
	}
	server.AddLogField(r.Context(), "tenant_id", id)
	return id, true
}

type artistSettings struct {
	Name            string                     `json:"name"`
	Description     string                     `json:"description"`
	DefaultLanguage string                     `json:"defaultLanguage,omitempty"`
	Translations    content.ArtistTranslations `json:"translations"`
}

func (h *Handler) handleGetArtist(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	var (
		record       content.ArtistRecord
		translations content.ArtistTranslations
	)
	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		record, err = h.content.ReadArtist(gctx, tenantID)
		return err
	})
	g.Go(func() error {
		var err error
		translations, err = h.content.ReadArtistTranslations(gctx, tenantID)
		return err
	})
	if err := g.Wait(); err != nil {
		h.failure(w, r, "Failed to read artist data", err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Data: artistSettings{
		Name:            record.Name,
		Description:     record.Description,
		DefaultLanguage: record.DefaultLanguage,
		Translations:    translations,
	}})
}

func (h *Handler) handlePutArtist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	var body struct {
		Name         *string                    `json:"name"`
		Description  *string                    `json:"description"`
		Translations map[string]json.RawMessage `json:"translations"`
	}
	if err := decodeBody(w, r, &body); err != nil || body.Name == nil || body.Description == nil {
		writeJSON(w, http.StatusBadRequest, response{Message: "Invalid input data"})
		return
	}
	if utf8.RuneCountInString(*body.Name) > MaxArtistName {
		writeJSON(w, http.StatusBadRequest, response{Message: "Artist name too long (max 100 characters)"})
		return
	}
	if utf8.RuneCountInString(*body.Description) > MaxArtistDescription {
		writeJSON(w, http.StatusBadRequest, response{Message: "Artist description too long (max 1000 characters)"})
		return
	}

	translations, msg := cleanTranslations(body.Translations)
	if msg != "" {
		writeJSON(w, http.StatusBadRequest, response{Message: msg})
		return
	}

	profile := content.ArtistProfile{
		Name:        strings.TrimSpace(*body.Name),
		Description: strings.TrimSpace(*body.Description),
	}
	if _, err := h.content.WriteArtist(ctx, tenantID, profile); err != nil {
		h.failure(w, r, "Failed to update artist profile", err)
		return
	}
	if translations != nil {
		if err := h.content.WriteArtistTranslations(ctx, tenantID, translations); err != nil {
			h.failure(w, r, "Failed to update artist profile", err)
			return
		}
	}
	h.logger.Info("artist profile updated", slog.String("tenant_id", tenantID))

	if translations == nil {
		translations = content.ArtistTranslations{}
	}
	writeJSON(w, http.StatusOK, response{
		Success: true,
		Message: "Artist profile updated successfully",
		Data: artistSettings{
			Name:         profile.Name,
			Description:  profile.Description,
			Translations: translations,
		},
	})
}

// cleanTranslations validates and trims submitted translations. Entries
// that are not objects are skipped. A nil result means none were submitted.
func cleanTranslations(raw map[string]json.RawMessage) (content.ArtistTranslations, string) {
	if raw == nil {
		return nil, ""
	}
	codes := make([]string, 0, len(raw))
	for code := range raw {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	out := make(content.ArtistTranslations, len(raw))
	for _, code := range codes {
		var decoded any
		if json.Unmarshal(raw[code], &decoded) != nil {
			continue
		}
		if _, isObject := decoded.(map[string]any); !isObject {
			continue
		}
		var tr struct {
			Name        *string `json:"name"`
			Description *string `json:"description"`
		}
		if err := json.Unmarshal(raw[code], &tr); err != nil || tr.Name == nil || tr.Description == nil {
			return nil, "Invalid translation data for locale: " + code
		}
		if utf8.RuneCountInString(*tr.Name) > MaxArtistName {
			return nil, "Translation name too long for " + code + " (max 100 characters)"
		}
		if utf8.RuneCountInString(*tr.Description) > MaxArtistDescription {
			return nil, "Translation description too long for " + code + " (max 1000 characters)"
		}
		out[code] = content.ArtistTranslation{
			Name:        strings.TrimSpace(*tr.Name),
			Description: strings.TrimSpace(*tr.Description),
		}
	}
	return out, ""
}

func (h *Handler) handleGetPersonalMessage(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	msg, err := h.content.PersonalMessage(r.Context(), tenantID)
	if err != nil {
		h.failure(w, r, "Failed to read personal message", err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Data: msg})
}

func (h *Handler) handlePutPersonalMessage(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	var body struct {
		Enabled     *bool   `json:"enabled"`
		Recipient   *string `json:"recipient"`
		Message     *string `json:"message"`
		Dismissible *bool   `json:"dismissible"`
	}
	if err := decodeBody(w, r, &body); err != nil ||
		body.Enabled == nil || body.Recipient == nil || body.Message == nil || body.Dismissible == nil {
		writeJSON(w, http.StatusBadRequest, response{Message: "Invalid input data"})
		return
	}
	if utf8.RuneCountInString(*body.Recipient) > MaxRecipient {
		writeJSON(w, http.StatusBadRequest, response{Message: "Recipient name too long (max 100 characters)"})
		return
	}
	if utf8.RuneCountInString(*body.Message) > MaxMessage {
		writeJSON(w, http.StatusBadRequest, response{Message: "Message too long (max 2000 characters)"})
		return
	}

	recipient := strings.TrimSpace(*body.Recipient)
	updated := content.PersonalMessage{
		Enabled:     *body.Enabled,
		Recipient:   recipient,
		Message:     strings.TrimSpace(*body.Message),
		Dismissible: *body.Dismissible,
		AriaLabel:   "Personal message for " + recipient,
	}
	if err := h.content.WritePersonalMessage(r.Context(), tenantID, updated); err != nil {
		h.failure(w, r, "Failed to update personal message", err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "Personal message updated successfully", Data: updated})
}

func (h *Handler) transcriptsEnabled(w http.ResponseWriter) bool {
	if h.transcripts != nil {
		return true
	}
	writeJSON(w, http.StatusServiceUnavailable, response{Message: "Chat transcripts are not enabled"})
	return false
}

func (h *Handler) handleListTranscripts(w http.ResponseWriter, r *http.Request) {
	if !h.transcriptsEnabled(w) {
		return
	}
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	convs, err := h.transcripts.ListConversations(r.Context(), storage.ListOptions{TenantID: tenantID, Limit: limit, Offset: offset})
	if err != nil {
		h.failure(w, r, "Failed to list transcripts", err)
		return
	}
	if convs == nil {
		convs = []*storage.Conversation{}
	}
	writeJSON(w, http.StatusOK, response{Success: true, Data: convs})
}

// conversation loads a transcript owned by the request's tenant.
func (h *Handler) conversation(w http.ResponseWriter, r *http.Request) (*storage.Conversation, bool) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return nil, false
	}
	conv, err := h.transcripts.GetConversation(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) || (err == nil && conv.TenantID != tenantID) {
		writeJSON(w, http.StatusNotFound, response{Message: "Conversation not found"})
		return nil, false
	}
	if err != nil {
		h.failure(w, r, "Failed to read transcript", err)
		return nil, false
	}
	return conv, true
}

func (h *Handler) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	if !h.transcriptsEnabled(w) {
		return
	}
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Data: conv})
}

func (h *Handler) handleDeleteTranscript(w http.ResponseWriter, r *http.Request) {
	if !h.transcriptsEnabled(w) {
		return
	}
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}
	if err := h.transcripts.DeleteConversation(r.Context(), conv.ID); err != nil {
		h.failure(w, r, "Failed to delete transcript", err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "Conversation deleted"})
}

func (h *Handler) failure(w http.ResponseWriter, r *http.Request, message string, err error) {
	h.logger.Error(strings.ToLower(message), slog.String("error", err.Error()))
	server.AddError(r.Context(), err)
	writeJSON(w, http.StatusInternalServerError, response{Message: message})
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, slog.String("error", err.Error()))
	server.AddError(r.Context(), err)
	writeJSON(w, http.StatusInternalServerError, response{Message: "Internal server error"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
