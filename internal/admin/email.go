package admin

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/HugeFrog24/nini-artgallery/internal/content"
)

var otpEmailTemplate = template.Must(template.New("otp").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #333;">{{.Title}}</h2>
  <p>{{.CodeMessage}}</p>
  <div style="background: #f5f5f5; padding: 20px; text-align: center; margin: 20px 0;">
    <span style="font-size: 32px; font-weight: bold; letter-spacing: 5px; color: #ec4899;">{{.Code}}</span>
  </div>
  <p>{{.ExpiryMessage}}</p>
  <p>{{.IgnoreMessage}}</p>
  <hr style="margin: 30px 0; border: none; border-top: 1px solid #eee;">
  <p style="color: #666; font-size: 12px;">{{.Automated}}</p>
</div>
`))

type otpEmailData struct {
	Title         string
	CodeMessage   string
	Code          string
	ExpiryMessage string
	IgnoreMessage string
	Automated     string
}

// ComposeOTPEmail renders the verification email in locale. Every string
// comes from the admin UI catalog; a missing key is an error.
func ComposeOTPEmail(ctx context.Context, resolver *content.Resolver, tenantID, locale, to, code string) (Email, error) {
	ui, err := resolver.UIStrings(ctx, locale)
	if err != nil {
		return Email{}, fmt.Errorf("load email strings: %w", err)
	}
	siteName, err := SiteName(ctx, resolver, ui, tenantID, locale)
	if err != nil {
		return Email{}, err
	}

	lookup := func(key string) (string, error) {
		full := "admin.Email." + key
		v, ok := ui.Lookup(full)
		if !ok {
			return "", &content.MissingTranslationError{Locale: locale, Key: full}
		}
		return v, nil
	}
	var (
		data    otpEmailData
		subject string
		text    string
	)
	fields := []struct {
		key string
		dst *string
	}{
		{"subject", &subject},
		{"title", &data.Title},
		{"codeMessage", &data.CodeMessage},
		{"expiryMessage", &data.ExpiryMessage},
		{"ignoreMessage", &data.IgnoreMessage},
		{"automatedMessage", &data.Automated},
		{"textVersion", &text},
	}
	for _, f := range fields {
		v, err := lookup(f.key)
		if err != nil {
			return Email{}, err
		}
		*f.dst = v
	}
	data.Code = code
	data.Automated = strings.ReplaceAll(data.Automated, "{siteName}", siteName)

	var html bytes.Buffer
	if err := otpEmailTemplate.Execute(&html, data); err != nil {
		return Email{}, fmt.Errorf("render otp email: %w", err)
	}
	return Email{
		FromName: siteName,
		To:       to,
		Subject:  subject,
		Text:     strings.ReplaceAll(text, "{otp}", code),
		HTML:     html.String(),
	}, nil
}

// SiteName fills the localized "Site.name" template with the artist's name.
func SiteName(ctx context.Context, resolver *content.Resolver, ui content.Messages, tenantID, locale string) (string, error) {
	tmpl, ok := ui.Lookup("Site.name")
	if !ok || tmpl == "" {
		return "", &content.MissingTranslationError{Locale: locale, Key: "Site.name"}
	}
	artist, err := resolver.Artist(ctx, tenantID, locale)
	if err != nil {
		return "", fmt.Errorf("resolve artist name: %w", err)
	}
	if artist.Name == "" {
		return "", fmt.Errorf("tenant %q has no artist name for locale %q", tenantID, locale)
	}
	return strings.ReplaceAll(tmpl, "{artistName}", artist.Name), nil
}
