// Package content loads tenant content from the document store and assembles
// locale-resolved bundles for rendering and the HTTP API.
package content

// ArtistRecord is the tenant's primary-language artist profile (artist.json).
type ArtistRecord struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	DefaultLanguage string `json:"defaultLanguage,omitempty"`
}

// ArtistTranslation is one locale's artist profile.
type ArtistTranslation struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ArtistTranslations maps locale code to translation
// (artist-translations.json).
type ArtistTranslations map[string]ArtistTranslation

// ArtistProfile is the artist profile resolved for one locale.
type ArtistProfile struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// PersonalMessage is the tenant's broadcast banner (personal-message.json).
type PersonalMessage struct {
	Enabled     bool   `json:"enabled"`
	Recipient   string `json:"recipient"`
	Message     string `json:"message"`
	Dismissible bool   `json:"dismissible"`
	AriaLabel   string `json:"ariaLabel"`
}

// Artwork is a catalog entry with its translatable fields resolved.
type Artwork struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
	Category    string `json:"category"`
	Dimensions  string `json:"dimensions,omitempty"`
	Medium      string `json:"medium,omitempty"`
	Year        int    `json:"year,omitempty"`
}

// CategorySection groups artworks of one category.
type CategorySection struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Artworks    []Artwork `json:"artworks"`
}

// Bundle is the merged, locale-resolved content needed to render a page.
type Bundle struct {
	TenantID  string            `json:"tenantId"`
	Locale    string            `json:"locale"`
	UIStrings Messages          `json:"uiStrings"`
	Artist    ArtistProfile     `json:"artist"`
	Catalog   []CategorySection `json:"catalog"`
}

// UI returns a required interface string.
func (b *Bundle) UI(key string) (string, error) {
	if v, ok := b.UIStrings.Lookup(key); ok {
		return v, nil
	}
	return "", &MissingTranslationError{Locale: b.Locale, Key: key}
}

// FindArtwork returns the artwork with id.
func (b *Bundle) FindArtwork(id string) (Artwork, bool) {
	for _, section := range b.Catalog {
		for _, a := range section.Artworks {
			if a.ID == id {
				return a, true
			}
		}
	}
	return Artwork{}, false
}

type baseArtwork struct {
	ID         string `json:"id"`
	ImageURL   string `json:"imageUrl"`
	Category   string `json:"category"`
	MediumKey  string `json:"mediumKey"`
	Dimensions string `json:"dimensions"`
	Year       int    `json:"year"`
}

type baseSection struct {
	ID       string        `json:"id"`
	Artworks []baseArtwork `json:"artworks"`
}

type baseCatalog struct {
	CategorySections []baseSection `json:"categorySections"`
}

type tagsDocument struct {
	SiteKeywords []string `json:"siteKeywords"`
}
