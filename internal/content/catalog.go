package content

import (
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// MissingKeyPolicy decides what a catalog merge does with an absent key.
type MissingKeyPolicy int

const (
	// FailOnMissing aborts the merge with a MissingTranslationError.
	FailOnMissing MissingKeyPolicy = iota
	// UseKeyOnMissing substitutes the key itself. Only for model prompts,
	// where a partially translated catalog is better than none.
	UseKeyOnMissing
)

func mergeCatalog(base []baseSection, table Messages, locale, source string, policy MissingKeyPolicy) ([]CategorySection, error) {
	var missing error
	t := func(key string) string {
		if v, ok := table.Lookup(key); ok {
			return v
		}
		if policy == UseKeyOnMissing {
			return key
		}
		if missing == nil {
			missing = &MissingTranslationError{Locale: locale, Key: key, Source: source}
		}
		return ""
	}

	sections := make([]CategorySection, 0, len(base))
	for _, s := range base {
		section := CategorySection{
			ID:          s.ID,
			Title:       t("Categories." + s.ID + ".title"),
			Description: t("Categories." + s.ID + ".description"),
			Artworks:    make([]Artwork, 0, len(s.Artworks)),
		}
		for _, a := range s.Artworks {
			section.Artworks = append(section.Artworks, Artwork{
				ID:          a.ID,
				ImageURL:    a.ImageURL,
				Category:    a.Category,
				Dimensions:  a.Dimensions,
				Year:        a.Year,
				Title:       t("Artworks." + a.ID + ".title"),
				Description: t("Artworks." + a.ID + ".description"),
				Medium:      t("Mediums." + a.MediumKey),
			})
		}
		if missing != nil {
			return nil, missing
		}
		sections = append(sections, section)
	}
	return sections, nil
}

// Sort orders.
const (
	SortByTitle = "title"
	SortByYear  = "year"

	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Query filters and orders a catalog. Empty fields do not filter.
type Query struct {
	Category string
	Year     string
	Medium   string
	Search   string
	SortBy   string
	Order    string
	// Locale selects the collation used for title ordering.
	Locale string
}

// Apply returns the sections matching q. Sections left without artworks are
// dropped. The input is not modified.
func Apply(sections []CategorySection, q Query) []CategorySection {
	year, yearErr := 0, error(nil)
	if q.Year != "" {
		year, yearErr = strconv.Atoi(strings.TrimSpace(q.Year))
	}
	medium := strings.ToLower(q.Medium)
	search := strings.ToLower(strings.TrimSpace(q.Search))

	out := make([]CategorySection, 0, len(sections))
	for _, section := range sections {
		if q.Category != "" && section.ID != q.Category {
			continue
		}
		artworks := make([]Artwork, 0, len(section.Artworks))
		for _, a := range section.Artworks {
			if q.Year != "" && (yearErr != nil || a.Year != year) {
				continue
			}
			if medium != "" && !strings.Contains(strings.ToLower(a.Medium), medium) {
				continue
			}
			if search != "" &&
				!strings.Contains(strings.ToLower(a.Title), search) &&
				!strings.Contains(strings.ToLower(a.Description), search) {
				continue
			}
			artworks = append(artworks, a)
		}
		if len(artworks) == 0 {
			continue
		}
		section.Artworks = artworks
		out = append(out, section)
	}

	if q.SortBy == SortByTitle || q.SortBy == SortByYear {
		sortSections(out, q)
	}
	return out
}

func sortSections(sections []CategorySection, q Query) {
	tag := language.English
	if q.Locale != "" {
		if parsed, err := language.Parse(q.Locale); err == nil {
			tag = parsed
		}
	}
	col := collate.New(tag)
	sign := 1
	if q.Order == OrderDesc {
		sign = -1
	}

	for i := range sections {
		slices.SortStableFunc(sections[i].Artworks, func(a, b Artwork) int {
			var c int
			switch q.SortBy {
			case SortByTitle:
				c = col.CompareString(a.Title, b.Title)
			case SortByYear:
				c = a.Year - b.Year
			}
			return sign * c
		})
	}
}
