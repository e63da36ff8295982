package content

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a document does not exist in the store.
var ErrNotFound = errors.New("content: document not found")

// Document categories.
const (
	// CategoryTenantData holds per-tenant data files (artist.json, ...).
	CategoryTenantData = "tenants"
	// CategoryArtworks holds per-tenant, per-locale catalog translations.
	CategoryArtworks = "artworks"
	// CategoryUI holds shared, per-locale interface strings.
	CategoryUI = "ui"
	// CategoryAdminUI holds shared, per-locale admin interface strings.
	CategoryAdminUI = "ui/admin"
)

// Tenant data file names.
const (
	FileArtist             = "artist.json"
	FileArtistTranslations = "artist-translations.json"
	FileArtworksBase       = "artworks-base.json"
	FilePersonalMessage    = "personal-message.json"
	FileTags               = "tags.json"
)

// Key addresses one JSON document.
type Key struct {
	Category string
	// TenantID is empty for documents shared by all tenants.
	TenantID string
	Name     string
}

// TenantData addresses data/tenants/<tenantID>/<name>.
func TenantData(tenantID, name string) Key {
	return Key{Category: CategoryTenantData, TenantID: tenantID, Name: name}
}

// TenantMessages addresses messages/<category>/<tenantID>/<locale>.json.
func TenantMessages(category, tenantID, locale string) Key {
	return Key{Category: category, TenantID: tenantID, Name: locale + ".json"}
}

// SharedMessages addresses messages/<category>/<locale>.json.
func SharedMessages(category, locale string) Key {
	return Key{Category: category, Name: locale + ".json"}
}

// Path returns the slash-separated location of the document relative to the
// content root.
func (k Key) Path() string {
	if k.Category == CategoryTenantData {
		return path.Join("data", "tenants", k.TenantID, k.Name)
	}
	if k.TenantID == "" {
		return path.Join("messages", k.Category, k.Name)
	}
	return path.Join("messages", k.Category, k.TenantID, k.Name)
}

func (k Key) String() string {
	return k.Path()
}

// Validate rejects keys whose segments could escape the tenant scope.
func (k Key) Validate() error {
	for _, seg := range []string{k.TenantID, k.Name} {
		if strings.Contains(seg, "/") || strings.Contains(seg, `\`) || seg == "." || seg == ".." {
			return fmt.Errorf("content: invalid key segment %q", seg)
		}
	}
	if k.Name == "" {
		return errors.New("content: key has no name")
	}
	if k.Category == CategoryTenantData && k.TenantID == "" {
		return errors.New("content: tenant data key has no tenant")
	}
	return nil
}

// Store is the key-value collaborator holding tenant content.
type Store interface {
	Get(ctx context.Context, key Key) ([]byte, error)
	Put(ctx context.Context, key Key, data []byte) error
}

// FileStore reads and writes documents under a root directory.
type FileStore struct {
	root string
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

func (s *FileStore) Get(ctx context.Context, key Key) ([]byte, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.filename(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Put writes through a temporary file and rename so readers never observe a
// partially written document.
func (s *FileStore) Put(ctx context.Context, key Key, data []byte) error {
	if err := key.Validate(); err != nil {
		return err
	}
	name := s.filename(key)
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(name), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), name); err != nil {
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) filename(key Key) string {
	return filepath.Join(s.root, filepath.FromSlash(key.Path()))
}
