package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Loader reads the raw host → tenant id mapping.
type Loader interface {
	LoadDirectory(ctx context.Context) (map[string]string, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context) (map[string]string, error)

func (f LoaderFunc) LoadDirectory(ctx context.Context) (map[string]string, error) {
	return f(ctx)
}

// FileLoader reads a flat JSON object of host → tenant id from disk.
type FileLoader struct {
	Path string
}

func (l FileLoader) LoadDirectory(ctx context.Context) (map[string]string, error) {
	raw, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("read tenant directory %s: %w", l.Path, err)
	}
	var entries map[string]string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrDirectoryInvalid, l.Path, err)
	}
	if entries == nil {
		return nil, fmt.Errorf("%w: %s is not a JSON object", ErrDirectoryInvalid, l.Path)
	}
	return entries, nil
}

// Directory caches the normalized host → tenant id mapping for the process.
//
// The first Load runs the loader behind a single-flight barrier; later calls
// read the cached map. The map is never mutated after publication. Invalidate
// drops the cached reference so the next Load rebuilds it.
type Directory struct {
	loader     Loader
	group      singleflight.Group
	current    atomic.Pointer[map[string]string]
	generation atomic.Uint64
}

// NewDirectory creates a directory backed by loader.
func NewDirectory(loader Loader) *Directory {
	return &Directory{loader: loader}
}

// Load returns a copy of the directory, loading it on first use.
// Loader failures propagate; the directory never degrades to an empty map.
func (d *Directory) Load(ctx context.Context) (map[string]string, error) {
	m, err := d.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return maps.Clone(m), nil
}

// Lookup normalizes rawHost and returns the mapped tenant id.
func (d *Directory) Lookup(ctx context.Context, rawHost string) (string, bool, error) {
	m, err := d.snapshot(ctx)
	if err != nil {
		return "", false, err
	}
	id, ok := m[NormalizeHost(rawHost)]
	return id, ok, nil
}

// Invalidate discards the cached mapping. Readers holding the previous map
// keep a consistent view; the next Load reads the artifact again.
func (d *Directory) Invalidate() {
	d.generation.Add(1)
	d.current.Store(nil)
}

func (d *Directory) snapshot(ctx context.Context) (map[string]string, error) {
	if m := d.current.Load(); m != nil {
		return *m, nil
	}

	v, err, _ := d.group.Do("load", func() (any, error) {
		if m := d.current.Load(); m != nil {
			return *m, nil
		}
		gen := d.generation.Load()

		raw, err := d.loader.LoadDirectory(context.WithoutCancel(ctx))
		if err != nil {
			return nil, fmt.Errorf("load tenant directory: %w", err)
		}
		m, err := normalizeEntries(raw)
		if err != nil {
			return nil, err
		}

		// An Invalidate that raced with this load wins; the caller still gets
		// the freshly read map but it is not published.
		if d.generation.Load() == gen {
			d.current.Store(&m)
		}
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]string), nil
}

func normalizeEntries(raw map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for host, id := range raw {
		if id == "" {
			return nil, fmt.Errorf("%w: host %q has an empty tenant id", ErrDirectoryInvalid, host)
		}
		key := NormalizeHost(host)
		if key == "" {
			return nil, fmt.Errorf("%w: empty host key", ErrDirectoryInvalid)
		}
		if prev, dup := out[key]; dup && prev != id {
			return nil, fmt.Errorf("%w: host %q maps to both %q and %q", ErrDirectoryInvalid, key, prev, id)
		}
		out[key] = id
	}
	return out, nil
}
