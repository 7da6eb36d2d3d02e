// Package cache stores extracted page content on disk, keyed by URL.
//
// Entries live at <dir>/<sanitized site>/<sha256(url)>.json.gz. Writers for
// the same URL are serialised by a lock marker next to the entry; readers
// never lock and rely on rename being atomic.
package cache

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

const entrySuffix = ".json.gz"

// Entry is the cached extraction result for one URL
type Entry struct {
	URL               string    `json:"url"`
	Text              string    `json:"text"`
	StructuralContent string    `json:"structural_content"`
	FetchedAt         time.Time `json:"fetched_at"`
}

// Options tunes the write lock
type Options struct {
	LockTimeout   time.Duration // Store gives up with ErrLockTimeout after this long
	RetryInterval time.Duration // Delay between lock attempts
	LeaseTTL      time.Duration // Markers older than this are broken; 0 never breaks
	Logger        *slog.Logger
}

func (o *Options) defaults() {
	if o.LockTimeout <= 0 {
		o.LockTimeout = 30 * time.Second
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 100 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Cache is a directory-backed content cache. It is safe for concurrent use
// by goroutines and by separate processes sharing the directory.
type Cache struct {
	dir  string
	opts Options
}

// New creates a cache rooted at dir. The directory is created lazily.
func New(dir string, opts Options) *Cache {
	opts.defaults()
	return &Cache{dir: dir, opts: opts}
}

// Dir returns the cache root
func (c *Cache) Dir() string { return c.dir }

// SanitizeSite derives the per-site directory name from a URL: its
// scheme://host with every non-alphanumeric character replaced by '_'.
func SanitizeSite(rawURL string) string {
	site := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		site = u.Scheme + "://" + u.Host
	}
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return '_'
	}, site)
}

// Key returns the hex-encoded SHA-256 of the full URL
func Key(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// SiteDir returns the directory holding entries for the URL's site
func (c *Cache) SiteDir(rawURL string) string {
	return filepath.Join(c.dir, SanitizeSite(rawURL))
}

// Path returns the entry file for a URL
func (c *Cache) Path(rawURL string) string {
	return filepath.Join(c.SiteDir(rawURL), Key(rawURL)+entrySuffix)
}

func (c *Cache) lockPath(rawURL string) string {
	return filepath.Join(c.SiteDir(rawURL), Key(rawURL)+".lock")
}

// Exists reports whether a published entry exists for the URL
func (c *Cache) Exists(rawURL string) bool {
	info, err := os.Stat(c.Path(rawURL))
	return err == nil && info.Mode().IsRegular()
}

// Load reads and decodes the entry for a URL.
// It returns ErrNotFound when absent and *CorruptEntryError when undecodable.
func (c *Cache) Load(rawURL string) (*Entry, error) {
	path := c.Path(rawURL)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", rawURL, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open cache entry: %w", err)
	}
	defer func() { _ = f.Close() }()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, &CorruptEntryError{URL: rawURL, Path: path, Err: err}
	}
	defer func() { _ = zr.Close() }()

	var entry Entry
	if err := json.NewDecoder(zr).Decode(&entry); err != nil {
		return nil, &CorruptEntryError{URL: rawURL, Path: path, Err: err}
	}
	return &entry, nil
}

// Store writes the entry for a URL. Concurrent stores of the same URL are
// mutually exclusive; readers observe either the previous or the new entry.
func (c *Cache) Store(ctx context.Context, rawURL string, entry *Entry) error {
	siteDir := c.SiteDir(rawURL)
	if err := os.MkdirAll(siteDir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	lock, err := c.acquire(ctx, c.lockPath(rawURL))
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.release(); err != nil {
			c.opts.Logger.Warn("Failed to release cache lock", "url", rawURL, "error", err)
		}
	}()

	stored := *entry
	stored.URL = rawURL
	if stored.FetchedAt.IsZero() {
		stored.FetchedAt = time.Now().UTC()
	}

	return c.publish(siteDir, c.Path(rawURL), &stored)
}

// publish stages the compressed payload in a temp file in the same
// directory, syncs it and renames it over the entry.
func (c *Cache) publish(dir, path string, entry *Entry) (err error) {
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create staging file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	zw := gzip.NewWriter(tmp)
	if err = json.NewEncoder(zw).Encode(entry); err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if err = zw.Close(); err != nil {
		return fmt.Errorf("failed to compress cache entry: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync cache entry: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close staging file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to publish cache entry: %w", err)
	}
	return nil
}

// Purge removes the entry for a URL. Removing a missing entry is not an error.
func (c *Cache) Purge(rawURL string) error {
	if err := os.Remove(c.Path(rawURL)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to purge cache entry: %w", err)
	}
	return nil
}
