package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"
)

// lease is the content of a lock marker
type lease struct {
	Owner     string    `json:"owner"`
	PID       int       `json:"pid"`
	ExpiresAt time.Time `json:"expires_at"`
}

type fileLock struct {
	path  string
	owner string
}

// acquire creates the marker at path exclusively, retrying every
// RetryInterval until LockTimeout. Expired markers are broken.
func (c *Cache) acquire(ctx context.Context, path string) (*fileLock, error) {
	owner := uuid.NewString()
	deadline := time.Now().Add(c.opts.LockTimeout)

	for {
		ok, err := c.tryCreate(path, owner)
		if err != nil {
			return nil, err
		}
		if ok {
			return &fileLock{path: path, owner: owner}, nil
		}

		if c.breakIfStale(path) {
			continue
		}

		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%s: %w", path, ErrLockTimeout)
		}

		timer := time.NewTimer(c.opts.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// tryCreate returns false without error when the marker already exists
func (c *Cache) tryCreate(path, owner string) (bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create lock marker: %w", err)
	}

	l := lease{Owner: owner, PID: os.Getpid()}
	if c.opts.LeaseTTL > 0 {
		l.ExpiresAt = time.Now().Add(c.opts.LeaseTTL).UTC()
	}
	werr := json.NewEncoder(f).Encode(l)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(path)
		return false, fmt.Errorf("failed to write lock marker: %w", errors.Join(werr, cerr))
	}
	return true, nil
}

// breakIfStale removes a marker whose lease has expired. A marker that
// cannot be decoded (its holder may still be writing it) is judged by its
// modification time instead. The marker is first renamed aside and judged
// again there, so a fresh marker created in between is put back rather than
// deleted.
func (c *Cache) breakIfStale(path string) bool {
	if c.opts.LeaseTTL <= 0 {
		return false
	}

	observed, stale := c.readStale(path)
	if !stale {
		return false
	}

	aside := path + "." + uuid.NewString() + ".stale"
	if err := os.Rename(path, aside); err != nil {
		return false
	}
	defer func() { _ = os.Remove(aside) }()

	moved, stillStale := c.readStale(aside)
	if moved.Owner != observed.Owner || !stillStale {
		c.restoreMarker(aside, path, moved)
		return false
	}

	c.opts.Logger.Warn("Broke stale cache lock", "path", path, "owner", observed.Owner, "pid", observed.PID)
	return true
}

// restoreMarker puts a live marker that was renamed aside back at path.
// When another writer has created a marker there meanwhile, the live holder
// has lost its lock and the loss is logged.
func (c *Cache) restoreMarker(aside, path string, l lease) bool {
	if err := os.Link(aside, path); err != nil {
		c.opts.Logger.Error("Lost live cache lock while breaking a stale one",
			"path", path,
			"owner", l.Owner,
			"pid", l.PID,
			"error", err)
		return false
	}
	return true
}

func (c *Cache) readStale(path string) (lease, bool) {
	l, err := readLease(path)
	if err == nil {
		return l, !l.ExpiresAt.IsZero() && time.Now().After(l.ExpiresAt)
	}
	info, statErr := os.Stat(path)
	if statErr != nil {
		return lease{}, false
	}
	return lease{}, time.Since(info.ModTime()) > c.opts.LeaseTTL
}

func readLease(path string) (lease, error) {
	var l lease
	data, err := os.ReadFile(path)
	if err != nil {
		return l, err
	}
	err = json.Unmarshal(data, &l)
	return l, err
}

// release removes the marker if it still carries our owner id
func (l *fileLock) release() error {
	current, err := readLease(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read lock marker: %w", err)
	}
	if current.Owner != l.owner {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove lock marker: %w", err)
	}
	return nil
}
