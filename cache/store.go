package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"

	"github.com/gogpu/assettile/tile"
)

// ErrEmptyTile is returned when asked to persist zero bytes.
var ErrEmptyTile = errors.New("cache: empty tile")

// Store writes encoded tiles into a flat cache directory.
// It is safe for concurrent use.
type Store struct {
	dir     string
	digests *Sharded[uint32, uint64]
	logger  *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger used for write diagnostics.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDigestCapacity sets the per-shard capacity of the digest LRU.
func WithDigestCapacity(n int) StoreOption {
	return func(s *Store) {
		s.digests = NewSharded[uint32, uint64](n, Uint32Hasher)
	}
}

// NewStore creates dir if needed and returns a Store rooted there.
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	if dir == "" {
		return nil, errors.New("cache: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create directory: %w", err)
	}
	s := &Store{
		dir:     dir,
		digests: NewSharded[uint32, uint64](0, Uint32Hasher),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the file path of the tile for hash.
func (s *Store) Path(hash uint32) string {
	return filepath.Join(s.dir, tile.FileName(hash))
}

// Exists reports whether a tile file for hash is present.
func (s *Store) Exists(hash uint32) bool {
	fi, err := os.Stat(s.Path(hash))
	return err == nil && fi.Mode().IsRegular() && fi.Size() > 0
}

// Write persists data as the tile for hash. The file is replaced atomically.
// When the same bytes were already written for hash during this session and
// the file still exists, Write does nothing and reports false.
func (s *Store) Write(hash uint32, data []byte) (bool, error) {
	if len(data) == 0 {
		return false, ErrEmptyTile
	}
	sum := xxhash.Sum64(data)
	if prev, ok := s.digests.Get(hash); ok && prev == sum && s.Exists(hash) {
		s.logger.Debug("tile unchanged", "hash", hash)
		return false, nil
	}

	if err := writeAtomic(s.dir, s.Path(hash), data); err != nil {
		return false, err
	}
	s.digests.Set(hash, sum)
	s.logger.Debug("tile written", "hash", hash, "bytes", len(data))
	return true, nil
}

// Forget drops the remembered digest for hash so the next Write always
// reaches disk.
func (s *Store) Forget(hash uint32) {
	s.digests.Delete(hash)
}

// Stats returns digest cache counters.
func (s *Store) Stats() Stats {
	return s.digests.Stats()
}

func writeAtomic(dir, path string, data []byte) error {
	f, err := os.CreateTemp(dir, ".tile-*")
	if err != nil {
		return fmt.Errorf("cache: create temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("cache: write %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("cache: close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("cache: rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
