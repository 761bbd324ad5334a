package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Source identifies the state of a tile's source file.
type Source struct {
	Size    int64
	ModTime time.Time
}

// StatSource returns the Source for the file at path.
func StatSource(path string) (Source, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Source{}, err
	}
	return Source{Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

func (s Source) encode() []byte {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[0:], uint64(s.Size))
	binary.LittleEndian.PutUint64(b[8:], uint64(s.ModTime.UnixNano()))
	return b[:]
}

func decodeSource(b []byte) (Source, error) {
	if len(b) != 16 {
		return Source{}, fmt.Errorf("cache: manifest record has %d bytes, want 16", len(b))
	}
	return Source{
		Size:    int64(binary.LittleEndian.Uint64(b[0:])),
		ModTime: time.Unix(0, int64(binary.LittleEndian.Uint64(b[8:]))),
	}, nil
}

// Manifest records which source state produced each cached tile.
type Manifest struct {
	db *badger.DB
}

// OpenManifest opens or creates the manifest database in dir.
// An empty dir opens an in-memory manifest.
func OpenManifest(dir string, logger *slog.Logger) (*Manifest, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{logger: orDiscard(logger)})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("cache: open manifest: %w", err)
	}
	return &Manifest{db: db}, nil
}

func manifestKey(hash uint32) []byte {
	return strconv.AppendUint([]byte("src/"), uint64(hash), 10)
}

// Record stores src as the source state of the tile for hash.
func (m *Manifest) Record(hash uint32, src Source) error {
	err := m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(manifestKey(hash), src.encode())
	})
	if err != nil {
		return fmt.Errorf("cache: record %d: %w", hash, err)
	}
	return nil
}

// Lookup returns the recorded source state for hash.
func (m *Manifest) Lookup(hash uint32) (Source, bool, error) {
	var src Source
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(manifestKey(hash))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		src, err = decodeSource(val)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Source{}, false, nil
	}
	if err != nil {
		return Source{}, false, fmt.Errorf("cache: lookup %d: %w", hash, err)
	}
	return src, true, nil
}

// Fresh reports whether the tile for hash was produced from src.
func (m *Manifest) Fresh(hash uint32, src Source) bool {
	rec, ok, err := m.Lookup(hash)
	if err != nil || !ok {
		return false
	}
	return rec.Size == src.Size && rec.ModTime.Equal(src.ModTime)
}

// Forget removes the record for hash.
func (m *Manifest) Forget(hash uint32) error {
	err := m.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(manifestKey(hash))
	})
	if err != nil {
		return fmt.Errorf("cache: forget %d: %w", hash, err)
	}
	return nil
}

// Close flushes and closes the database.
func (m *Manifest) Close() error {
	return m.db.Close()
}

func orDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}

func trimLine(format string, args []any) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}

// badgerLogger routes badger's printf-style logging into slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (b badgerLogger) Errorf(format string, args ...any) {
	b.logger.Error(trimLine(format, args), "component", "manifest")
}

func (b badgerLogger) Warningf(format string, args ...any) {
	b.logger.Warn(trimLine(format, args), "component", "manifest")
}

func (b badgerLogger) Infof(format string, args ...any) {
	b.logger.Debug(trimLine(format, args), "component", "manifest")
}

func (b badgerLogger) Debugf(format string, args ...any) {
	b.logger.Debug(trimLine(format, args), "component", "manifest")
}
