package tile

import (
	"fmt"
	"hash/crc32"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Request is a single tile generation request.
// Requests are created on admission and never modified afterwards.
type Request struct {
	// Path is the source asset path as submitted.
	Path string

	// Kind is the asset kind.
	Kind Kind

	// Hash is the content hash of the normalized path. It keys the cache file.
	Hash uint32
}

// NewRequest creates a request for path, computing its content hash.
func NewRequest(path string, kind Kind) Request {
	return Request{Path: path, Kind: kind, Hash: Hash(path)}
}

// String implements fmt.Stringer.
func (r Request) String() string {
	return fmt.Sprintf("%s %s (%08x)", r.Kind, r.Path, r.Hash)
}

// NormalizePath returns the canonical form of an asset path used for hashing:
// forward slashes, cleaned, Unicode NFC. Two spellings of the same asset
// produce the same cache key on every platform.
func NormalizePath(p string) string {
	p = filepath.ToSlash(p)
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "./")
	return norm.NFC.String(p)
}

// Hash returns the 32-bit content hash (CRC-32, IEEE) of the normalized path.
func Hash(p string) uint32 {
	return crc32.ChecksumIEEE([]byte(NormalizePath(p)))
}

// FileName returns the cache file name for a hash: "<hash>.dds".
func FileName(hash uint32) string {
	return fmt.Sprintf("%d.dds", hash)
}
