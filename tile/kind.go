// Package tile defines the request model shared by the tile generation
// components: asset kinds, immutable requests and the content hash that keys
// the derived-artifact cache.
package tile

import (
	"path/filepath"
	"strings"
)

// Kind classifies the asset a tile is generated for.
type Kind uint8

const (
	// KindUnknown is the zero value. Requests of this kind are rejected.
	KindUnknown Kind = iota

	// KindImage is a 2D texture. Handled entirely by the resize worker.
	KindImage

	// KindModel is a mesh rendered through the staged pipeline.
	KindModel

	// KindPrefab is a scene fragment whose primary renderable is rendered
	// through the staged pipeline.
	KindPrefab

	// KindMaterial gets a static placeholder tile.
	KindMaterial

	// KindShader gets a static placeholder tile.
	KindShader

	kindCount
)

// String returns a lowercase name for the kind.
func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindModel:
		return "model"
	case KindPrefab:
		return "prefab"
	case KindMaterial:
		return "material"
	case KindShader:
		return "shader"
	default:
		return "unknown"
	}
}

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	return k > KindUnknown && k < kindCount
}

// IsRendered reports whether tiles of this kind go through the render pipeline.
func (k Kind) IsRendered() bool {
	return k == KindModel || k == KindPrefab
}

// extKinds maps lowercase file extensions (without the dot) to kinds.
var extKinds = map[string]Kind{
	"dds":  KindImage,
	"tga":  KindImage,
	"png":  KindImage,
	"jpg":  KindImage,
	"jpeg": KindImage,
	"bmp":  KindImage,
	"tif":  KindImage,
	"tiff": KindImage,
	"webp": KindImage,
	"msh":  KindModel,
	"fab":  KindPrefab,
	"mat":  KindMaterial,
	"shd":  KindShader,
}

// KindFromPath classifies a path by its extension.
// Returns KindUnknown for unrecognized extensions.
func KindFromPath(path string) Kind {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return extKinds[ext]
}

// ParseKind parses a kind name as returned by Kind.String.
func ParseKind(s string) Kind {
	for k := KindImage; k < kindCount; k++ {
		if strings.EqualFold(s, k.String()) {
			return k
		}
	}
	return KindUnknown
}
