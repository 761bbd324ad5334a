// Package resample decodes source images and scales them to tile resolution.
package resample

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder

	"github.com/gogpu/assettile/dds"
	_ "github.com/gogpu/assettile/internal/tga" // register decoder
)

// Decode errors.
var (
	// ErrEmptyData is returned when the source is empty.
	ErrEmptyData = errors.New("resample: empty data")

	// ErrUnsupportedFormat is returned for content no registered decoder accepts.
	ErrUnsupportedFormat = errors.New("resample: unsupported format")
)

// ddsType is registered with filetype so DDS containers sniff like any other image.
var ddsType = filetype.AddType("dds", "image/vnd-ms.dds")

func init() {
	filetype.AddMatcher(ddsType, dds.IsDDS)
}

// Sniff returns the detected content type of data, or filetype.Unknown.
func Sniff(data []byte) types.Type {
	kind, err := filetype.Match(data)
	if err != nil {
		return filetype.Unknown
	}
	return kind
}

// LoadFile reads and decodes the image at path.
func LoadFile(path string) (*image.NRGBA, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("resample: read file: %w", err)
	}
	return Decode(data, filepath.Ext(path))
}

// Decode decodes data into non-premultiplied RGBA. ext is the source file
// extension and is used to route DDS input whose magic may be absent.
func Decode(data []byte, ext string) (*image.NRGBA, error) {
	if len(data) == 0 {
		return nil, ErrEmptyData
	}

	if strings.EqualFold(ext, ".dds") || Sniff(data) == ddsType {
		img, err := dds.DecodeBytes(data)
		if err != nil {
			return nil, fmt.Errorf("resample: decode DDS: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
		}
		return nil, fmt.Errorf("resample: decode: %w", err)
	}
	return ToNRGBA(img), nil
}

// ToNRGBA converts img to *image.NRGBA anchored at the origin.
// An *image.NRGBA already anchored at the origin is returned as is.
func ToNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) {
		return n
	}

	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	// Fast path for matching NRGBA layouts at an offset.
	if n, ok := img.(*image.NRGBA); ok {
		for y := range b.Dy() {
			src := n.Pix[n.PixOffset(b.Min.X, b.Min.Y+y):]
			copy(dst.Pix[y*dst.Stride:], src[:b.Dx()*4])
		}
		return dst
	}

	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
