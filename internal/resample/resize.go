package resample

import (
	"fmt"
	"image"
	"strings"

	"github.com/anthonynsimon/bild/transform"
	xdraw "golang.org/x/image/draw"
)

// Filter selects the resampling kernel used to scale an image to tile size.
type Filter uint8

const (
	// FilterLanczos uses a Lanczos-3 kernel. Sharpest result, slowest.
	FilterLanczos Filter = iota

	// FilterCatmullRom uses a Catmull-Rom cubic kernel.
	FilterCatmullRom

	// FilterBox halves the image with a 2x2 box filter until it is within
	// a factor of two of the target, then finishes with a bilinear pass.
	FilterBox
)

// String returns the configuration name of the filter.
func (f Filter) String() string {
	switch f {
	case FilterLanczos:
		return "lanczos"
	case FilterCatmullRom:
		return "catmullrom"
	case FilterBox:
		return "box"
	default:
		return fmt.Sprintf("Filter(%d)", uint8(f))
	}
}

// ParseFilter parses a filter name as written in configuration files.
func ParseFilter(s string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lanczos":
		return FilterLanczos, nil
	case "catmullrom", "catmull-rom", "bicubic":
		return FilterCatmullRom, nil
	case "box":
		return FilterBox, nil
	default:
		return 0, fmt.Errorf("resample: unknown filter %q", s)
	}
}

// Resize scales img to a size x size square. The aspect ratio is not
// preserved; tiles always cover the full square.
func Resize(img image.Image, size int, f Filter) *image.NRGBA {
	if size <= 0 {
		return image.NewNRGBA(image.Rectangle{})
	}
	b := img.Bounds()
	if b.Dx() == size && b.Dy() == size {
		return ToNRGBA(img)
	}

	switch f {
	case FilterCatmullRom:
		return scale(img, size, xdraw.CatmullRom)
	case FilterBox:
		src := ToNRGBA(img)
		for src.Rect.Dx() >= 2*size && src.Rect.Dy() >= 2*size {
			src = halve(src)
		}
		return scale(src, size, xdraw.ApproxBiLinear)
	default:
		return ToNRGBA(transform.Resize(img, size, size, transform.Lanczos))
	}
}

func scale(img image.Image, size int, s xdraw.Scaler) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	s.Scale(dst, dst.Rect, img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// halve returns a half-size copy of src using a 2x2 box filter.
// Odd edges are clamped.
func halve(src *image.NRGBA) *image.NRGBA {
	srcW, srcH := src.Rect.Dx(), src.Rect.Dy()
	dstW := max(1, srcW/2)
	dstH := max(1, srcH/2)
	dst := image.NewNRGBA(image.Rect(0, 0, dstW, dstH))

	for dy := range dstH {
		sy0 := dy * 2
		sy1 := min(sy0+1, srcH-1)
		for dx := range dstW {
			sx0 := dx * 2
			sx1 := min(sx0+1, srcW-1)

			p0 := src.Pix[sy0*src.Stride+sx0*4:]
			p1 := src.Pix[sy0*src.Stride+sx1*4:]
			p2 := src.Pix[sy1*src.Stride+sx0*4:]
			p3 := src.Pix[sy1*src.Stride+sx1*4:]
			o := dst.Pix[dy*dst.Stride+dx*4:]
			for c := range 4 {
				sum := uint16(p0[c]) + uint16(p1[c]) + uint16(p2[c]) + uint16(p3[c])
				o[c] = byte(sum / 4)
			}
		}
	}
	return dst
}

// Tile scales img to the tile square and returns its tightly packed RGBA8 pixels.
func Tile(img image.Image, size int, f Filter) []byte {
	return Resize(img, size, f).Pix
}
