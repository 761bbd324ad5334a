package dds

import (
	"bytes"
	"fmt"
	"math"
)

// Format selects the block compression used by the encoder.
type Format uint8

const (
	// FormatDXT5 is BC3: interpolated alpha plus BC1 colour. The default.
	FormatDXT5 Format = iota

	// FormatDXT1 is BC1 without alpha.
	FormatDXT1
)

// Options configures Encode.
type Options struct {
	// Format is the block compression format.
	Format Format

	// Mipmaps appends a box-filtered mip chain down to 1x1.
	Mipmaps bool
}

// DefaultOptions returns the options used for asset tiles: DXT5 with mips.
func DefaultOptions() Options {
	return Options{Format: FormatDXT5, Mipmaps: true}
}

// Encode compresses an RGBA8 buffer (non-premultiplied, tightly packed) into a
// DDS file using DefaultOptions.
func Encode(pixels []byte, width, height int) ([]byte, error) {
	return EncodeWith(pixels, width, height, DefaultOptions())
}

// EncodeWith compresses an RGBA8 buffer into a DDS file.
func EncodeWith(pixels []byte, width, height int, opts Options) ([]byte, error) {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if len(pixels) < width*height*4 {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrDataTooSmall, len(pixels), width*height*4)
	}

	fourCC := uint32(fourCCDXT5)
	blockBytes := 16
	if opts.Format == FormatDXT1 {
		fourCC = fourCCDXT1
		blockBytes = 8
	}

	levels := 1
	if opts.Mipmaps {
		levels = mipCount(width, height)
	}

	size := 4 + headerSize
	for w, h, i := width, height, 0; i < levels; i++ {
		size += blocksAcross(w) * blocksAcross(h) * blockBytes
		w, h = max(1, w/2), max(1, h/2)
	}

	var buf bytes.Buffer
	buf.Grow(size)
	if err := writeHeader(&buf, width, height, levels, fourCC); err != nil {
		return nil, fmt.Errorf("dds: write header: %w", err)
	}

	level := pixels[:width*height*4]
	w, h := width, height
	block := make([]byte, blockBytes)
	for i := range levels {
		if i > 0 {
			level, w, h = downsample(level, w, h)
		}
		compressLevel(&buf, block, level, w, h, opts.Format)
	}
	return buf.Bytes(), nil
}

// compressLevel appends the blocks of one mip level to buf.
func compressLevel(buf *bytes.Buffer, block, pix []byte, w, h int, format Format) {
	var px [16]rgba
	for by := 0; by < blocksAcross(h); by++ {
		for bx := 0; bx < blocksAcross(w); bx++ {
			fetchBlock(&px, pix, w, h, bx*4, by*4)
			if format == FormatDXT1 {
				encodeColorBlock(block, &px)
			} else {
				encodeAlphaBlock(block[:8], &px)
				encodeColorBlock(block[8:], &px)
			}
			buf.Write(block)
		}
	}
}

// fetchBlock copies a 4x4 block starting at (x0, y0), clamping reads at the
// image edge so partial blocks repeat their border pixels.
func fetchBlock(px *[16]rgba, pix []byte, w, h, x0, y0 int) {
	for y := range 4 {
		sy := min(y0+y, h-1)
		for x := range 4 {
			sx := min(x0+x, w-1)
			off := (sy*w + sx) * 4
			px[y*4+x] = rgba{pix[off], pix[off+1], pix[off+2], pix[off+3]}
		}
	}
}

// mipCount returns the number of levels down to 1x1.
func mipCount(w, h int) int {
	return 1 + int(math.Floor(math.Log2(float64(max(w, h)))))
}

// downsample halves an RGBA8 buffer with a 2x2 box filter.
// Odd edges reuse the last row or column.
func downsample(src []byte, srcW, srcH int) ([]byte, int, int) {
	dstW := max(1, srcW/2)
	dstH := max(1, srcH/2)
	dst := make([]byte, dstW*dstH*4)

	for dy := range dstH {
		sy0 := dy * 2
		sy1 := min(sy0+1, srcH-1)
		for dx := range dstW {
			sx0 := dx * 2
			sx1 := min(sx0+1, srcW-1)
			o0 := (sy0*srcW + sx0) * 4
			o1 := (sy0*srcW + sx1) * 4
			o2 := (sy1*srcW + sx0) * 4
			o3 := (sy1*srcW + sx1) * 4
			d := (dy*dstW + dx) * 4
			for c := range 4 {
				sum := uint16(src[o0+c]) + uint16(src[o1+c]) + uint16(src[o2+c]) + uint16(src[o3+c])
				dst[d+c] = byte((sum + 2) / 4)
			}
		}
	}
	return dst, dstW, dstH
}
