package dds

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Errors returned by the codec.
var (
	// ErrInvalidDimensions is returned when width or height is out of range.
	ErrInvalidDimensions = errors.New("dds: invalid dimensions")

	// ErrDataTooSmall is returned when the pixel buffer is shorter than width*height*4.
	ErrDataTooSmall = errors.New("dds: pixel buffer too small")

	// ErrNotDDS is returned when the magic number is missing.
	ErrNotDDS = errors.New("dds: not a DDS file")

	// ErrUnsupportedFormat is returned for pixel formats the decoder cannot read.
	ErrUnsupportedFormat = errors.New("dds: unsupported pixel format")

	// ErrTruncated is returned when the file ends before the top mip level.
	ErrTruncated = errors.New("dds: truncated data")
)

// MaxDimension bounds the width and height accepted by Encode.
const MaxDimension = 16384

const (
	magic = "DDS "

	headerSize      = 124
	pixelFormatSize = 32

	flagCaps        = 0x1
	flagHeight      = 0x2
	flagWidth       = 0x4
	flagPitch       = 0x8
	flagPixelFormat = 0x1000
	flagMipmapCount = 0x20000
	flagLinearSize  = 0x80000

	pfAlphaPixels = 0x1
	pfFourCC      = 0x4
	pfRGB         = 0x40

	capsComplex = 0x8
	capsTexture = 0x1000
	capsMipmap  = 0x400000
)

// FourCC codes for the block compressed formats.
const (
	fourCCDXT1 = 0x31545844 // "DXT1"
	fourCCDXT3 = 0x33545844 // "DXT3"
	fourCCDXT5 = 0x35545844 // "DXT5"
)

type pixelFormat struct {
	Size        uint32
	Flags       uint32
	FourCC      uint32
	RGBBitCount uint32
	RBitMask    uint32
	GBitMask    uint32
	BBitMask    uint32
	ABitMask    uint32
}

type header struct {
	Size              uint32
	Flags             uint32
	Height            uint32
	Width             uint32
	PitchOrLinearSize uint32
	Depth             uint32
	MipMapCount       uint32
	Reserved1         [11]uint32
	PixelFormat       pixelFormat
	Caps              uint32
	Caps2             uint32
	Caps3             uint32
	Caps4             uint32
	Reserved2         uint32
}

// readHeader consumes the magic number and header from r.
func readHeader(r io.Reader) (header, error) {
	var m [4]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return header{}, ErrNotDDS
	}
	if string(m[:]) != magic {
		return header{}, ErrNotDDS
	}
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return header{}, fmt.Errorf("dds: read header: %w", ErrTruncated)
	}
	if h.Size != headerSize || h.PixelFormat.Size != pixelFormatSize {
		return header{}, fmt.Errorf("dds: bad header size %d: %w", h.Size, ErrNotDDS)
	}
	if h.Width == 0 || h.Height == 0 || h.Width > MaxDimension || h.Height > MaxDimension {
		return header{}, ErrInvalidDimensions
	}
	return h, nil
}

// writeHeader writes the magic number and a header for a BC image.
func writeHeader(w io.Writer, width, height, mips int, fourCC uint32) error {
	blockBytes := 16
	if fourCC == fourCCDXT1 {
		blockBytes = 8
	}
	linearSize := blocksAcross(width) * blocksAcross(height) * blockBytes
	h := header{
		Size:              headerSize,
		Flags:             flagCaps | flagHeight | flagWidth | flagPixelFormat | flagLinearSize,
		Height:            uint32(height),
		Width:             uint32(width),
		PitchOrLinearSize: uint32(linearSize),
		MipMapCount:       uint32(mips),
		PixelFormat: pixelFormat{
			Size:   pixelFormatSize,
			Flags:  pfFourCC,
			FourCC: fourCC,
		},
		Caps: capsTexture,
	}
	if mips > 1 {
		h.Flags |= flagMipmapCount
		h.Caps |= capsComplex | capsMipmap
	}
	if _, err := io.WriteString(w, magic); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, &h)
}

// blocksAcross returns the number of 4x4 blocks covering n pixels.
func blocksAcross(n int) int {
	return max(1, (n+3)/4)
}
