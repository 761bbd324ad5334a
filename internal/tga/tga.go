// Package tga implements a Truevision TGA decoder and a minimal encoder.
//
// Supported image types are uncompressed and RLE true-colour (24 and 32 bit)
// and grayscale (8 bit). Importing the package registers the decoder with
// the standard image package.
package tga

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
)

// Errors returned by the decoder.
var (
	// ErrUnsupported is returned for colour-mapped or otherwise unsupported files.
	ErrUnsupported = errors.New("tga: unsupported image")

	// ErrInvalidHeader is returned when the header is malformed.
	ErrInvalidHeader = errors.New("tga: invalid header")

	// ErrTruncated is returned when the file ends before the last pixel.
	ErrTruncated = errors.New("tga: truncated pixel data")
)

const (
	typeTrueColor    = 2
	typeGray         = 3
	typeRLETrueColor = 10
	typeRLEGray      = 11

	descTopOrigin = 0x20
	headerLen     = 18
)

func init() {
	for _, m := range []string{"??\x02", "??\x03", "??\x0a", "??\x0b"} {
		image.RegisterFormat("tga", m, Decode, DecodeConfig)
	}
}

type header struct {
	IDLength     uint8
	ColorMapType uint8
	ImageType    uint8
	ColorMap     [5]byte
	XOrigin      uint16
	YOrigin      uint16
	Width        uint16
	Height       uint16
	PixelDepth   uint8
	Descriptor   uint8
}

func readHeader(r io.Reader) (header, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return header{}, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	if h.ColorMapType != 0 {
		return header{}, fmt.Errorf("%w: colour-mapped", ErrUnsupported)
	}
	if h.Width == 0 || h.Height == 0 {
		return header{}, fmt.Errorf("%w: zero size", ErrInvalidHeader)
	}
	switch h.ImageType {
	case typeTrueColor, typeRLETrueColor:
		if h.PixelDepth != 24 && h.PixelDepth != 32 {
			return header{}, fmt.Errorf("%w: %d-bit true colour", ErrUnsupported, h.PixelDepth)
		}
	case typeGray, typeRLEGray:
		if h.PixelDepth != 8 {
			return header{}, fmt.Errorf("%w: %d-bit grayscale", ErrUnsupported, h.PixelDepth)
		}
	default:
		return header{}, fmt.Errorf("%w: image type %d", ErrUnsupported, h.ImageType)
	}
	return h, nil
}

// DecodeConfig returns the dimensions of a TGA image.
func DecodeConfig(r io.Reader) (image.Config, error) {
	h, err := readHeader(r)
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{ColorModel: color.NRGBAModel, Width: int(h.Width), Height: int(h.Height)}, nil
}

// Decode reads a TGA image. The result is always *image.NRGBA.
func Decode(r io.Reader) (image.Image, error) {
	br := bufio.NewReader(r)
	h, err := readHeader(br)
	if err != nil {
		return nil, err
	}
	if _, err := br.Discard(int(h.IDLength)); err != nil {
		return nil, fmt.Errorf("%w: image id: %v", ErrInvalidHeader, err)
	}

	w, ht := int(h.Width), int(h.Height)
	bpp := int(h.PixelDepth) / 8
	size := w * ht * bpp

	// raw grows with the data actually present, never from the header alone.
	var raw []byte
	if h.ImageType == typeRLETrueColor || h.ImageType == typeRLEGray {
		raw, err = readRLE(br, size, bpp)
	} else {
		raw, err = readRaw(br, size)
	}
	if err != nil {
		return nil, fmt.Errorf("tga: pixel data: %w", err)
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, ht))
	topDown := h.Descriptor&descTopOrigin != 0
	for y := range ht {
		srcY := y
		if !topDown {
			srcY = ht - 1 - y
		}
		src := raw[srcY*w*bpp:]
		dst := img.Pix[y*img.Stride:]
		for x := range w {
			s := src[x*bpp:]
			d := dst[x*4 : x*4+4]
			switch bpp {
			case 1:
				d[0], d[1], d[2], d[3] = s[0], s[0], s[0], 255
			case 3:
				d[0], d[1], d[2], d[3] = s[2], s[1], s[0], 255
			case 4:
				d[0], d[1], d[2], d[3] = s[2], s[1], s[0], s[3]
			}
		}
	}
	return img, nil
}

// readRaw reads exactly size bytes of uncompressed pixel data.
func readRaw(r io.Reader, size int) ([]byte, error) {
	var buf bytes.Buffer
	n, err := buf.ReadFrom(io.LimitReader(r, int64(size)))
	if err != nil {
		return nil, err
	}
	if n < int64(size) {
		return nil, ErrTruncated
	}
	return buf.Bytes(), nil
}

// readRLE expands run-length encoded packets until size bytes are produced.
func readRLE(r *bufio.Reader, size, bpp int) ([]byte, error) {
	var dst []byte
	px := make([]byte, bpp)
	for len(dst) < size {
		hdr, err := r.ReadByte()
		if err != nil {
			return nil, ErrTruncated
		}
		n := int(hdr&0x7f) + 1
		if len(dst)+n*bpp > size {
			return nil, fmt.Errorf("%w: run overflows image", ErrInvalidHeader)
		}
		if hdr&0x80 != 0 {
			if _, err := io.ReadFull(r, px); err != nil {
				return nil, ErrTruncated
			}
			for range n {
				dst = append(dst, px...)
			}
			continue
		}
		for range n {
			if _, err := io.ReadFull(r, px); err != nil {
				return nil, ErrTruncated
			}
			dst = append(dst, px...)
		}
	}
	return dst, nil
}

// Encode writes img as an uncompressed 32-bit top-down TGA.
func Encode(w io.Writer, img image.Image) error {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 || b.Dx() > 0xffff || b.Dy() > 0xffff {
		return fmt.Errorf("%w: %v", ErrInvalidHeader, b)
	}
	h := header{
		ImageType:  typeTrueColor,
		Width:      uint16(b.Dx()),
		Height:     uint16(b.Dy()),
		PixelDepth: 32,
		Descriptor: descTopOrigin | 8,
	}
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, &h); err != nil {
		return err
	}
	row := make([]byte, b.Dx()*4)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			o := (x - b.Min.X) * 4
			row[o], row[o+1], row[o+2], row[o+3] = c.B, c.G, c.R, c.A
		}
		if _, err := bw.Write(row); err != nil {
			return err
		}
	}
	return bw.Flush()
}
