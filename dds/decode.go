package dds

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
	"math/bits"
)

func init() {
	image.RegisterFormat("dds", magic, Decode, DecodeConfig)
}

// IsDDS reports whether data starts with the DDS magic number.
func IsDDS(data []byte) bool {
	return len(data) >= 4 && string(data[:4]) == magic
}

// DecodeConfig returns the dimensions of a DDS image without decoding pixels.
func DecodeConfig(r io.Reader) (image.Config, error) {
	h, err := readHeader(r)
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{
		ColorModel: color.NRGBAModel,
		Width:      int(h.Width),
		Height:     int(h.Height),
	}, nil
}

// Decode reads the top mip level of a DDS image.
func Decode(r io.Reader) (image.Image, error) {
	return DecodeNRGBA(r)
}

// DecodeBytes decodes the top mip level of DDS data held in memory.
func DecodeBytes(data []byte) (*image.NRGBA, error) {
	h, err := readHeader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	size, err := payloadSize(h)
	if err != nil {
		return nil, err
	}
	payload := data[4+headerSize:]
	if len(payload) < size {
		return nil, ErrTruncated
	}
	return decodePayload(h, payload[:size])
}

// DecodeNRGBA reads the top mip level of a DDS image as *image.NRGBA.
// The payload is read in full before the image is allocated.
func DecodeNRGBA(r io.Reader) (*image.NRGBA, error) {
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	size, err := payloadSize(h)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	n, err := buf.ReadFrom(io.LimitReader(r, int64(size)))
	if err != nil {
		return nil, fmt.Errorf("dds: read payload: %w", err)
	}
	if n < int64(size) {
		return nil, ErrTruncated
	}
	return decodePayload(h, buf.Bytes())
}

// payloadSize returns the byte length of the top mip level described by h.
func payloadSize(h header) (int, error) {
	w, ht := int(h.Width), int(h.Height)
	pf := h.PixelFormat
	switch {
	case pf.Flags&pfFourCC != 0:
		switch pf.FourCC {
		case fourCCDXT1:
			return blocksAcross(w) * blocksAcross(ht) * 8, nil
		case fourCCDXT3, fourCCDXT5:
			return blocksAcross(w) * blocksAcross(ht) * 16, nil
		}
		return 0, fmt.Errorf("%w: fourCC %#x", ErrUnsupportedFormat, pf.FourCC)
	case pf.Flags&pfRGB != 0:
		if pf.RGBBitCount != 24 && pf.RGBBitCount != 32 {
			return 0, fmt.Errorf("%w: %d bits per pixel", ErrUnsupportedFormat, pf.RGBBitCount)
		}
		return w * ht * int(pf.RGBBitCount/8), nil
	}
	return 0, fmt.Errorf("%w: flags %#x", ErrUnsupportedFormat, pf.Flags)
}

// decodePayload decodes a complete top mip level.
func decodePayload(h header, payload []byte) (*image.NRGBA, error) {
	img := image.NewNRGBA(image.Rect(0, 0, int(h.Width), int(h.Height)))
	r := bytes.NewReader(payload)
	var err error
	if pf := h.PixelFormat; pf.Flags&pfFourCC != 0 {
		err = decodeBlocks(r, img, pf.FourCC)
	} else {
		err = decodeUncompressed(r, img, pf)
	}
	if err != nil {
		return nil, err
	}
	return img, nil
}

func decodeBlocks(r io.Reader, img *image.NRGBA, fourCC uint32) error {
	var blockBytes int
	switch fourCC {
	case fourCCDXT1:
		blockBytes = 8
	case fourCCDXT3, fourCCDXT5:
		blockBytes = 16
	default:
		return fmt.Errorf("%w: fourCC %#x", ErrUnsupportedFormat, fourCC)
	}

	w, h := img.Rect.Dx(), img.Rect.Dy()
	block := make([]byte, blockBytes)
	var px [16]rgba
	for by := 0; by < blocksAcross(h); by++ {
		for bx := 0; bx < blocksAcross(w); bx++ {
			if _, err := io.ReadFull(r, block); err != nil {
				return ErrTruncated
			}
			switch fourCC {
			case fourCCDXT1:
				decodeColorBlock(block, false, &px)
			case fourCCDXT3:
				decodeColorBlock(block[8:], true, &px)
				decodeExplicitAlpha(block[:8], &px)
			case fourCCDXT5:
				decodeColorBlock(block[8:], true, &px)
				decodeAlphaBlock(block[:8], &px)
			}
			storeBlock(img, &px, bx*4, by*4)
		}
	}
	return nil
}

// storeBlock writes the visible part of a 4x4 block into img.
func storeBlock(img *image.NRGBA, px *[16]rgba, x0, y0 int) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := range 4 {
		if y0+y >= h {
			break
		}
		for x := range 4 {
			if x0+x >= w {
				break
			}
			off := img.PixOffset(x0+x, y0+y)
			c := px[y*4+x]
			copy(img.Pix[off:off+4], c[:])
		}
	}
}

func decodeUncompressed(r io.Reader, img *image.NRGBA, pf pixelFormat) error {
	if pf.RGBBitCount != 24 && pf.RGBBitCount != 32 {
		return fmt.Errorf("%w: %d bits per pixel", ErrUnsupportedFormat, pf.RGBBitCount)
	}
	bpp := int(pf.RGBBitCount / 8)
	w, h := img.Rect.Dx(), img.Rect.Dy()
	row := make([]byte, w*bpp)
	hasAlpha := pf.Flags&pfAlphaPixels != 0 && pf.ABitMask != 0

	for y := range h {
		if _, err := io.ReadFull(r, row); err != nil {
			return ErrTruncated
		}
		for x := range w {
			var v uint32
			for i := range bpp {
				v |= uint32(row[x*bpp+i]) << (8 * i)
			}
			off := img.PixOffset(x, y)
			img.Pix[off] = channel(v, pf.RBitMask)
			img.Pix[off+1] = channel(v, pf.GBitMask)
			img.Pix[off+2] = channel(v, pf.BBitMask)
			img.Pix[off+3] = 255
			if hasAlpha {
				img.Pix[off+3] = channel(v, pf.ABitMask)
			}
		}
	}
	return nil
}

// channel extracts the masked bits of v and scales them to 8 bits.
func channel(v, mask uint32) uint8 {
	if mask == 0 {
		return 0
	}
	shift := bits.TrailingZeros32(mask)
	width := bits.OnesCount32(mask)
	c := (v & mask) >> shift
	if width >= 8 {
		return uint8(c >> (width - 8))
	}
	maxVal := uint32(1)<<width - 1
	return uint8((c*255 + maxVal/2) / maxVal)
}
