package dds

import "encoding/binary"

// rgba is one 8-bit non-premultiplied pixel.
type rgba [4]uint8

// pack565 quantizes an 8-bit colour to RGB565 with rounding.
func pack565(c rgba) uint16 {
	r := (uint16(c[0])*31 + 127) / 255
	g := (uint16(c[1])*63 + 127) / 255
	b := (uint16(c[2])*31 + 127) / 255
	return r<<11 | g<<5 | b
}

// unpack565 expands RGB565 to 8 bits per channel by bit replication.
func unpack565(v uint16) rgba {
	r := uint8(v>>11) & 0x1f
	g := uint8(v>>5) & 0x3f
	b := uint8(v) & 0x1f
	return rgba{r<<3 | r>>2, g<<2 | g>>4, b<<3 | b>>2, 255}
}

// colorPalette returns the four BC colour entries for the endpoints.
// fourColor selects the interpolated mode; BC2 and BC3 always use it.
func colorPalette(c0, c1 uint16, fourColor bool) [4]rgba {
	e0 := unpack565(c0)
	e1 := unpack565(c1)
	var p [4]rgba
	p[0] = e0
	p[1] = e1
	if fourColor || c0 > c1 {
		for i := range 3 {
			p[2][i] = uint8((2*uint16(e0[i]) + uint16(e1[i]) + 1) / 3)
			p[3][i] = uint8((uint16(e0[i]) + 2*uint16(e1[i]) + 1) / 3)
		}
		p[2][3], p[3][3] = 255, 255
		return p
	}
	for i := range 3 {
		p[2][i] = uint8((uint16(e0[i]) + uint16(e1[i])) / 2)
	}
	p[2][3] = 255
	p[3] = rgba{}
	return p
}

// alphaPalette returns the eight BC3 alpha entries for the endpoints.
func alphaPalette(a0, a1 uint8) [8]uint8 {
	var p [8]uint8
	p[0], p[1] = a0, a1
	if a0 > a1 {
		for i := 1; i <= 6; i++ {
			p[i+1] = uint8((uint16(7-i)*uint16(a0) + uint16(i)*uint16(a1) + 3) / 7)
		}
		return p
	}
	for i := 1; i <= 4; i++ {
		p[i+1] = uint8((uint16(5-i)*uint16(a0) + uint16(i)*uint16(a1) + 2) / 5)
	}
	p[6], p[7] = 0, 255
	return p
}

// encodeColorBlock writes an 8-byte BC1-style colour block for 16 pixels.
func encodeColorBlock(dst []byte, px *[16]rgba) {
	var lo, hi rgba
	lo = rgba{255, 255, 255, 255}
	var mean [3]int
	for _, c := range px {
		for i := range 3 {
			lo[i] = min(lo[i], c[i])
			hi[i] = max(hi[i], c[i])
			mean[i] += int(c[i])
		}
	}
	for i := range 3 {
		mean[i] /= 16
	}

	// Orient the box diagonal along the dominant correlation with red.
	var covRG, covRB int
	for _, c := range px {
		dr := int(c[0]) - mean[0]
		covRG += dr * (int(c[1]) - mean[1])
		covRB += dr * (int(c[2]) - mean[2])
	}
	if covRG < 0 {
		lo[1], hi[1] = hi[1], lo[1]
	}
	if covRB < 0 {
		lo[2], hi[2] = hi[2], lo[2]
	}

	c0 := pack565(hi)
	c1 := pack565(lo)
	if c0 < c1 {
		c0, c1 = c1, c0
	}

	var indices uint32
	if c0 != c1 {
		pal := colorPalette(c0, c1, true)
		for i, c := range px {
			indices |= uint32(nearestColor(&pal, c)) << (2 * i)
		}
	}

	binary.LittleEndian.PutUint16(dst[0:], c0)
	binary.LittleEndian.PutUint16(dst[2:], c1)
	binary.LittleEndian.PutUint32(dst[4:], indices)
}

func nearestColor(pal *[4]rgba, c rgba) int {
	best, bestDist := 0, int(^uint(0)>>1)
	for i, p := range pal {
		dr := int(p[0]) - int(c[0])
		dg := int(p[1]) - int(c[1])
		db := int(p[2]) - int(c[2])
		d := dr*dr + dg*dg + db*db
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// encodeAlphaBlock writes an 8-byte BC3 alpha block for 16 pixels.
func encodeAlphaBlock(dst []byte, px *[16]rgba) {
	a0, a1 := uint8(0), uint8(255)
	for _, c := range px {
		a0 = max(a0, c[3])
		a1 = min(a1, c[3])
	}

	var bits uint64
	if a0 != a1 {
		pal := alphaPalette(a0, a1)
		for i, c := range px {
			best, bestDist := 0, 256
			for j, a := range pal {
				d := int(a) - int(c[3])
				if d < 0 {
					d = -d
				}
				if d < bestDist {
					best, bestDist = j, d
				}
			}
			bits |= uint64(best) << (3 * i)
		}
	}

	dst[0] = a0
	dst[1] = a1
	for i := range 6 {
		dst[2+i] = byte(bits >> (8 * i))
	}
}

// decodeColorBlock expands an 8-byte colour block into 16 pixels.
func decodeColorBlock(src []byte, fourColor bool, out *[16]rgba) {
	c0 := binary.LittleEndian.Uint16(src[0:])
	c1 := binary.LittleEndian.Uint16(src[2:])
	idx := binary.LittleEndian.Uint32(src[4:])
	pal := colorPalette(c0, c1, fourColor)
	for i := range 16 {
		out[i] = pal[(idx>>(2*i))&3]
	}
}

// decodeAlphaBlock overwrites the alpha of 16 pixels from a BC3 alpha block.
func decodeAlphaBlock(src []byte, out *[16]rgba) {
	pal := alphaPalette(src[0], src[1])
	var bits uint64
	for i := range 6 {
		bits |= uint64(src[2+i]) << (8 * i)
	}
	for i := range 16 {
		out[i][3] = pal[(bits>>(3*i))&7]
	}
}

// decodeExplicitAlpha overwrites the alpha of 16 pixels from a BC2 block.
func decodeExplicitAlpha(src []byte, out *[16]rgba) {
	for i := range 16 {
		nibble := src[i/2] >> (4 * (i % 2)) & 0xf
		out[i][3] = nibble<<4 | nibble
	}
}
