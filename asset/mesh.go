package asset

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/gogpu/assettile/geom"
)

// Mesh errors.
var (
	// ErrBadMagic is returned when a mesh file does not start with "MSH1".
	ErrBadMagic = errors.New("asset: not a mesh file")

	// ErrMeshTooLarge is returned when counts exceed MaxMeshElements.
	ErrMeshTooLarge = errors.New("asset: mesh too large")

	// ErrBadIndex is returned when an index references a missing vertex or
	// the index count is not a multiple of three.
	ErrBadIndex = errors.New("asset: invalid mesh index")
)

// MaxMeshElements bounds the vertex and index counts accepted from a file.
const MaxMeshElements = 1 << 24

var meshMagic = [4]byte{'M', 'S', 'H', '1'}

// DefaultMeshColor is the base colour of meshes that do not carry one.
var DefaultMeshColor = color.NRGBA{R: 180, G: 180, B: 180, A: 255}

// Mesh is an indexed triangle list with a flat base colour.
type Mesh struct {
	Vertices []geom.Vec3
	Indices  []uint32
	Color    color.NRGBA
}

// Bounds returns the axis-aligned bounds of the vertices.
func (m *Mesh) Bounds() geom.AABB {
	b := geom.EmptyAABB()
	for _, v := range m.Vertices {
		b = b.Extend(v)
	}
	return b
}

// Triangles returns the number of triangles.
func (m *Mesh) Triangles() int {
	return len(m.Indices) / 3
}

// ReadMesh decodes a mesh in the MSH1 format: the magic, a u32 vertex count,
// that many 3 x f32 positions, a u32 index count, that many u32 indices and
// an optional trailing RGBA8 colour. All values are little-endian.
func ReadMesh(r io.Reader) (*Mesh, error) {
	br := bufio.NewReader(r)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil || magic != meshMagic {
		return nil, ErrBadMagic
	}

	vcount, err := readCount(br)
	if err != nil {
		return nil, fmt.Errorf("asset: vertex count: %w", err)
	}
	raw := make([]float32, 3*vcount)
	if err := binary.Read(br, binary.LittleEndian, raw); err != nil {
		return nil, fmt.Errorf("asset: vertices: %w", err)
	}

	icount, err := readCount(br)
	if err != nil {
		return nil, fmt.Errorf("asset: index count: %w", err)
	}
	if icount%3 != 0 {
		return nil, fmt.Errorf("%w: %d indices", ErrBadIndex, icount)
	}
	m := &Mesh{
		Vertices: make([]geom.Vec3, vcount),
		Indices:  make([]uint32, icount),
		Color:    DefaultMeshColor,
	}
	if err := binary.Read(br, binary.LittleEndian, m.Indices); err != nil {
		return nil, fmt.Errorf("asset: indices: %w", err)
	}

	for i := range m.Vertices {
		x, y, z := float64(raw[3*i]), float64(raw[3*i+1]), float64(raw[3*i+2])
		if math.IsNaN(x+y+z) || math.IsInf(x+y+z, 0) {
			return nil, fmt.Errorf("asset: vertex %d is not finite", i)
		}
		m.Vertices[i] = geom.V3(x, y, z)
	}
	for i, idx := range m.Indices {
		if int(idx) >= vcount {
			return nil, fmt.Errorf("%w: index %d = %d, %d vertices", ErrBadIndex, i, idx, vcount)
		}
	}

	var c [4]byte
	switch _, err := io.ReadFull(br, c[:]); {
	case err == nil:
		m.Color = color.NRGBA{R: c[0], G: c[1], B: c[2], A: c[3]}
	case errors.Is(err, io.EOF):
	default:
		return nil, fmt.Errorf("asset: colour: %w", err)
	}
	return m, nil
}

func readCount(r io.Reader) (int, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return 0, err
	}
	if n > MaxMeshElements {
		return 0, fmt.Errorf("%w: %d", ErrMeshTooLarge, n)
	}
	return int(n), nil
}

// WriteMesh encodes m in the MSH1 format, including its colour.
func WriteMesh(w io.Writer, m *Mesh) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(meshMagic[:]); err != nil {
		return err
	}
	raw := make([]float32, 0, 3*len(m.Vertices))
	for _, v := range m.Vertices {
		raw = append(raw, float32(v.X), float32(v.Y), float32(v.Z))
	}
	for _, v := range []any{uint32(len(m.Vertices)), raw, uint32(len(m.Indices)), m.Indices} {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if _, err := bw.Write([]byte{m.Color.R, m.Color.G, m.Color.B, m.Color.A}); err != nil {
		return err
	}
	return bw.Flush()
}

// Cube returns an axis-aligned cube of edge length size centred on the origin.
func Cube(size float64, c color.NRGBA) *Mesh {
	h := size / 2
	m := &Mesh{Color: c}
	for i := range 8 {
		v := geom.V3(-h, -h, -h)
		if i&1 != 0 {
			v.X = h
		}
		if i&2 != 0 {
			v.Y = h
		}
		if i&4 != 0 {
			v.Z = h
		}
		m.Vertices = append(m.Vertices, v)
	}
	// Counter-clockwise when viewed from outside.
	m.Indices = []uint32{
		0, 2, 3, 0, 3, 1, // -Z
		4, 5, 7, 4, 7, 6, // +Z
		0, 1, 5, 0, 5, 4, // -Y
		2, 6, 7, 2, 7, 3, // +Y
		0, 4, 6, 0, 6, 2, // -X
		1, 3, 7, 1, 7, 5, // +X
	}
	return m
}
