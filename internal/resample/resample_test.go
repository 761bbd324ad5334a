package resample

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/h2non/filetype"
	"golang.org/x/image/bmp"

	"github.com/gogpu/assettile/dds"
	"github.com/gogpu/assettile/internal/tga"
)

func solidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func near(a, b uint8, tol int) bool {
	d := int(a) - int(b)
	return d >= -tol && d <= tol
}

func assertSolid(t *testing.T, img *image.NRGBA, size int, want color.NRGBA, tol int) {
	t.Helper()
	if img.Rect.Dx() != size || img.Rect.Dy() != size {
		t.Fatalf("size = %dx%d, want %dx%d", img.Rect.Dx(), img.Rect.Dy(), size, size)
	}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			got := img.NRGBAAt(x, y)
			if !near(got.R, want.R, tol) || !near(got.G, want.G, tol) ||
				!near(got.B, want.B, tol) || !near(got.A, want.A, tol) {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

var red = color.NRGBA{R: 255, A: 255}

func TestDecodeFormats(t *testing.T) {
	src := solidImage(8, 8, red)

	var pngBuf, tgaBuf, bmpBuf bytes.Buffer
	if err := png.Encode(&pngBuf, src); err != nil {
		t.Fatal(err)
	}
	if err := tga.Encode(&tgaBuf, src); err != nil {
		t.Fatal(err)
	}
	if err := bmp.Encode(&bmpBuf, src); err != nil {
		t.Fatal(err)
	}
	ddsData, err := dds.Encode(src.Pix, 8, 8)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		data []byte
		ext  string
	}{
		{"png", pngBuf.Bytes(), ".png"},
		{"tga", tgaBuf.Bytes(), ".tga"},
		{"bmp", bmpBuf.Bytes(), ".bmp"},
		{"dds by extension", ddsData, ".DDS"},
		{"dds by magic", ddsData, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Decode(tt.data, tt.ext)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			assertSolid(t, img, 8, red, 0)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode(nil, ".png"); !errors.Is(err, ErrEmptyData) {
		t.Errorf("empty: err = %v, want ErrEmptyData", err)
	}
	if _, err := Decode([]byte("not an image at all"), ".png"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("garbage: err = %v, want ErrUnsupportedFormat", err)
	}
	if _, err := Decode([]byte("DDS garbage"), ".dds"); err == nil {
		t.Error("corrupt DDS should fail")
	}
}

func TestSniff(t *testing.T) {
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, solidImage(1, 1, red)); err != nil {
		t.Fatal(err)
	}
	if got := Sniff(pngBuf.Bytes()).Extension; got != "png" {
		t.Errorf("Sniff(png) = %q, want png", got)
	}

	ddsData, err := dds.Encode(solidImage(4, 4, red).Pix, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	if got := Sniff(ddsData).Extension; got != "dds" {
		t.Errorf("Sniff(dds) = %q, want dds", got)
	}
	if got := Sniff(nil); got != filetype.Unknown {
		t.Errorf("Sniff(nil) = %v, want unknown", got)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.tga")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := tga.Encode(f, solidImage(4, 4, red)); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	img, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	assertSolid(t, img, 4, red, 0)

	if _, err := LoadFile(filepath.Join(dir, "missing.png")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestResizeFilters(t *testing.T) {
	want := color.NRGBA{R: 200, G: 40, B: 90, A: 255}
	for _, f := range []Filter{FilterLanczos, FilterCatmullRom, FilterBox} {
		for _, srcSize := range []int{64, 128, 300, 512} {
			got := Resize(solidImage(srcSize, srcSize, want), 128, f)
			assertSolid(t, got, 128, want, 2)
		}
	}
}

func TestResizeNonSquare(t *testing.T) {
	got := Resize(solidImage(100, 20, red), 32, FilterCatmullRom)
	assertSolid(t, got, 32, red, 1)
}

func TestResizeZero(t *testing.T) {
	if got := Resize(solidImage(4, 4, red), 0, FilterBox); !got.Rect.Empty() {
		t.Errorf("Resize(0) bounds = %v, want empty", got.Rect)
	}
}

func TestHalve(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.SetNRGBA(0, 0, color.NRGBA{R: 0, A: 255})
	src.SetNRGBA(1, 0, color.NRGBA{R: 100, A: 255})
	src.SetNRGBA(0, 1, color.NRGBA{R: 200, A: 255})
	src.SetNRGBA(1, 1, color.NRGBA{R: 100, A: 255})

	dst := halve(src)
	if dst.Rect.Dx() != 1 || dst.Rect.Dy() != 1 {
		t.Fatalf("size = %v, want 1x1", dst.Rect)
	}
	if got := dst.NRGBAAt(0, 0); got.R != 100 || got.A != 255 {
		t.Errorf("halve = %v, want R=100 A=255", got)
	}
}

func TestToNRGBAOffset(t *testing.T) {
	src := solidImage(4, 4, red)
	src.SetNRGBA(2, 2, color.NRGBA{G: 255, A: 255})
	sub := src.SubImage(image.Rect(2, 2, 4, 4))

	got := ToNRGBA(sub)
	if got.Rect != image.Rect(0, 0, 2, 2) {
		t.Fatalf("bounds = %v, want (0,0)-(2,2)", got.Rect)
	}
	if c := got.NRGBAAt(0, 0); c != (color.NRGBA{G: 255, A: 255}) {
		t.Errorf("origin pixel = %v, want green", c)
	}

	gray := image.NewGray(image.Rect(0, 0, 1, 1))
	gray.Pix[0] = 128
	if c := ToNRGBA(gray).NRGBAAt(0, 0); c != (color.NRGBA{R: 128, G: 128, B: 128, A: 255}) {
		t.Errorf("gray = %v", c)
	}
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		in   string
		want Filter
	}{
		{"", FilterLanczos},
		{"Lanczos", FilterLanczos},
		{"catmullrom", FilterCatmullRom},
		{"bicubic", FilterCatmullRom},
		{" box ", FilterBox},
	}
	for _, tt := range tests {
		got, err := ParseFilter(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseFilter(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
		if err == nil && tt.in != "" && tt.in != "bicubic" {
			if back, _ := ParseFilter(got.String()); back != got {
				t.Errorf("String round trip %v -> %v", got, back)
			}
		}
	}
	if _, err := ParseFilter("nearest"); err == nil {
		t.Error("ParseFilter(nearest) should fail")
	}
}
