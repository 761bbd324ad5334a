package tile

import (
	"errors"
	"fmt"
	"hash/crc32"
	"testing"
)

func TestKindFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Kind
	}{
		{"textures/a.tga", KindImage},
		{"textures/A.DDS", KindImage},
		{"b.png", KindImage},
		{"models/b.msh", KindModel},
		{"prefabs/tree.fab", KindPrefab},
		{"materials/stone.mat", KindMaterial},
		{"shaders/pbr.shd", KindShader},
		{"readme.txt", KindUnknown},
		{"noext", KindUnknown},
	}
	for _, tt := range tests {
		if got := KindFromPath(tt.path); got != tt.want {
			t.Errorf("KindFromPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestKindString(t *testing.T) {
	for k := KindImage; k < kindCount; k++ {
		if !k.IsValid() {
			t.Errorf("%v.IsValid() = false", k)
		}
		if got := ParseKind(k.String()); got != k {
			t.Errorf("ParseKind(%q) = %v, want %v", k.String(), got, k)
		}
	}
	if KindUnknown.IsValid() {
		t.Error("KindUnknown.IsValid() = true")
	}
	if Kind(200).String() != "unknown" {
		t.Errorf("Kind(200).String() = %q", Kind(200).String())
	}
}

func TestIsRendered(t *testing.T) {
	if !KindModel.IsRendered() || !KindPrefab.IsRendered() {
		t.Error("models and prefabs must be rendered")
	}
	if KindImage.IsRendered() || KindMaterial.IsRendered() {
		t.Error("images and materials must not be rendered")
	}
}

func TestHashNormalizes(t *testing.T) {
	same := []string{"a.tga", "./a.tga", "x/../a.tga"}
	want := crc32.ChecksumIEEE([]byte("a.tga"))
	for _, p := range same {
		if got := Hash(p); got != want {
			t.Errorf("Hash(%q) = %08x, want %08x", p, got, want)
		}
	}

	// NFD and NFC spellings of "é" hash identically.
	if Hash("cafe\u0301.png") != Hash("caf\u00e9.png") {
		t.Error("Hash should be stable across Unicode normalization forms")
	}

	if Hash("a.tga") == Hash("b.tga") {
		t.Error("different paths should not collide here")
	}
}

func TestNewRequest(t *testing.T) {
	r := NewRequest("models/b.msh", KindModel)
	if r.Hash != Hash("models/b.msh") {
		t.Errorf("Hash = %08x, want %08x", r.Hash, Hash("models/b.msh"))
	}
	if got := FileName(r.Hash); got != fmt.Sprintf("%d.dds", r.Hash) {
		t.Errorf("FileName = %q", got)
	}
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("open: %w", ErrLoad), "load"},
		{fmt.Errorf("x: %w", ErrDecode), "decode"},
		{ErrEncode, "encode"},
		{ErrUnknownKind, "kind"},
		{errors.New("disk full"), "io"},
	}
	for _, tt := range tests {
		if got := Reason(tt.err); got != tt.want {
			t.Errorf("Reason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
