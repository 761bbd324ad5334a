package asset

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/assettile/geom"
)

// ErrNoEntities is returned for a prefab document without entities.
var ErrNoEntities = errors.New("asset: prefab has no entities")

// Prefab is a reusable scene fragment.
type Prefab struct {
	Entities []PrefabEntity `yaml:"entities"`
}

// PrefabEntity is one entity of a prefab. Model is a path relative to the
// prefab file; entities without a model are pure transforms.
type PrefabEntity struct {
	Name     string     `yaml:"name"`
	Model    string     `yaml:"model,omitempty"`
	Position [3]float64 `yaml:"position,flow"`
	Scale    float64    `yaml:"scale,omitempty"`
}

// Transform returns the entity's local transform. A zero scale means 1.
func (e PrefabEntity) Transform() geom.Mat4 {
	s := e.Scale
	if s == 0 {
		s = 1
	}
	t := geom.Translate(geom.V3(e.Position[0], e.Position[1], e.Position[2]))
	return t.Mul(geom.Scale(geom.V3(s, s, s)))
}

// ParsePrefab decodes a YAML prefab document.
func ParsePrefab(data []byte) (*Prefab, error) {
	var p Prefab
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("asset: parse prefab: %w", err)
	}
	if len(p.Entities) == 0 {
		return nil, ErrNoEntities
	}
	return &p, nil
}

// Primary returns the first entity that references a model.
func (p *Prefab) Primary() (PrefabEntity, bool) {
	for _, e := range p.Entities {
		if e.Model != "" {
			return e, true
		}
	}
	return PrefabEntity{}, false
}

// ResolveModel returns the path of model relative to the prefab at
// prefabPath. Absolute model paths are returned unchanged.
func ResolveModel(prefabPath, model string) string {
	if filepath.IsAbs(model) || path.IsAbs(model) {
		return model
	}
	return filepath.Join(filepath.Dir(prefabPath), filepath.FromSlash(model))
}
