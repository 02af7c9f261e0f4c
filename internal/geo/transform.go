package geo

import (
	"github.com/paulmach/orb"
	"seehuhn.de/go/geom/matrix"
)

// Transform is a translate, scale and rotate applied to projected layers as one collection.
// Scale and rotation are about the centre of the translated collection.
type Transform struct {
	X        float64 `yaml:"x,omitempty"`
	Y        float64 `yaml:"y,omitempty"`
	ScaleX   float64 `yaml:"scale_x,omitempty"`
	ScaleY   float64 `yaml:"scale_y,omitempty"`
	Rotation float64 `yaml:"rotation,omitempty"`
}

// IsIdentity reports whether t leaves geometries unchanged.
func (t Transform) IsIdentity() bool {
	return t.X == 0 && t.Y == 0 && t.sx() == 1 && t.sy() == 1 && t.Rotation == 0
}

func (t Transform) sx() float64 {
	if t.ScaleX == 0 {
		return 1
	}
	return t.ScaleX
}

func (t Transform) sy() float64 {
	if t.ScaleY == 0 {
		return 1
	}
	return t.ScaleY
}

// Matrix returns the affine map of t for a collection whose bounding box centre is c.
func (t Transform) Matrix(c orb.Point) matrix.Matrix {
	return matrix.Translate(-c.X(), -c.Y()).
		Scale(t.sx(), t.sy()).
		RotateDeg(t.Rotation).
		Translate(c.X()+t.X, c.Y()+t.Y)
}

// Apply transforms copies of every geometry in layers with one shared matrix.
func (t Transform) Apply(layers []orb.Geometry) []orb.Geometry {
	if t.IsIdentity() {
		return layers
	}
	var b orb.Bound
	first := true
	for _, g := range layers {
		if g == nil {
			continue
		}
		if first {
			b = g.Bound()
			first = false
			continue
		}
		b = b.Union(g.Bound())
	}
	if first {
		return layers
	}
	m := t.Matrix(b.Center())
	out := make([]orb.Geometry, len(layers))
	for i, g := range layers {
		if g == nil {
			continue
		}
		out[i] = ApplyMatrix(m, g)
	}
	return out
}

// ApplyMatrix maps a copy of g through m.
func ApplyMatrix(m matrix.Matrix, g orb.Geometry) orb.Geometry {
	return mapPoints(orb.Clone(g), func(p orb.Point) orb.Point {
		x, y := m.Apply(p.X(), p.Y())
		return orb.Point{x, y}
	})
}
