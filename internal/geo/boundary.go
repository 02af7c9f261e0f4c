package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// CircleSegments is the number of vertices used to approximate a circle.
const CircleSegments = 64

// Circle returns a counter-clockwise polygon approximating a circle in planar coordinates.
func Circle(center orb.Point, radius float64, segments int) orb.Polygon {
	if segments < 3 {
		segments = CircleSegments
	}
	ring := make(orb.Ring, 0, segments+1)
	for i := 0; i < segments; i++ {
		a := 2 * math.Pi * float64(i) / float64(segments)
		ring = append(ring, orb.Point{center.X() + radius*math.Cos(a), center.Y() + radius*math.Sin(a)})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

// Square returns a square of half-side radius around center, rotated counter-clockwise by
// rotation degrees.
func Square(center orb.Point, radius, rotation float64) orb.Polygon {
	corners := []orb.Point{{-radius, -radius}, {radius, -radius}, {radius, radius}, {-radius, radius}}
	sin, cos := math.Sincos(rotation * math.Pi / 180)
	ring := make(orb.Ring, 0, 5)
	for _, c := range corners {
		ring = append(ring, orb.Point{
			center.X() + c.X()*cos - c.Y()*sin,
			center.Y() + c.X()*sin + c.Y()*cos,
		})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

// PointBoundary builds a circle or square perimeter of radius metres around the lon/lat
// point center, grown by dilate metres, and returns it in lon/lat.
func PointBoundary(center orb.Point, radius float64, circle bool, rotation, dilate float64) orb.Polygon {
	proj := NewProjection(center)
	r := radius + dilate
	if r <= 0 {
		r = radius
	}
	var shape orb.Polygon
	if circle {
		shape = Circle(orb.Point{}, r, CircleSegments)
	} else {
		shape = Square(orb.Point{}, r, rotation)
	}
	return proj.Inverse(shape).(orb.Polygon)
}

// Grow dilates a planar polygonal geometry by d metres. The shape is scaled about its
// bounding box centre so that the box grows by d on every side; negative values shrink it.
func Grow(g orb.Geometry, d float64) orb.Geometry {
	if g == nil || d == 0 {
		return g
	}
	b := g.Bound()
	w, h := b.Right()-b.Left(), b.Top()-b.Bottom()
	if w <= 0 || h <= 0 {
		return g
	}
	sx := (w + 2*d) / w
	sy := (h + 2*d) / h
	if sx <= 0 || sy <= 0 {
		return nil
	}
	c := b.Center()
	return mapPoints(orb.Clone(g), func(p orb.Point) orb.Point {
		return orb.Point{c.X() + (p.X()-c.X())*sx, c.Y() + (p.Y()-c.Y())*sy}
	})
}

// Normalize orients outer rings counter-clockwise and holes clockwise so that non-zero
// filling draws holes. It modifies g in place and returns it.
func Normalize(g orb.Geometry) orb.Geometry {
	switch v := g.(type) {
	case orb.Polygon:
		normalizePolygon(v)
	case orb.MultiPolygon:
		for _, p := range v {
			normalizePolygon(p)
		}
	case orb.Collection:
		for _, c := range v {
			Normalize(c)
		}
	}
	return g
}

func normalizePolygon(p orb.Polygon) {
	for i, r := range p {
		want := orb.CCW
		if i > 0 {
			want = orb.CW
		}
		if len(r) > 2 && r.Orientation() != want {
			r.Reverse()
		}
	}
}

// Contains reports whether the polygonal geometry area contains pt.
func Contains(area orb.Geometry, pt orb.Point) bool {
	switch v := area.(type) {
	case orb.Polygon:
		return planar.PolygonContains(v, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(v, pt)
	case orb.Ring:
		return planar.RingContains(v, pt)
	case orb.Bound:
		return v.Contains(pt)
	case orb.Collection:
		for _, c := range v {
			if Contains(c, pt) {
				return true
			}
		}
	}
	return false
}

// Intersects reports whether any vertex of g lies inside area, or area's centroid lies
// inside g's bounds. It is a cheap filter applied after bounding box clipping.
func Intersects(area, g orb.Geometry) bool {
	if g == nil {
		return false
	}
	if !area.Bound().Intersects(g.Bound()) {
		return false
	}
	found := false
	eachPoint(g, func(p orb.Point) bool {
		if Contains(area, p) {
			found = true
			return false
		}
		return true
	})
	if found {
		return true
	}
	c, _ := planar.CentroidArea(area)
	return g.Bound().Contains(c)
}

func mapPoints(g orb.Geometry, f func(orb.Point) orb.Point) orb.Geometry {
	switch v := g.(type) {
	case orb.Point:
		return f(v)
	case orb.MultiPoint:
		for i := range v {
			v[i] = f(v[i])
		}
	case orb.LineString:
		for i := range v {
			v[i] = f(v[i])
		}
	case orb.MultiLineString:
		for _, ls := range v {
			mapPoints(ls, f)
		}
	case orb.Ring:
		for i := range v {
			v[i] = f(v[i])
		}
	case orb.Polygon:
		for _, r := range v {
			mapPoints(r, f)
		}
	case orb.MultiPolygon:
		for _, p := range v {
			mapPoints(p, f)
		}
	case orb.Collection:
		for i := range v {
			v[i] = mapPoints(v[i], f)
		}
	case orb.Bound:
		return orb.MultiPoint{f(v.Min), f(v.Max)}.Bound()
	}
	return g
}

func eachPoint(g orb.Geometry, f func(orb.Point) bool) bool {
	switch v := g.(type) {
	case orb.Point:
		return f(v)
	case orb.MultiPoint:
		for _, p := range v {
			if !f(p) {
				return false
			}
		}
	case orb.LineString:
		for _, p := range v {
			if !f(p) {
				return false
			}
		}
	case orb.Ring:
		for _, p := range v {
			if !f(p) {
				return false
			}
		}
	case orb.MultiLineString:
		for _, ls := range v {
			if !eachPoint(ls, f) {
				return false
			}
		}
	case orb.Polygon:
		for _, r := range v {
			if !eachPoint(r, f) {
				return false
			}
		}
	case orb.MultiPolygon:
		for _, p := range v {
			if !eachPoint(p, f) {
				return false
			}
		}
	case orb.Collection:
		for _, c := range v {
			if !eachPoint(c, f) {
				return false
			}
		}
	}
	return true
}
