package render

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/prettymaps-go/prettymaps/internal/geo"
)

// pixelPolygons converts the polygons of g to pixel space with outer rings in one
// orientation and holes in the other, so the non-zero rule fills the shape.
func (v viewport) pixelPolygons(g orb.Geometry) []orb.Polygon {
	var polys []orb.Polygon
	switch t := g.(type) {
	case orb.Polygon:
		polys = []orb.Polygon{t}
	case orb.MultiPolygon:
		polys = t
	case orb.Bound:
		polys = []orb.Polygon{t.ToPolygon()}
	case orb.Collection:
		var out []orb.Polygon
		for _, c := range t {
			out = append(out, v.pixelPolygons(c)...)
		}
		return out
	}
	out := make([]orb.Polygon, 0, len(polys))
	for _, p := range polys {
		pp := make(orb.Polygon, 0, len(p))
		for i, r := range p {
			if len(r) < 3 {
				continue
			}
			pr := orb.Ring(v.path(r))
			want := orb.CCW
			if i > 0 {
				want = orb.CW
			}
			if pr.Orientation() != want {
				pr.Reverse()
			}
			pp = append(pp, pr)
		}
		if len(pp) > 0 {
			out = append(out, pp)
		}
	}
	return out
}

// stroke returns the band of width lw around a pixel polyline, dashed when dashes is set.
func stroke(pts []orb.Point, lw float64, dashes []float64) orb.MultiPolygon {
	if lw <= 0 || len(pts) < 2 {
		return nil
	}
	var out orb.MultiPolygon
	for _, part := range dash(pts, dashes) {
		out = append(out, geo.BufferLine(orb.LineString(part), lw/2)...)
	}
	return out
}

// closed returns the ring as a polyline that ends at its first point.
func closed(r orb.Ring) []orb.Point {
	if len(r) == 0 || r[0] == r[len(r)-1] {
		return r
	}
	return append(append([]orb.Point(nil), r...), r[0])
}

// dash splits a polyline into the "on" pieces of an on/off pattern.
func dash(pts []orb.Point, pattern []float64) [][]orb.Point {
	if len(pattern) == 0 {
		return [][]orb.Point{pts}
	}
	var (
		out  [][]orb.Point
		cur  = []orb.Point{pts[0]}
		idx  int
		left = pattern[0]
		on   = true
	)
	for i := 1; i < len(pts); i++ {
		a, b := pts[i-1], pts[i]
		seg := math.Hypot(b.X()-a.X(), b.Y()-a.Y())
		pos := 0.0
		for seg-pos > left {
			pos += left
			t := pos / seg
			p := orb.Point{a.X() + (b.X()-a.X())*t, a.Y() + (b.Y()-a.Y())*t}
			if on {
				cur = append(cur, p)
				out = append(out, cur)
				cur = nil
			} else {
				cur = []orb.Point{p}
			}
			on = !on
			idx = (idx + 1) % len(pattern)
			left = pattern[idx]
			for left <= 0 {
				on = !on
				idx = (idx + 1) % len(pattern)
				left = pattern[idx]
			}
		}
		left -= seg - pos
		if on {
			cur = append(cur, b)
		}
	}
	if on && len(cur) > 1 {
		out = append(out, cur)
	}
	return out
}

// quad returns the rectangle of width lw along the segment a-b.
func quad(a, b orb.Point, lw float64) orb.Polygon {
	dx, dy := b.X()-a.X(), b.Y()-a.Y()
	l := math.Hypot(dx, dy)
	if l == 0 {
		return nil
	}
	nx, ny := -dy/l*lw/2, dx/l*lw/2
	return orb.Polygon{{
		{a.X() - nx, a.Y() - ny},
		{b.X() - nx, b.Y() - ny},
		{b.X() + nx, b.Y() + ny},
		{a.X() + nx, a.Y() + ny},
		{a.X() - nx, a.Y() - ny},
	}}
}

// annulus returns a ring of outer radius r and width lw around c.
func annulus(c orb.Point, r, lw float64, segments int) orb.Polygon {
	outer := geo.Circle(c, r+lw/2, segments)[0]
	inner := orb.Ring(append([]orb.Point(nil), geo.Circle(c, max(r-lw/2, 0), segments)[0]...))
	inner.Reverse()
	return orb.Polygon{outer, inner}
}
