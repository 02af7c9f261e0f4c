package geo

import (
	"github.com/paulmach/orb"
	"seehuhn.de/go/geom/vec"
)

const jointSegments = 12

// BufferPoint returns a disc of radius r around a planar point.
func BufferPoint(p orb.Point, r float64) orb.Polygon {
	return Circle(p, r, 2*jointSegments)
}

// BufferLine turns a planar line into a band of half-width w. The band is returned as
// counter-clockwise segment quads and round joints, which fill as their union under the
// non-zero rule.
func BufferLine(ls orb.LineString, w float64) orb.MultiPolygon {
	if w <= 0 || len(ls) == 0 {
		return nil
	}
	out := make(orb.MultiPolygon, 0, 2*len(ls))
	for i := 0; i+1 < len(ls); i++ {
		a := vec.Vec2{X: ls[i].X(), Y: ls[i].Y()}
		b := vec.Vec2{X: ls[i+1].X(), Y: ls[i+1].Y()}
		d := b.Sub(a)
		length := d.Length()
		if length == 0 {
			continue
		}
		t := d.Mul(1 / length)
		n := vec.Vec2{X: -t.Y, Y: t.X}.Mul(w)
		quad := orb.Ring{
			toPoint(a.Sub(n)),
			toPoint(b.Sub(n)),
			toPoint(b.Add(n)),
			toPoint(a.Add(n)),
			toPoint(a.Sub(n)),
		}
		out = append(out, orb.Polygon{quad})
	}
	for _, p := range ls {
		out = append(out, Circle(p, w, jointSegments))
	}
	return out
}

// BufferLines applies BufferLine to every line of g and returns the union pieces.
// Polygonal and point geometries are returned unchanged.
func BufferLines(g orb.Geometry, w float64) orb.Geometry {
	switch v := g.(type) {
	case orb.LineString:
		return BufferLine(v, w)
	case orb.MultiLineString:
		var out orb.MultiPolygon
		for _, ls := range v {
			out = append(out, BufferLine(ls, w)...)
		}
		return out
	case orb.Collection:
		out := make(orb.Collection, 0, len(v))
		for _, c := range v {
			if b := BufferLines(c, w); b != nil {
				out = append(out, b)
			}
		}
		return out
	}
	return g
}

// BufferPoints turns points of g into discs of radius r.
func BufferPoints(g orb.Geometry, r float64) orb.Geometry {
	switch v := g.(type) {
	case orb.Point:
		return BufferPoint(v, r)
	case orb.MultiPoint:
		out := make(orb.MultiPolygon, 0, len(v))
		for _, p := range v {
			out = append(out, BufferPoint(p, r))
		}
		return out
	case orb.Collection:
		out := make(orb.Collection, 0, len(v))
		for _, c := range v {
			out = append(out, BufferPoints(c, r))
		}
		return out
	}
	return g
}

// Dimension returns 0 for points, 1 for lines and 2 for areas. Collections report their
// highest member dimension.
func Dimension(g orb.Geometry) int {
	switch v := g.(type) {
	case orb.Point, orb.MultiPoint:
		return 0
	case orb.LineString, orb.MultiLineString:
		return 1
	case orb.Collection:
		d := 0
		for _, c := range v {
			d = max(d, Dimension(c))
		}
		return d
	}
	return 2
}

func toPoint(v vec.Vec2) orb.Point {
	return orb.Point{v.X, v.Y}
}
