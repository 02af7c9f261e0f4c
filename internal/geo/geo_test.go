package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectionRoundTrip(t *testing.T) {
	origin := orb.Point{2.3522, 48.8566}
	p := NewProjection(origin)

	assert.InDelta(t, 0, p.ToPlane(origin).X(), 1e-9)
	assert.InDelta(t, 0, p.ToPlane(origin).Y(), 1e-9)

	north := p.ToPlane(orb.Point{2.3522, 48.8566 + 0.01})
	assert.InDelta(t, 1113.2, north.Y(), 0.5)

	back := p.ToSphere(p.ToPlane(orb.Point{2.36, 48.86}))
	assert.InDelta(t, 2.36, back.Lon(), 1e-9)
	assert.InDelta(t, 48.86, back.Lat(), 1e-9)
}

func TestForwardDoesNotMutate(t *testing.T) {
	p := NewProjection(orb.Point{10, 50})
	ls := orb.LineString{{10, 50}, {10.01, 50.01}}
	out := p.Forward(ls).(orb.LineString)
	assert.Equal(t, orb.Point{10, 50}, ls[0])
	assert.InDelta(t, 0, out[0].X(), 1e-9)
}

func TestCircleAndSquare(t *testing.T) {
	c := Circle(orb.Point{0, 0}, 100, CircleSegments)
	require.Len(t, c, 1)
	assert.Len(t, c[0], CircleSegments+1)
	assert.Equal(t, orb.CCW, c[0].Orientation())
	assert.InDelta(t, math.Pi*100*100, planar.Area(c), 200)

	s := Square(orb.Point{0, 0}, 100, 0)
	assert.Equal(t, orb.Bound{Min: orb.Point{-100, -100}, Max: orb.Point{100, 100}}, s.Bound())
	assert.Equal(t, orb.CCW, s[0].Orientation())

	r := Square(orb.Point{0, 0}, 100, 45)
	assert.InDelta(t, 100*math.Sqrt2, r.Bound().Max.X(), 1e-9)
	assert.InDelta(t, planar.Area(s), planar.Area(r), 1e-6)
}

func TestPointBoundary(t *testing.T) {
	center := orb.Point{-43.23, -22.95}
	sq := PointBoundary(center, 500, false, 0, 0)
	circ := PointBoundary(center, 500, true, 0, 100)

	proj := NewProjection(center)
	b := proj.Forward(sq).Bound()
	assert.InDelta(t, 1000, b.Right()-b.Left(), 1e-6)

	cb := proj.Forward(circ).Bound()
	assert.InDelta(t, 1200, cb.Top()-cb.Bottom(), 1e-6)
	assert.True(t, Contains(circ, center))
}

func TestGrow(t *testing.T) {
	sq := Square(orb.Point{10, 10}, 50, 0)
	grown := Grow(sq, 25).Bound()
	assert.InDelta(t, -65, grown.Left()-0, 1e-9)
	assert.InDelta(t, 85, grown.Right(), 1e-9)

	assert.Nil(t, Grow(sq, -60))
	// Input is left untouched.
	assert.Equal(t, 60.0, sq.Bound().Right())
}

func TestNormalize(t *testing.T) {
	outer := orb.Ring{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}
	hole := orb.Ring{{2, 2}, {4, 2}, {4, 4}, {2, 4}, {2, 2}}
	p := Normalize(orb.Polygon{outer, hole}).(orb.Polygon)
	assert.Equal(t, orb.CCW, p[0].Orientation())
	assert.Equal(t, orb.CW, p[1].Orientation())
}

func TestIntersects(t *testing.T) {
	area := Circle(orb.Point{0, 0}, 100, CircleSegments)
	assert.True(t, Intersects(area, orb.Point{10, 10}))
	assert.False(t, Intersects(area, orb.Point{95, 95}))
	assert.True(t, Intersects(area, orb.LineString{{-200, 0}, {0, 0}}))
	assert.False(t, Intersects(area, orb.LineString{{300, 300}, {400, 400}}))
	// A large polygon swallowing the area still counts.
	assert.True(t, Intersects(area, Square(orb.Point{0, 0}, 1000, 0)))
}

func TestBufferLine(t *testing.T) {
	band := BufferLine(orb.LineString{{0, 0}, {100, 0}, {100, 100}}, 5)
	require.NotEmpty(t, band)
	for _, p := range band {
		assert.Equal(t, orb.CCW, p[0].Orientation())
	}
	b := band.Bound()
	assert.InDelta(t, -5, b.Left(), 1e-9)
	assert.InDelta(t, 105, b.Right(), 1e-9)
	assert.InDelta(t, 105, b.Top(), 1e-9)

	assert.Nil(t, BufferLine(orb.LineString{{0, 0}, {1, 1}}, 0))
}

func TestBufferPointsAndDimension(t *testing.T) {
	g := BufferPoints(orb.MultiPoint{{0, 0}, {10, 0}}, 2)
	mp, ok := g.(orb.MultiPolygon)
	require.True(t, ok)
	assert.Len(t, mp, 2)

	assert.Equal(t, 0, Dimension(orb.Point{}))
	assert.Equal(t, 1, Dimension(orb.MultiLineString{}))
	assert.Equal(t, 2, Dimension(orb.Polygon{}))
	assert.Equal(t, 2, Dimension(orb.Collection{orb.Point{}, orb.Polygon{}}))
}

func TestTransform(t *testing.T) {
	sq := Square(orb.Point{0, 0}, 10, 0)

	assert.True(t, Transform{}.IsIdentity())

	out := Transform{X: 5, Y: -5}.Apply([]orb.Geometry{sq, nil})
	require.Len(t, out, 2)
	assert.Nil(t, out[1])
	b := out[0].Bound()
	assert.InDelta(t, -5, b.Left(), 1e-9)
	assert.InDelta(t, -15, b.Bottom(), 1e-9)

	scaled := Transform{ScaleX: 2, ScaleY: 0.5}.Apply([]orb.Geometry{sq})[0].Bound()
	assert.InDelta(t, 40, scaled.Right()-scaled.Left(), 1e-9)
	assert.InDelta(t, 10, scaled.Top()-scaled.Bottom(), 1e-9)
	assert.InDelta(t, 0, scaled.Center().X(), 1e-9)

	rotated := Transform{Rotation: 45}.Apply([]orb.Geometry{sq})[0].Bound()
	assert.InDelta(t, 10*math.Sqrt2, rotated.Right(), 1e-9)

	// Input untouched.
	assert.Equal(t, 10.0, sq.Bound().Right())
}

func TestTransformMatrix(t *testing.T) {
	c := orb.Point{100, 50}
	m := Transform{X: 10, Y: -20, ScaleX: 2, Rotation: 90}.Matrix(c)

	x, y := m.Apply(c.X(), c.Y())
	assert.InDelta(t, 110, x, 1e-9, "the centre only moves by the offset")
	assert.InDelta(t, 30, y, 1e-9)

	// One unit east of the centre is scaled to two, then turned north.
	x, y = m.Apply(c.X()+1, c.Y())
	assert.InDelta(t, 110, x, 1e-9)
	assert.InDelta(t, 32, y, 1e-9)

	p := ApplyMatrix(m.Inv(), ApplyMatrix(m, orb.Point{3, 4})).(orb.Point)
	assert.InDelta(t, 3, p.X(), 1e-9)
	assert.InDelta(t, 4, p.Y(), 1e-9)
}
