// Package geo holds the planar geometry used between fetching and drawing: a local metric
// projection, boundary shapes, dilation and affine transforms.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// EarthRadius is the WGS84 equatorial radius in metres.
const EarthRadius = 6378137.0

// Projection is an equirectangular projection centred on Origin. Projected coordinates are
// metres east and north of the origin, which is accurate enough at city scale.
type Projection struct {
	Origin orb.Point
	cosLat float64
}

// NewProjection returns a projection centred on origin (lon, lat).
func NewProjection(origin orb.Point) Projection {
	return Projection{Origin: origin, cosLat: math.Cos(origin.Lat() * math.Pi / 180)}
}

// ToPlane converts a lon/lat point to metres.
func (p Projection) ToPlane(pt orb.Point) orb.Point {
	return orb.Point{
		(pt.Lon() - p.Origin.Lon()) * math.Pi / 180 * EarthRadius * p.cosLat,
		(pt.Lat() - p.Origin.Lat()) * math.Pi / 180 * EarthRadius,
	}
}

// ToSphere converts metres back to lon/lat.
func (p Projection) ToSphere(pt orb.Point) orb.Point {
	lon := p.Origin.Lon()
	if p.cosLat != 0 {
		lon += pt.X() / (EarthRadius * p.cosLat) * 180 / math.Pi
	}
	return orb.Point{lon, p.Origin.Lat() + pt.Y()/EarthRadius*180/math.Pi}
}

// Forward projects a copy of g to metres.
func (p Projection) Forward(g orb.Geometry) orb.Geometry {
	if g == nil {
		return nil
	}
	return project.Geometry(orb.Clone(g), p.ToPlane)
}

// Inverse projects a copy of g back to lon/lat.
func (p Projection) Inverse(g orb.Geometry) orb.Geometry {
	if g == nil {
		return nil
	}
	return project.Geometry(orb.Clone(g), p.ToSphere)
}

// MetresToDegrees converts a distance at the origin latitude into degrees of latitude and longitude.
func (p Projection) MetresToDegrees(m float64) (dLat, dLon float64) {
	dLat = m / EarthRadius * 180 / math.Pi
	dLon = dLat
	if p.cosLat > 1e-9 {
		dLon = dLat / p.cosLat
	}
	return dLat, dLon
}
