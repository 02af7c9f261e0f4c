package compose

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/prettymaps-go/prettymaps/internal/fetch"
	"github.com/prettymaps-go/prettymaps/internal/geo"
	"github.com/prettymaps-go/prettymaps/internal/params"
)

// Shapes converts the planar features of a layer into drawable shapes, one per feature.
//
// Network layers with a width turn each line into a band of the width of its class;
// features whose class has no width are dropped. Other layers turn points and lines into
// discs and bands when dilate_points or dilate_lines is positive and drop them when it is
// negative.
func Shapes(name string, l params.Layer, fc *geojson.FeatureCollection) []orb.Geometry {
	if fc == nil {
		return nil
	}
	var out []orb.Geometry
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		var g orb.Geometry
		if l.IsNetwork(name) && l.Width != nil {
			g = networkShape(name, l.Width, f)
		} else {
			g = featureShape(l, f.Geometry)
		}
		if g != nil {
			out = append(out, g)
		}
	}
	return out
}

func networkShape(name string, width *params.Width, f *geojson.Feature) orb.Geometry {
	if geo.Dimension(f.Geometry) != 1 {
		return f.Geometry
	}
	w, ok := width.For(fetch.NetworkClasses(name, f.Properties)...)
	if !ok || w <= 0 {
		return nil
	}
	return geo.BufferLines(f.Geometry, w)
}

func featureShape(l params.Layer, g orb.Geometry) orb.Geometry {
	switch geo.Dimension(g) {
	case 0:
		if l.DilatePoints == nil || *l.DilatePoints == 0 {
			return g
		}
		if *l.DilatePoints < 0 {
			return nil
		}
		return geo.BufferPoints(g, *l.DilatePoints)
	case 1:
		if l.DilateLines == nil || *l.DilateLines == 0 {
			return g
		}
		if *l.DilateLines < 0 {
			return nil
		}
		return geo.BufferLines(g, *l.DilateLines)
	}
	return g
}
