package engine

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/prettymaps-go/prettymaps/internal/compose"
	"github.com/prettymaps-go/prettymaps/internal/fetch"
	"github.com/prettymaps-go/prettymaps/internal/geo"
	"github.com/prettymaps-go/prettymaps/internal/params"
)

// perimeter builds the lon/lat boundary. With a radius it is a circle or square around the
// place; otherwise the place must be an area. The square is rotated against the plot
// rotation so that it ends up axis-aligned once the layers are transformed.
func (e *Engine) perimeter(ctx context.Context, place fetch.Place, cfg params.Params, rotation float64) (orb.Geometry, error) {
	pl, _ := cfg.Layers.Get(params.PerimeterLayer)
	circle := params.Value(pl.Circle, params.Value(cfg.Circle, false))
	dilate := params.Value(pl.Dilate, params.Value(cfg.Dilate, 0))

	if cfg.Radius != nil {
		center, err := e.center(ctx, place)
		if err != nil {
			return nil, err
		}
		e.logger.Debug("point boundary", "lon", center.Lon(), "lat", center.Lat(), "radius", *cfg.Radius, "circle", circle)
		return geo.PointBoundary(center, *cfg.Radius, circle, -rotation, dilate), nil
	}

	var area orb.Geometry
	switch place.Kind {
	case fetch.PlacePolygon:
		area = place.Area
	case fetch.PlaceCoordinates:
		return nil, &params.ConfigurationError{Key: "radius", Reason: "a radius is required to plot around coordinates"}
	default:
		if e.geocoder == nil {
			return nil, fmt.Errorf("no geocoder configured to look up %q", place.Text)
		}
		var err error
		if area, err = e.geocoder.Area(ctx, place); err != nil {
			return nil, err
		}
	}
	if area == nil || area.Bound().IsEmpty() {
		return nil, &params.ConfigurationError{Key: "query", Reason: fmt.Sprintf("%q has no area", place.Text)}
	}
	if dilate == 0 {
		return area, nil
	}
	proj := geo.NewProjection(area.Bound().Center())
	grown := geo.Grow(proj.Forward(area), dilate)
	if grown == nil {
		return nil, &params.ConfigurationError{Key: "dilate", Reason: fmt.Sprintf("shrinking by %gm leaves no area", -dilate)}
	}
	return proj.Inverse(grown), nil
}

// center returns the lon/lat point a radius boundary is drawn around.
func (e *Engine) center(ctx context.Context, place fetch.Place) (orb.Point, error) {
	switch place.Kind {
	case fetch.PlaceCoordinates:
		return place.Point, nil
	case fetch.PlacePolygon:
		return place.Area.Bound().Center(), nil
	}
	if e.geocoder == nil {
		return orb.Point{}, fmt.Errorf("no geocoder configured to look up %q", place.Text)
	}
	if place.Kind == fetch.PlaceOSMID {
		area, err := e.geocoder.Area(ctx, place)
		if err != nil {
			return orb.Point{}, err
		}
		return area.Bound().Center(), nil
	}
	return e.geocoder.Geocode(ctx, place.Text)
}

// fetchLayers fetches every enabled layer, reusing backup layers when present. The
// perimeter layer is the boundary itself. Without TolerateFetchErrors the first failure
// is returned.
func (e *Engine) fetchLayers(ctx context.Context, cfg params.Params, perimeter orb.Geometry, req PlotRequest) (map[string]*geojson.FeatureCollection, map[string]compose.Input, error) {
	fetched := make(map[string]*geojson.FeatureCollection)
	inputs := make(map[string]compose.Input)
	boundary := fetch.Boundary{Perimeter: perimeter}

	for _, name := range cfg.LayerNames() {
		if name == params.PerimeterLayer {
			fc := geojson.NewFeatureCollection()
			fc.Append(geojson.NewFeature(perimeter))
			fetched[name] = fc
			continue
		}
		if req.Backup != nil {
			if fc, ok := req.Backup.Fetched[name]; ok {
				fetched[name] = fc
				continue
			}
		}

		layer, _ := cfg.Layers.Get(name)
		fc, err := e.source.Fetch(ctx, boundary, fetch.QueryFor(name, layer))
		if err != nil {
			if isCancelled(ctx, err) {
				return nil, nil, err
			}
			if !fetch.IsFetchError(err) {
				err = &fetch.FetchError{Layer: name, Err: err}
			}
			if !req.TolerateFetchErrors {
				return nil, nil, err
			}
			inputs[name] = compose.Input{Err: err}
			continue
		}
		if fc == nil {
			fc = geojson.NewFeatureCollection()
		}
		fetched[name] = fc
	}
	return fetched, inputs, nil
}

// project converts the perimeter and the fetched layers to planar metres, applies the
// transform to all of them with one shared centre, and stores the layers in inputs. It
// returns the planar perimeter.
func project(proj geo.Projection, t geo.Transform, perimeter orb.Geometry, fetched map[string]*geojson.FeatureCollection, inputs map[string]compose.Input) (orb.Geometry, error) {
	type ref struct {
		fc *geojson.FeatureCollection
		i  int
	}
	geoms := []orb.Geometry{proj.Forward(perimeter)}
	refs := []ref{{}}

	projected := make(map[string]*geojson.FeatureCollection, len(fetched))
	for name, fc := range fetched {
		out := geojson.NewFeatureCollection()
		for _, f := range fc.Features {
			if f == nil || f.Geometry == nil {
				continue
			}
			nf := geojson.NewFeature(proj.Forward(f.Geometry))
			nf.ID = f.ID
			nf.Properties = f.Properties.Clone()
			out.Append(nf)
			geoms = append(geoms, nf.Geometry)
			refs = append(refs, ref{fc: out, i: len(out.Features) - 1})
		}
		projected[name] = out
	}

	geoms = t.Apply(geoms)
	for i, r := range refs {
		if r.fc != nil {
			r.fc.Features[r.i].Geometry = geoms[i]
		}
	}
	for name, fc := range projected {
		inputs[name] = compose.Input{Features: fc}
	}
	if geoms[0] == nil {
		return nil, fmt.Errorf("perimeter is empty")
	}
	return geoms[0], nil
}
