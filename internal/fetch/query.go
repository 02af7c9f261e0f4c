package fetch

import (
	"context"
	"maps"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/prettymaps-go/prettymaps/internal/params"
)

// Source returns the features of one layer inside a boundary.
type Source interface {
	Fetch(ctx context.Context, b Boundary, q Query) (*geojson.FeatureCollection, error)
}

// Boundary is the lon/lat perimeter that constrains a fetch.
type Boundary struct {
	Perimeter orb.Geometry
}

// Query is the data-source request for one layer.
type Query struct {
	Layer        string
	Tags         params.Tags
	CustomFilter string
	OSMID        string
	// Network selects line features (highways, railways, waterways) instead of tagged areas.
	Network bool
	// Classes restricts a network query to these classification values.
	Classes []string
	// Tolerance grows the fetch area beyond the perimeter, in metres.
	Tolerance float64
}

// QueryFor derives the query of a resolved layer.
func QueryFor(name string, l params.Layer) Query {
	q := Query{
		Layer:        name,
		Tags:         l.Tags,
		CustomFilter: params.Value(l.CustomFilter, ""),
		OSMID:        params.Value(l.OSMID, ""),
		Network:      l.IsNetwork(name),
		Tolerance:    params.Value(l.Tolerance, 0),
	}
	if q.Network && l.Width != nil && l.Width.Uniform == nil {
		q.Classes = slices.Sorted(maps.Keys(l.Width.ByClass))
	}
	return q
}

// networkKey returns the OSM attribute that classifies a network layer.
func networkKey(layer string) string {
	switch layer {
	case "railway":
		return "railway"
	case "waterway":
		return "waterway"
	default:
		return "highway"
	}
}

// NetworkClasses returns the classification values of a network feature, most specific first.
func NetworkClasses(layer string, props geojson.Properties) []string {
	var out []string
	for _, key := range []string{networkKey(layer), "highway", "railway", "waterway"} {
		if v, ok := props[key].(string); ok && v != "" {
			out = append(out, v)
		}
	}
	return out
}
