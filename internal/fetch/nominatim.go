package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// DefaultNominatimURL is the public Nominatim endpoint.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// Geocoder resolves place queries into points and areas.
type Geocoder interface {
	// Geocode returns the lon/lat point of an address.
	Geocode(ctx context.Context, query string) (orb.Point, error)
	// Area returns the lon/lat outline of an address or OSM id place.
	Area(ctx context.Context, place Place) (orb.Geometry, error)
}

// Nominatim is a Geocoder backed by the Nominatim search and lookup APIs.
type Nominatim struct {
	http *transport
}

// NewNominatim constructs a Nominatim client.
func NewNominatim(opts Options) (*Nominatim, error) {
	t, err := newTransport(opts, DefaultNominatimURL)
	if err != nil {
		return nil, err
	}
	return &Nominatim{http: t}, nil
}

// Geocode returns the location of the best match for query.
func (n *Nominatim) Geocode(ctx context.Context, query string) (orb.Point, error) {
	place, err := n.search(ctx, query, false)
	if err != nil {
		return orb.Point{}, err
	}
	lat, err1 := strconv.ParseFloat(place.Lat, 64)
	lon, err2 := strconv.ParseFloat(place.Lon, 64)
	if err1 != nil || err2 != nil {
		return orb.Point{}, &FetchError{Err: fmt.Errorf("nominatim returned invalid coordinates %q,%q for %q", place.Lat, place.Lon, query)}
	}
	n.http.logger.Debug("geocoded", "query", query, "match", place.DisplayName, "lat", lat, "lon", lon)
	return orb.Point{lon, lat}, nil
}

// Area returns the polygon outline of an address or OSM id.
func (n *Nominatim) Area(ctx context.Context, p Place) (orb.Geometry, error) {
	var (
		place nominatimPlace
		err   error
	)
	switch p.Kind {
	case PlaceOSMID:
		place, err = n.lookup(ctx, p.OSMID)
	case PlaceAddress:
		place, err = n.search(ctx, p.Text, true)
	case PlacePolygon:
		return p.Area, nil
	default:
		return nil, fmt.Errorf("cannot look up an area for a %s query", p.Kind)
	}
	if err != nil {
		return nil, err
	}
	if len(place.GeoJSON) == 0 {
		return nil, &FetchError{Err: fmt.Errorf("nominatim returned no outline for %q", p.Text)}
	}
	g, err := geojson.UnmarshalGeometry(place.GeoJSON)
	if err != nil {
		return nil, &FetchError{Err: fmt.Errorf("decode outline of %q: %w", p.Text, err)}
	}
	switch area := g.Geometry().(type) {
	case orb.Polygon, orb.MultiPolygon:
		return area, nil
	default:
		return nil, &FetchError{Err: fmt.Errorf("%q resolves to a %s, not an area; pass a radius to draw around it", p.Text, area.GeoJSONType())}
	}
}

func (n *Nominatim) search(ctx context.Context, query string, polygon bool) (nominatimPlace, error) {
	v := url.Values{"q": {query}, "format": {"jsonv2"}, "limit": {"1"}}
	if polygon {
		v.Set("polygon_geojson", "1")
	}
	return n.first(ctx, "/search", v, query)
}

func (n *Nominatim) lookup(ctx context.Context, osmID string) (nominatimPlace, error) {
	v := url.Values{"osm_ids": {osmID}, "format": {"jsonv2"}, "polygon_geojson": {"1"}}
	return n.first(ctx, "/lookup", v, osmID)
}

// first returns the best match of a search or lookup call.
func (n *Nominatim) first(ctx context.Context, path string, v url.Values, query string) (nominatimPlace, error) {
	var places []nominatimPlace
	accept := func(data []byte) error {
		places = nil
		if err := json.Unmarshal(data, &places); err != nil {
			return fmt.Errorf("decode nominatim response: %w", err)
		}
		return nil
	}
	if _, err := n.http.get(ctx, path, v, accept); err != nil {
		return nominatimPlace{}, &FetchError{Err: err}
	}
	if len(places) == 0 {
		return nominatimPlace{}, &FetchError{Err: fmt.Errorf("no place found for %q", query)}
	}
	return places[0], nil
}
