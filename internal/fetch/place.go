package fetch

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/prettymaps-go/prettymaps/internal/params"
)

// PlaceKind tells how a place query is resolved into a boundary.
type PlaceKind int

const (
	// PlaceAddress is free text geocoded by Nominatim.
	PlaceAddress PlaceKind = iota
	// PlaceCoordinates is a "lat,lon" pair.
	PlaceCoordinates
	// PlaceOSMID is an OSM element id such as R1234.
	PlaceOSMID
	// PlacePolygon is a boundary geometry supplied by the caller.
	PlacePolygon
)

func (k PlaceKind) String() string {
	switch k {
	case PlaceCoordinates:
		return "coordinates"
	case PlaceOSMID:
		return "osmid"
	case PlacePolygon:
		return "polygon"
	default:
		return "address"
	}
}

// Place is a parsed plot query.
type Place struct {
	Kind PlaceKind
	// Text is the query as given.
	Text string
	// Point is set for coordinates (lon, lat).
	Point orb.Point
	// OSMID is set for OSM id queries.
	OSMID string
	// Area is set for polygon queries (lon/lat).
	Area orb.Geometry
}

var (
	coordsPattern = regexp.MustCompile(`^\(?\s*(-?\d+(?:\.\d+)?)\s*[, ]\s*(-?\d+(?:\.\d+)?)\s*\)?$`)
	osmIDPattern  = regexp.MustCompile(`^[NWR][0-9]+$`)
)

// ParsePlace classifies a query as coordinates ("lat,lon"), an OSM id, an inline GeoJSON
// boundary, or an address.
func ParsePlace(query string) (Place, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return Place{}, &params.ConfigurationError{Key: "query", Reason: "place query is empty"}
	}
	if m := coordsPattern.FindStringSubmatch(q); m != nil {
		lat, _ := strconv.ParseFloat(m[1], 64)
		lon, _ := strconv.ParseFloat(m[2], 64)
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return Place{}, &params.ConfigurationError{Key: "query", Reason: fmt.Sprintf("coordinates %q out of range (expected lat,lon)", q)}
		}
		return Place{Kind: PlaceCoordinates, Text: q, Point: orb.Point{lon, lat}}, nil
	}
	if osmIDPattern.MatchString(q) {
		return Place{Kind: PlaceOSMID, Text: q, OSMID: q}, nil
	}
	if strings.HasPrefix(q, "{") {
		area, err := ParseGeoJSONArea([]byte(q))
		if err != nil {
			return Place{}, &params.ConfigurationError{Key: "query", Reason: err.Error()}
		}
		return Place{Kind: PlacePolygon, Text: "geojson", Area: area}, nil
	}
	return Place{Kind: PlaceAddress, Text: q}, nil
}

// LoadPlaceFile reads a GeoJSON boundary file.
func LoadPlaceFile(path string) (Place, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Place{}, fmt.Errorf("read boundary file: %w", err)
	}
	area, err := ParseGeoJSONArea(data)
	if err != nil {
		return Place{}, fmt.Errorf("parse boundary file %s: %w", path, err)
	}
	return Place{Kind: PlacePolygon, Text: path, Area: area}, nil
}

// ParseGeoJSONArea reads a geometry, feature or feature collection and returns its
// polygonal parts as one Polygon or MultiPolygon.
func ParseGeoJSONArea(data []byte) (orb.Geometry, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("invalid GeoJSON: %w", err)
	}

	var geoms []orb.Geometry
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, err
		}
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, err
		}
		geoms = append(geoms, f.Geometry)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, err
		}
		geoms = append(geoms, g.Geometry())
	}

	var mp orb.MultiPolygon
	for _, g := range geoms {
		mp = appendPolygons(mp, g)
	}
	switch len(mp) {
	case 0:
		return nil, fmt.Errorf("GeoJSON contains no polygon")
	case 1:
		return mp[0], nil
	default:
		return mp, nil
	}
}

func appendPolygons(mp orb.MultiPolygon, g orb.Geometry) orb.MultiPolygon {
	switch v := g.(type) {
	case orb.Polygon:
		return append(mp, v)
	case orb.MultiPolygon:
		return append(mp, v...)
	case orb.Bound:
		return append(mp, v.ToPolygon())
	case orb.Collection:
		for _, c := range v {
			mp = appendPolygons(mp, c)
		}
	}
	return mp
}
