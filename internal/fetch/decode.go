package fetch

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// areaKeys are attributes whose closed ways are areas rather than loops.
var areaKeys = []string{
	"building", "landuse", "natural", "leisure", "amenity", "area", "water", "place",
	"man_made", "shop", "tourism", "historic", "aeroway", "military", "boundary",
}

// decodeElements converts Overpass "out geom" elements into features. Closed ways become
// polygons unless network is set; multipolygon relations are assembled from their member ways.
func decodeElements(elements []overpassElement, network bool) []*geojson.Feature {
	var out []*geojson.Feature
	for _, el := range elements {
		g := elementGeometry(el, network)
		if g == nil {
			continue
		}
		f := geojson.NewFeature(g)
		f.ID = fmt.Sprintf("%s/%d", el.Type, el.ID)
		for k, v := range el.Tags {
			f.Properties[k] = v
		}
		f.Properties["osm_type"] = el.Type
		f.Properties["osm_id"] = el.ID
		out = append(out, f)
	}
	return out
}

func elementGeometry(el overpassElement, network bool) orb.Geometry {
	switch el.Type {
	case "node":
		if el.Lat == nil || el.Lon == nil || len(el.Tags) == 0 {
			return nil
		}
		return orb.Point{*el.Lon, *el.Lat}
	case "way":
		line := lineOf(el.Geometry)
		if len(line) < 2 {
			return nil
		}
		if !network && isArea(line, el.Tags) {
			return orb.Polygon{orb.Ring(line)}
		}
		return line
	case "relation":
		return relationGeometry(el, network)
	}
	return nil
}

func isArea(line orb.LineString, tags map[string]string) bool {
	if len(line) < 4 || !line[0].Equal(line[len(line)-1]) {
		return false
	}
	if tags["area"] == "no" {
		return false
	}
	for _, k := range areaKeys {
		if _, ok := tags[k]; ok {
			return true
		}
	}
	return false
}

func relationGeometry(el overpassElement, network bool) orb.Geometry {
	kind := el.Tags["type"]
	if !network && (kind == "multipolygon" || kind == "boundary") {
		var outer, inner []orb.LineString
		for _, m := range el.Members {
			if m.Type != "way" {
				continue
			}
			line := lineOf(m.Geometry)
			if len(line) < 2 {
				continue
			}
			if m.Role == "inner" {
				inner = append(inner, line)
			} else {
				outer = append(outer, line)
			}
		}
		return buildPolygons(assembleRings(outer), assembleRings(inner))
	}

	var mls orb.MultiLineString
	for _, m := range el.Members {
		if m.Type != "way" {
			continue
		}
		if line := lineOf(m.Geometry); len(line) >= 2 {
			mls = append(mls, line)
		}
	}
	if len(mls) == 0 {
		return nil
	}
	return mls
}

func lineOf(pts []overpassLatLon) orb.LineString {
	line := make(orb.LineString, 0, len(pts))
	for _, p := range pts {
		line = append(line, orb.Point{p.Lon, p.Lat})
	}
	return line
}

// assembleRings joins way fragments end to end into closed rings. Fragments that never
// close are dropped.
func assembleRings(parts []orb.LineString) []orb.Ring {
	pool := make([]orb.LineString, len(parts))
	copy(pool, parts)

	var rings []orb.Ring
	for len(pool) > 0 {
		cur := append(orb.LineString(nil), pool[0]...)
		pool = pool[1:]
		for !cur[0].Equal(cur[len(cur)-1]) {
			joined := false
			for i, next := range pool {
				end := cur[len(cur)-1]
				switch {
				case next[0].Equal(end):
					cur = append(cur, next[1:]...)
				case next[len(next)-1].Equal(end):
					rev := next.Clone()
					rev.Reverse()
					cur = append(cur, rev[1:]...)
				default:
					continue
				}
				pool = append(pool[:i], pool[i+1:]...)
				joined = true
				break
			}
			if !joined {
				break
			}
		}
		if len(cur) >= 4 && cur[0].Equal(cur[len(cur)-1]) {
			rings = append(rings, orb.Ring(cur))
		}
	}
	return rings
}

// buildPolygons attaches every inner ring to the first outer ring containing it.
func buildPolygons(outer, inner []orb.Ring) orb.Geometry {
	if len(outer) == 0 {
		return nil
	}
	mp := make(orb.MultiPolygon, len(outer))
	for i, r := range outer {
		mp[i] = orb.Polygon{r}
	}
	for _, h := range inner {
		for i := range mp {
			if planar.RingContains(mp[i][0], h[0]) {
				mp[i] = append(mp[i], h)
				break
			}
		}
	}
	if len(mp) == 1 {
		return mp[0]
	}
	return mp
}
