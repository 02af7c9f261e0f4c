package fetch

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/geojson"

	"github.com/prettymaps-go/prettymaps/internal/geo"
)

// DefaultOverpassURL is the public Overpass API interpreter.
const DefaultOverpassURL = "https://overpass-api.de/api"

const defaultServerTimeout = 180 * time.Second

// Overpass fetches layers from an Overpass API endpoint.
type Overpass struct {
	http          *transport
	serverTimeout time.Duration
}

// NewOverpass constructs an Overpass client.
func NewOverpass(opts Options) (*Overpass, error) {
	t, err := newTransport(opts, DefaultOverpassURL)
	if err != nil {
		return nil, err
	}
	st := opts.Timeout
	if st <= 0 {
		st = defaultServerTimeout
	}
	return &Overpass{http: t, serverTimeout: st}, nil
}

// Fetch runs the layer query over the bounding box of the boundary (grown by the query
// tolerance), clips the result to that box and drops features outside the perimeter.
func (o *Overpass) Fetch(ctx context.Context, b Boundary, q Query) (*geojson.FeatureCollection, error) {
	if b.Perimeter == nil {
		return nil, &FetchError{Layer: q.Layer, Err: fmt.Errorf("boundary has no perimeter")}
	}
	box := FetchBound(b.Perimeter, q.Tolerance)
	ql, err := BuildQuery(box, q, o.serverTimeout)
	if err != nil {
		return nil, &FetchError{Layer: q.Layer, Err: err}
	}
	o.http.logger.Debug("overpass query", "layer", q.Layer, "query", ql)

	var resp overpassResponse
	if _, err := o.http.postForm(ctx, "/interpreter", url.Values{"data": {ql}}, resp.accept); err != nil {
		return nil, &FetchError{Layer: q.Layer, Err: err}
	}

	fc := geojson.NewFeatureCollection()
	for _, f := range decodeElements(resp.Elements, q.Network) {
		g := ClipToArea(f.Geometry, box, b.Perimeter, q.Tolerance > 0 || q.OSMID != "")
		if g == nil {
			continue
		}
		f.Geometry = g
		fc.Append(f)
	}
	o.http.logger.Info("fetched layer", "layer", q.Layer, "elements", len(resp.Elements), "features", len(fc.Features))
	return fc, nil
}

// FetchBound returns the perimeter's bounding box grown by tolerance metres.
func FetchBound(perimeter orb.Geometry, tolerance float64) orb.Bound {
	box := perimeter.Bound()
	if tolerance <= 0 {
		return box
	}
	dLat, dLon := geo.NewProjection(box.Center()).MetresToDegrees(tolerance)
	return orb.Bound{
		Min: orb.Point{box.Min.Lon() - dLon, box.Min.Lat() - dLat},
		Max: orb.Point{box.Max.Lon() + dLon, box.Max.Lat() + dLat},
	}
}

// ClipToArea clips g to box and, unless keepOutside is set, returns nil when g does not reach
// into the perimeter.
func ClipToArea(g orb.Geometry, box orb.Bound, perimeter orb.Geometry, keepOutside bool) orb.Geometry {
	clipped := clip.Geometry(box, orb.Clone(g))
	if isEmpty(clipped) {
		return nil
	}
	if !keepOutside && !geo.Intersects(perimeter, clipped) {
		return nil
	}
	return geo.Normalize(clipped)
}

func isEmpty(g orb.Geometry) bool {
	switch v := g.(type) {
	case nil:
		return true
	case orb.Point:
		return false
	case orb.MultiPoint:
		return len(v) == 0
	case orb.LineString:
		return len(v) < 2
	case orb.MultiLineString:
		return len(v) == 0
	case orb.Ring:
		return len(v) < 4
	case orb.Polygon:
		return len(v) == 0 || len(v[0]) < 4
	case orb.MultiPolygon:
		return len(v) == 0
	case orb.Collection:
		for _, c := range v {
			if !isEmpty(c) {
				return false
			}
		}
		return true
	}
	return false
}

var osmElementNames = map[byte]string{'N': "node", 'W': "way", 'R': "relation"}

// BuildQuery renders the Overpass QL for q inside box.
func BuildQuery(box orb.Bound, q Query, timeout time.Duration) (string, error) {
	bbox := fmt.Sprintf("(%s,%s,%s,%s)", coord(box.Min.Lat()), coord(box.Min.Lon()), coord(box.Max.Lat()), coord(box.Max.Lon()))

	var stmts []string
	switch {
	case q.OSMID != "":
		if !osmIDPattern.MatchString(q.OSMID) {
			return "", fmt.Errorf("invalid osm id %q", q.OSMID)
		}
		stmts = append(stmts, fmt.Sprintf("%s(%s);", osmElementNames[q.OSMID[0]], q.OSMID[1:]))
	case q.Network:
		key := networkKey(q.Layer)
		filter := fmt.Sprintf(`["%s"]`, key)
		if q.CustomFilter != "" {
			filter += strings.TrimSpace(q.CustomFilter)
		} else if len(q.Classes) > 0 {
			filter = fmt.Sprintf(`["%s"~"%s"]`, key, alternation(q.Classes))
		}
		stmts = append(stmts, fmt.Sprintf("way%s%s;", filter, bbox))
	case len(q.Tags) > 0:
		for _, key := range q.Tags.Keys() {
			v := q.Tags[key]
			switch {
			case v.Removed:
				continue
			case v.Any:
				stmts = append(stmts, fmt.Sprintf(`nwr["%s"]%s;`, escape(key), bbox))
			case len(v.Values) == 1:
				stmts = append(stmts, fmt.Sprintf(`nwr["%s"="%s"]%s;`, escape(key), escape(v.Values[0]), bbox))
			default:
				stmts = append(stmts, fmt.Sprintf(`nwr["%s"~"%s"]%s;`, escape(key), alternation(v.Values), bbox))
			}
		}
		if q.CustomFilter != "" {
			stmts = append(stmts, fmt.Sprintf("nwr%s%s;", strings.TrimSpace(q.CustomFilter), bbox))
		}
	case q.CustomFilter != "":
		stmts = append(stmts, fmt.Sprintf("nwr%s%s;", strings.TrimSpace(q.CustomFilter), bbox))
	}
	if len(stmts) == 0 {
		return "", fmt.Errorf("layer %q has no tags, osmid or custom_filter", q.Layer)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[out:json][timeout:%d];\n(\n", int(timeout.Seconds()))
	for _, s := range stmts {
		sb.WriteString("  ")
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	sb.WriteString(");\nout geom;")
	return sb.String(), nil
}

func alternation(values []string) string {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	quoted := make([]string, len(sorted))
	for i, v := range sorted {
		quoted[i] = escape(regexp.QuoteMeta(v))
	}
	return "^(" + strings.Join(quoted, "|") + ")$"
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func coord(f float64) string {
	return strconv.FormatFloat(f, 'f', 7, 64)
}
