package fetch

import (
	"encoding/json"
	"fmt"
	"strings"
)

type overpassResponse struct {
	Remark   string            `json:"remark"`
	Elements []overpassElement `json:"elements"`
}

// accept decodes an interpreter response. Overpass reports query timeouts and memory
// exhaustion as a 200 with a runtime error remark.
func (r *overpassResponse) accept(data []byte) error {
	*r = overpassResponse{}
	if err := json.Unmarshal(data, r); err != nil {
		return fmt.Errorf("decode overpass response: %w", err)
	}
	if strings.Contains(r.Remark, "runtime error") {
		return fmt.Errorf("overpass: %s", r.Remark)
	}
	return nil
}

type overpassElement struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Lat      *float64          `json:"lat"`
	Lon      *float64          `json:"lon"`
	Tags     map[string]string `json:"tags"`
	Geometry []overpassLatLon  `json:"geometry"`
	Members  []overpassMember  `json:"members"`
}

type overpassMember struct {
	Type     string           `json:"type"`
	Ref      int64            `json:"ref"`
	Role     string           `json:"role"`
	Lat      *float64         `json:"lat"`
	Lon      *float64         `json:"lon"`
	Geometry []overpassLatLon `json:"geometry"`
}

type overpassLatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type nominatimPlace struct {
	PlaceID     int64           `json:"place_id"`
	OSMType     string          `json:"osm_type"`
	OSMID       int64           `json:"osm_id"`
	Lat         string          `json:"lat"`
	Lon         string          `json:"lon"`
	DisplayName string          `json:"display_name"`
	BoundingBox []string        `json:"boundingbox"`
	GeoJSON     json.RawMessage `json:"geojson"`
}
