package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/paulmach/orb/geojson"

	"github.com/prettymaps-go/prettymaps/internal/render"
)

// LayerProperty names the feature property that records the layer in a GeoJSON export.
const LayerProperty = "layer"

// SaveImage encodes canvas into path, creating parent directories.
func SaveImage(path string, canvas render.Canvas) error {
	return writeFile(path, canvas.Encode)
}

// SaveGeoJSON writes the layers to path as one FeatureCollection.
func SaveGeoJSON(path string, order []string, layers map[string]*geojson.FeatureCollection) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteGeoJSON(w, order, layers)
	})
}

// WriteGeoJSON merges layers into one FeatureCollection, tagging each feature with its layer
// name. Layers are written in order; layers missing from order follow by name.
func WriteGeoJSON(w io.Writer, order []string, layers map[string]*geojson.FeatureCollection) error {
	names := slices.Clone(order)
	var rest []string
	for name := range layers {
		if !slices.Contains(names, name) {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	names = append(names, rest...)

	out := geojson.NewFeatureCollection()
	for _, name := range names {
		fc := layers[name]
		if fc == nil {
			continue
		}
		for _, f := range fc.Features {
			if f == nil || f.Geometry == nil {
				continue
			}
			nf := geojson.NewFeature(f.Geometry)
			nf.ID = f.ID
			nf.Properties = f.Properties.Clone()
			if nf.Properties == nil {
				nf.Properties = geojson.Properties{}
			}
			nf.Properties[LayerProperty] = name
			out.Append(nf)
		}
	}
	data, err := out.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode geojson: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func writeFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
