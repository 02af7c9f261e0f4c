package engine

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/beevik/etree"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/prettymaps-go/prettymaps/internal/compose"
	"github.com/prettymaps-go/prettymaps/internal/fetch"
	"github.com/prettymaps-go/prettymaps/internal/geo"
	"github.com/prettymaps-go/prettymaps/internal/params"
	"github.com/prettymaps-go/prettymaps/internal/preset"
	"github.com/prettymaps-go/prettymaps/internal/render"
)

var paris = orb.Point{2.3522, 48.8566}

type fakeSource struct {
	layers map[string]*geojson.FeatureCollection
	errs   map[string]error
	calls  map[string]int
}

func (s *fakeSource) Fetch(_ context.Context, b fetch.Boundary, q fetch.Query) (*geojson.FeatureCollection, error) {
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[q.Layer]++
	if b.Perimeter == nil {
		return nil, errors.New("no perimeter")
	}
	if err := s.errs[q.Layer]; err != nil {
		return nil, err
	}
	if fc, ok := s.layers[q.Layer]; ok {
		return fc, nil
	}
	return geojson.NewFeatureCollection(), nil
}

type fakeGeocoder struct {
	point orb.Point
	area  orb.Geometry
}

func (g fakeGeocoder) Geocode(context.Context, string) (orb.Point, error) {
	return g.point, nil
}

func (g fakeGeocoder) Area(_ context.Context, p fetch.Place) (orb.Geometry, error) {
	if p.Kind == fetch.PlacePolygon {
		return p.Area, nil
	}
	if g.area == nil {
		return nil, &fetch.FetchError{Err: errors.New("not an area")}
	}
	return g.area, nil
}

func building() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(geo.Square(paris, 0.0005, 0))
	f.ID = "way/1"
	f.Properties["building"] = "yes"
	fc.Append(f)
	return fc
}

func overrides(t *testing.T, doc string) params.Params {
	t.Helper()
	var p params.Params
	require.NoError(t, yaml.Unmarshal([]byte(doc), &p))
	return p
}

func newEngine(t *testing.T, src *fakeSource, gc fetch.Geocoder) (*Engine, *preset.Store) {
	t.Helper()
	store, err := preset.NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	_, err = store.Seed(preset.BuiltinFS())
	require.NoError(t, err)
	e, err := NewEngine(Options{
		Store:    store,
		Source:   src,
		Geocoder: gc,
		Render:   render.Options{Width: 1, DPI: 50},
	})
	require.NoError(t, err)
	return e, store
}

const buildingOnly = `
layers: {building: {tags: {building: true}}}
style: {building: {fc: "#433633", lw: 0}}
radius: 200
`

func TestNewEngineNeedsSource(t *testing.T) {
	_, err := NewEngine(Options{})
	assert.Error(t, err)
}

func TestPlotAroundCoordinates(t *testing.T) {
	src := &fakeSource{layers: map[string]*geojson.FeatureCollection{"building": building()}}
	e, _ := newEngine(t, src, nil)
	dir := t.TempDir()

	res, err := e.Plot(context.Background(), PlotRequest{
		Query:     "48.8566, 2.3522",
		NoPreset:  true,
		Overrides: overrides(t, buildingOnly),
		Output:    filepath.Join(dir, "out", "map.png"),
		GeoJSON:   filepath.Join(dir, "layers.geojson"),
	})
	require.NoError(t, err)
	require.NoError(t, res.Err())

	assert.Equal(t, []string{"building"}, res.Composition.Drawn)
	assert.Equal(t, 1, src.calls["building"])
	assert.True(t, geo.Contains(res.Perimeter, paris))
	assert.Equal(t, "png", res.Canvas.Format())

	data, err := os.ReadFile(filepath.Join(dir, "out", "map.png"))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 50, img.Bounds().Dx())

	data, err = os.ReadFile(filepath.Join(dir, "layers.geojson"))
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "building", fc.Features[0].Properties[LayerProperty])
	assert.Equal(t, "yes", fc.Features[0].Properties["building"])
}

func TestPlotCoordinatesNeedRadius(t *testing.T) {
	e, _ := newEngine(t, &fakeSource{}, nil)
	_, err := e.Plot(context.Background(), PlotRequest{
		Query:     "48.8566,2.3522",
		NoPreset:  true,
		Overrides: overrides(t, `layers: {building: {tags: {building: true}}}`),
	})
	require.Error(t, err)
	var ce *params.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "radius", ce.Key)
}

func TestPlotAddressArea(t *testing.T) {
	area := geo.Square(paris, 0.01, 0)
	e, _ := newEngine(t, &fakeSource{}, fakeGeocoder{area: area})

	req := PlotRequest{
		Query:     "Paris",
		NoPreset:  true,
		Overrides: overrides(t, `layers: {building: {tags: {building: true}}}`),
	}
	res, err := e.Plot(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, orb.Geometry(area), res.Perimeter)

	req.Overrides.Dilate = params.Ptr(100.0)
	res, err = e.Plot(context.Background(), req)
	require.NoError(t, err)
	assert.Greater(t, res.Perimeter.Bound().Max.Lon(), area.Bound().Max.Lon())

	e, _ = newEngine(t, &fakeSource{}, nil)
	_, err = e.Plot(context.Background(), req)
	assert.Error(t, err, "addresses need a geocoder")
}

func TestPlotPresets(t *testing.T) {
	e, store := newEngine(t, &fakeSource{}, nil)
	ctx := context.Background()
	req := PlotRequest{
		Query:      "48.8566,2.3522",
		Overrides:  overrides(t, `style: {water: {fc: "#000000"}}`),
		SavePreset: "mine",
	}
	res, err := e.Plot(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Params.Layers.Has("building"), "default preset layers are kept")

	saved, err := store.Load("mine")
	require.NoError(t, err)
	water, ok := saved.Params.Style.Get("water")
	require.True(t, ok)
	assert.Equal(t, "#000000", *water.FaceColor)

	_, err = e.Plot(ctx, req)
	assert.True(t, preset.IsExists(err))

	_, err = e.Plot(ctx, PlotRequest{
		Query:        "48.8566,2.3522",
		Overrides:    overrides(t, `radius: 300`),
		UpdatePreset: "mine",
	})
	require.NoError(t, err)
	saved, err = store.Load("mine")
	require.NoError(t, err)
	assert.InDelta(t, 300, *saved.Params.Radius, 1e-9)
	water, _ = saved.Params.Style.Get("water")
	assert.Equal(t, "#000000", *water.FaceColor, "update keeps earlier overrides")

	_, err = e.Plot(ctx, PlotRequest{Query: "48.8566,2.3522", Preset: "missing"})
	assert.True(t, preset.IsNotFound(err))
}

func TestPlotFetchFailures(t *testing.T) {
	src := &fakeSource{
		layers: map[string]*geojson.FeatureCollection{"building": building()},
		errs:   map[string]error{"water": errors.New("timeout")},
	}
	e, _ := newEngine(t, src, nil)
	req := PlotRequest{
		Query:    "48.8566,2.3522",
		NoPreset: true,
		Overrides: overrides(t, `
layers: {building: {tags: {building: true}}, water: {tags: {natural: water}}}
radius: 200
`),
	}

	_, err := e.Plot(context.Background(), req)
	require.Error(t, err)
	var fe *fetch.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "water", fe.Layer)

	req.TolerateFetchErrors = true
	res, err := e.Plot(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, res.Composition.Drawn, "building")
	assert.True(t, compose.IsPartialError(res.Err()))
}

func TestPlotBackupReusesLayers(t *testing.T) {
	src := &fakeSource{layers: map[string]*geojson.FeatureCollection{"building": building()}}
	e, _ := newEngine(t, src, nil)
	ctx := context.Background()

	first, err := e.Plot(ctx, PlotRequest{Query: "48.8566,2.3522", NoPreset: true, Overrides: overrides(t, buildingOnly)})
	require.NoError(t, err)

	more := overrides(t, buildingOnly)
	more.Layers.Set("water", params.Layer{Tags: params.Tags{"natural": params.OneOf("water")}})
	second, err := e.Plot(ctx, PlotRequest{NoPreset: true, Overrides: more, Backup: first})
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls["building"])
	assert.Equal(t, 1, src.calls["water"])
	assert.Equal(t, first.Perimeter, second.Perimeter)
}

func TestPlotTransform(t *testing.T) {
	src := &fakeSource{layers: map[string]*geojson.FeatureCollection{"building": building()}}
	e, _ := newEngine(t, src, nil)

	res, err := e.Plot(context.Background(), PlotRequest{
		Query:     "48.8566,2.3522",
		NoPreset:  true,
		Overrides: overrides(t, buildingOnly),
		Transform: geo.Transform{X: 100},
	})
	require.NoError(t, err)
	b := res.Composition.Layers["building"].Features[0].Geometry.Bound()
	assert.InDelta(t, 100, b.Center().X(), 0.01)

	// Fetched layers stay in lon/lat.
	assert.Equal(t, building().Features[0].Geometry, res.Fetched["building"].Features[0].Geometry)
}

func TestPlotPostprocess(t *testing.T) {
	src := &fakeSource{layers: map[string]*geojson.FeatureCollection{"building": building()}}
	e, _ := newEngine(t, src, nil)

	res, err := e.Plot(context.Background(), PlotRequest{
		Query:     "48.8566,2.3522",
		NoPreset:  true,
		Overrides: overrides(t, buildingOnly),
		Postprocess: func(layers map[string]*geojson.FeatureCollection) error {
			layers["building"] = geojson.NewFeatureCollection()
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"building"}, res.Composition.Skipped)
}

func TestWriteGeoJSONOrder(t *testing.T) {
	a := geojson.NewFeatureCollection()
	a.Append(geojson.NewFeature(orb.Point{1, 1}))
	b := geojson.NewFeatureCollection()
	b.Append(geojson.NewFeature(orb.Point{2, 2}))
	c := geojson.NewFeatureCollection()
	c.Append(geojson.NewFeature(orb.Point{3, 3}))

	var buf bytes.Buffer
	require.NoError(t, WriteGeoJSON(&buf, []string{"b"}, map[string]*geojson.FeatureCollection{"a": a, "b": b, "c": c}))
	fc, err := geojson.UnmarshalFeatureCollection(buf.Bytes())
	require.NoError(t, err)
	var got []any
	for _, f := range fc.Features {
		got = append(got, f.Properties[LayerProperty])
	}
	assert.Equal(t, []any{"b", "a", "c"}, got)
}

func TestMultiplot(t *testing.T) {
	src := &fakeSource{layers: map[string]*geojson.FeatureCollection{"building": building()}}
	e, _ := newEngine(t, src, nil)
	dir := t.TempDir()
	svg := filepath.Join(dir, "multi.svg")

	res, err := e.Multiplot(context.Background(), MultiplotRequest{
		Subplots: []PlotRequest{
			{Query: "48.8566,2.3522", NoPreset: true, Overrides: overrides(t, buildingOnly)},
			{Query: "48.8566,2.3622", NoPreset: true, Overrides: overrides(t, buildingOnly), Transform: geo.Transform{Y: 500}},
		},
		Output:  svg,
		GeoJSON: filepath.Join(dir, "multi.geojson"),
	})
	require.NoError(t, err)
	require.NoError(t, res.Err())
	require.Len(t, res.Subplots, 2)
	assert.Equal(t, 2, src.calls["building"])

	panels := res.Frame.Panels()
	require.Len(t, panels, 2)
	west, east := panels[0].Perimeter.Bound().Center(), panels[1].Perimeter.Bound().Center()
	assert.Less(t, west.X(), 0.0, "places keep their relative position")
	assert.Greater(t, east.X(), 0.0)
	assert.InDelta(t, 500, east.Y()-west.Y(), 1)
	for _, p := range panels {
		assert.True(t, res.Frame.Bound.Contains(p.Perimeter.Bound().Center()))
	}
	for _, sp := range res.Subplots {
		assert.Equal(t, []string{"building"}, sp.Composition.Drawn)
		assert.Same(t, res.Subplots[0].Canvas, sp.Canvas)
	}

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromFile(svg))
	assert.NotNil(t, doc.FindElement("svg/g[@id='layer-building']"))
	assert.NotNil(t, doc.FindElement("svg/g[@id='layer-1-building']"))
	assert.NotNil(t, doc.FindElement("svg/defs/clipPath[@id='perimeter-clip-1']"))
	assert.Len(t, doc.FindElements("svg/g[@id='credit']"), 1)

	data, err := os.ReadFile(filepath.Join(dir, "multi.geojson"))
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	assert.Len(t, fc.Features, 2)
}

func TestMultiplotFailures(t *testing.T) {
	e, _ := newEngine(t, &fakeSource{errs: map[string]error{"water": errors.New("timeout")}}, nil)
	_, err := e.Multiplot(context.Background(), MultiplotRequest{})
	assert.Error(t, err)

	layers := `
layers: {building: {tags: {building: true}}, water: {tags: {natural: water}}}
radius: 200
`
	req := MultiplotRequest{Subplots: []PlotRequest{
		{Query: "48.8566,2.3522", NoPreset: true, Overrides: overrides(t, layers)},
		{Query: "48.8566,2.3622", NoPreset: true, Overrides: overrides(t, buildingOnly)},
	}}
	_, err = e.Multiplot(context.Background(), req)
	assert.True(t, fetch.IsFetchError(err))

	req.TolerateFetchErrors = true
	res, err := e.Multiplot(context.Background(), req)
	require.NoError(t, err)
	require.Error(t, res.Err())
	assert.ErrorContains(t, res.Err(), "subplot 0")
	assert.NoError(t, res.Subplots[1].Err())
	assert.False(t, req.Subplots[0].TolerateFetchErrors, "the caller's subplots are left alone")
}
