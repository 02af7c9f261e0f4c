package render

import (
	"bytes"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/prettymaps-go/prettymaps/internal/compose"
	"github.com/prettymaps-go/prettymaps/internal/geo"
	"github.com/prettymaps-go/prettymaps/internal/params"
)

const config = `
layers:
  perimeter: {}
  water: {tags: {natural: water}}
  building: {tags: {building: true}}
style:
  background: {fc: "#ffffff", zorder: -1}
  perimeter: {fill: false, lw: 0, zorder: 0}
  water: {fc: "#0000ff", lw: 0, zorder: 1}
  building: {fc: "#ff0000", lw: 0, hatch: "|", hatch_c: "#000000", zorder: 2}
`

func square(size float64) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(geo.Square(orb.Point{0, 0}, size, 0)))
	return fc
}

func drawScene(t *testing.T, canvas Canvas, noCredit bool) *compose.Result {
	t.Helper()
	var cfg params.Params
	require.NoError(t, yaml.Unmarshal([]byte(config), &cfg))
	frame, err := compose.NewFrame(geo.NewProjection(orb.Point{}), geo.Square(orb.Point{0, 0}, 100, 0), cfg)
	require.NoError(t, err)
	res, err := compose.Compose(cfg, frame, map[string]compose.Input{
		"perimeter": {Features: square(100)},
		"water":     {Features: square(500)},
		"building":  {Features: square(20)},
	}, canvas, compose.Options{NoCredit: noCredit})
	require.NoError(t, err)
	return res
}

func TestNew(t *testing.T) {
	c, err := New("png", Options{})
	require.NoError(t, err)
	assert.Equal(t, "png", c.Format())

	c, err = New(".SVG", Options{})
	require.NoError(t, err)
	assert.Equal(t, "svg", c.Format())

	_, err = New("pdf", Options{})
	assert.Error(t, err)

	f, err := FormatFromPath("out/map.svg")
	require.NoError(t, err)
	assert.Equal(t, "svg", f)
	_, err = FormatFromPath("map.jpg")
	assert.Error(t, err)

	w, h := Options{Width: 2, DPI: 50}.Pixels()
	assert.Equal(t, 100, w)
	assert.Equal(t, 100, h)
}

func TestViewport(t *testing.T) {
	v := newViewport(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{200, 100}}, 200, 200)
	assert.Equal(t, orb.Point{0, 50}, v.px(orb.Point{0, 100}))
	assert.Equal(t, orb.Point{200, 150}, v.px(orb.Point{200, 0}))
}

func TestDash(t *testing.T) {
	pieces := dash([]orb.Point{{0, 0}, {10, 0}}, []float64{2, 3})
	require.Len(t, pieces, 2)
	assert.Equal(t, []orb.Point{{0, 0}, {2, 0}}, pieces[0])
	assert.Equal(t, []orb.Point{{5, 0}, {7, 0}}, pieces[1])

	solid := dash([]orb.Point{{0, 0}, {10, 0}}, nil)
	assert.Len(t, solid, 1)
}

func TestDashPattern(t *testing.T) {
	assert.InDeltaSlice(t, []float64{7.4, 3.2}, dashPattern(params.Style{LineStyle: params.Ptr("--")}, 2), 1e-9)
	assert.Nil(t, dashPattern(params.Style{Dashes: []float64{0, 0}}, 1))
	assert.Equal(t, []float64{3, 1.5}, dashPattern(params.Style{Dashes: []float64{2, 1}}, 1.5))
	assert.Nil(t, dashPattern(params.Style{LineStyle: params.Ptr("-")}, 1))
}

func TestResolvePaint(t *testing.T) {
	p, err := resolvePaint(params.Style{Alpha: params.Ptr(0.5), LineWidth: params.Ptr(1.0), Hatch: params.Ptr("/")}, "#ff0000", 72)
	require.NoError(t, err)
	assert.True(t, p.hasFill)
	assert.Equal(t, color.NRGBA{R: 255, A: 128}, p.fill)
	assert.Equal(t, p.fill, p.edge, "edge colour falls back to the fill")
	assert.InDelta(t, 1, p.edgeWidth, 1e-9)
	assert.Equal(t, p.edge, p.hatchColor)

	p, err = resolvePaint(params.Style{Fill: params.Ptr(false)}, "#ff0000", 72)
	require.NoError(t, err)
	assert.False(t, p.hasFill)
	assert.Zero(t, p.edgeWidth)
	assert.InDelta(t, DefaultLineWidth, p.lineWidth, 1e-9)

	_, err = resolvePaint(params.Style{}, "nope", 72)
	assert.Error(t, err)
}

func TestPickerIsReproducible(t *testing.T) {
	palette := []string{"#111111", "#222222", "#333333", "#444444"}
	a, b := newPicker(7, "building"), newPicker(7, "building")
	for range 10 {
		assert.Equal(t, a.pick(palette), b.pick(palette))
	}
	assert.Empty(t, a.pick(nil))
}

func TestHatchShapes(t *testing.T) {
	tile := DefaultDPI / hatchDensity
	shapes := hatchShapes("|", orb.Bound{Max: orb.Point{tile, tile}}, DefaultDPI, 1)
	assert.Len(t, shapes, 3)

	dense := hatchShapes("||", orb.Bound{Max: orb.Point{tile, tile}}, DefaultDPI, 1)
	assert.Greater(t, len(dense), len(shapes))

	assert.NotEmpty(t, hatchShapes("o.", orb.Bound{Max: orb.Point{tile, tile}}, DefaultDPI, 1))
}

func TestRasterComposition(t *testing.T) {
	c := NewRaster(Options{Width: 1, DPI: 100})
	res := drawScene(t, c, true)
	assert.Equal(t, []string{"background", "perimeter", "water", "building"}, res.Drawn)

	img := c.Image()
	require.NotNil(t, img)
	assert.Equal(t, 100, img.Bounds().Dx())

	white := color.RGBA{255, 255, 255, 255}
	blue := color.RGBA{0, 0, 255, 255}
	// Outside the perimeter the clipped water leaves the background.
	assert.Equal(t, white, img.RGBAAt(98, 98))
	assert.Equal(t, white, img.RGBAAt(1, 1))
	assert.Equal(t, blue, img.RGBAAt(85, 85))

	// The building is red with black hatch lines.
	reds, darks := 0, 0
	for y := 47; y < 53; y++ {
		for x := 47; x < 53; x++ {
			switch px := img.RGBAAt(x, y); {
			case px.R > 200 && px.G < 50:
				reds++
			case px.R < 100 && px.G < 100 && px.B < 100:
				darks++
			}
		}
	}
	assert.Positive(t, reds)
	assert.Positive(t, darks)

	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf))
	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())
}

func TestRasterCredit(t *testing.T) {
	c := NewRaster(Options{Width: 2, DPI: 100})
	drawScene(t, c, false)
	img := c.Image()

	darks := 0
	for y := 0; y < 30; y++ {
		for x := 0; x < 120; x++ {
			if px := img.RGBAAt(x, y); px.R < 80 && px.G < 80 && px.B < 80 {
				darks++
			}
		}
	}
	assert.Positive(t, darks, "caption text and border in the top-left corner")
}

func TestRasterEncodeBeforeBegin(t *testing.T) {
	assert.Error(t, NewRaster(Options{}).Encode(&bytes.Buffer{}))
	assert.Error(t, NewSVG(Options{}).Encode(&bytes.Buffer{}))
}

func TestSVGComposition(t *testing.T) {
	c := NewSVG(Options{Width: 1, DPI: 100})
	drawScene(t, c, false)

	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf))

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(buf.Bytes()))
	root := doc.SelectElement("svg")
	require.NotNil(t, root)
	assert.Equal(t, "0 0 100 100", root.SelectAttrValue("viewBox", ""))

	require.NotNil(t, root.FindElement("defs/clipPath[@id='perimeter-clip']"))
	require.NotNil(t, root.FindElement("defs/pattern[@id='hatch-building']"))

	building := root.FindElement("g[@id='layer-building']")
	require.NotNil(t, building)
	assert.Equal(t, "url(#perimeter-clip)", building.SelectAttrValue("clip-path", ""))
	paths := building.SelectElements("path")
	require.Len(t, paths, 2, "fill and hatch overlay")
	assert.Equal(t, "#ff0000", paths[0].SelectAttrValue("fill", ""))
	assert.Equal(t, "url(#hatch-building)", paths[1].SelectAttrValue("fill", ""))

	perimeter := root.FindElement("g[@id='layer-perimeter']")
	require.NotNil(t, perimeter)
	assert.Empty(t, perimeter.SelectAttrValue("clip-path", ""))

	var caption []string
	for _, span := range root.FindElements("g[@id='credit']/text/tspan") {
		caption = append(caption, span.Text())
	}
	assert.Equal(t, compose.DefaultCreditText, strings.Join(caption, "\n"))
}

func sideBySide(t *testing.T) compose.Frame {
	t.Helper()
	frame, err := compose.NewMultiFrame(geo.NewProjection(orb.Point{}),
		[]orb.Geometry{geo.Square(orb.Point{-100, 0}, 50, 0), geo.Square(orb.Point{100, 0}, 50, 0)},
		[]params.Params{{}, {}})
	require.NoError(t, err)
	return frame
}

func eastLake() compose.Layer {
	return compose.Layer{
		Name:    "water",
		Shapes:  []orb.Geometry{geo.Square(orb.Point{0, 0}, 500, 0)},
		Style:   params.Style{FaceColor: params.Ptr("#0000ff"), LineWidth: params.Ptr(0.0)},
		Clip:    true,
		Subplot: 1,
		Labels:  []compose.Label{{Text: "Lac", At: orb.Point{100, 0}}},
	}
}

func TestRasterPanelsAndLabels(t *testing.T) {
	c := NewRaster(Options{Width: 1, DPI: 100})
	frame := sideBySide(t)
	require.NoError(t, c.Begin(frame))
	require.NoError(t, c.DrawBackground(frame.Background, params.Style{FaceColor: params.Ptr("#ffffff")}))
	require.NoError(t, c.DrawLayer(eastLake()))

	img := c.Image()
	mid := img.Bounds().Dx() / 2
	westBlue, eastBlue, darks := 0, 0, 0
	for y := 0; y < img.Bounds().Dy(); y++ {
		for x := 0; x < img.Bounds().Dx(); x++ {
			px := img.RGBAAt(x, y)
			switch {
			case px.B > 200 && px.R < 50:
				if x < mid {
					westBlue++
				} else {
					eastBlue++
				}
			case px.R < 80 && px.G < 80 && px.B < 80:
				darks++
			}
		}
	}
	assert.Zero(t, westBlue, "the layer is clipped to its own panel")
	assert.Positive(t, eastBlue)
	assert.Positive(t, darks, "label text")
}

func TestSVGPanelsAndLabels(t *testing.T) {
	c := NewSVG(Options{Width: 1, DPI: 100})
	require.NoError(t, c.Begin(sideBySide(t)))
	require.NoError(t, c.DrawLayer(eastLake()))

	root := c.Document().SelectElement("svg")
	require.NotNil(t, root)
	require.NotNil(t, root.FindElement("defs/clipPath[@id='perimeter-clip']"))
	require.NotNil(t, root.FindElement("defs/clipPath[@id='perimeter-clip-1']"))

	water := root.FindElement("g[@id='layer-1-water']")
	require.NotNil(t, water)
	assert.Equal(t, "url(#perimeter-clip-1)", water.SelectAttrValue("clip-path", ""))
	label := water.FindElement("text[@class='label']")
	require.NotNil(t, label)
	assert.Equal(t, "Lac", label.Text())
	assert.Equal(t, "middle", label.SelectAttrValue("text-anchor", ""))
}
