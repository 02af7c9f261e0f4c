package params

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const defaultPresetYAML = `
layers:
  perimeter: {}
  streets:
    width:
      motorway: 5
      primary: 4.5
      residential: 3
  building:
    tags:
      building: true
      landuse: construction
  water:
    tags:
      natural: [water, bay]
style:
  perimeter:
    fill: false
    lw: 0
    zorder: 0
  streets:
    fc: "#2F3737"
    ec: "#475657"
    lw: 0
    zorder: 4
  building:
    palette: ["#433633", "#FF5E5B"]
    ec: "#2F3737"
    lw: 0.5
    zorder: 5
  water:
    fc: "#a8e1e6"
    ec: "#2F3737"
    hatch: "ooo..."
    hatch_c: "#9bc3d4"
    lw: 1
    zorder: 3
circle: false
radius: 1100
`

func mustParse(t *testing.T, doc string) Params {
	t.Helper()
	var p Params
	require.NoError(t, yaml.Unmarshal([]byte(doc), &p))
	return p
}

func TestResolveWaterExample(t *testing.T) {
	base := mustParse(t, defaultPresetYAML)
	over := mustParse(t, `style: {water: {fc: "#000000"}}`)

	got, err := Resolve(base, over)
	require.NoError(t, err)

	water, ok := got.Style.Get("water")
	require.True(t, ok)
	assert.Equal(t, "#000000", *water.FaceColor)
	assert.Equal(t, 3.0, *water.ZOrder)
	assert.Equal(t, "#2F3737", *water.EdgeColor)

	// The base must not be touched by the merge.
	orig, _ := base.Style.Get("water")
	assert.Equal(t, "#a8e1e6", *orig.FaceColor)
}

func TestResolveIsIdempotent(t *testing.T) {
	base := mustParse(t, defaultPresetYAML)
	overrides := []string{
		`{}`,
		`style: {water: {fc: "#000000"}, new: {fc: red, zorder: 9}}`,
		`layers: {building: false, green: {tags: {leisure: park}}}`,
		`layers: {streets: {width: {primary: 9, footway: 1}}}`,
		`layers: {water: {tags: {natural: false, waterway: riverbank}}}`,
		`radius: 500
circle: true`,
	}
	for _, doc := range overrides {
		over := mustParse(t, doc)
		once, err := Resolve(base, over)
		require.NoError(t, err, doc)
		twice, err := Resolve(once, Params{})
		require.NoError(t, err, doc)
		if diff := cmp.Diff(once, twice); diff != "" {
			t.Fatalf("resolve not idempotent for %s (-once +twice):\n%s", doc, diff)
		}
	}
}

func TestResolveLayerMerging(t *testing.T) {
	base := mustParse(t, defaultPresetYAML)
	over := mustParse(t, `
layers:
  building: false
  streets:
    width: {primary: 9, footway: 1}
  water:
    tags: {natural: false, waterway: riverbank}
  green:
    tags: {leisure: park}
`)
	got, err := Resolve(base, over)
	require.NoError(t, err)

	assert.Equal(t, []string{"perimeter", "streets", "water", "green"}, got.Layers.Keys())

	streets, _ := got.Layers.Get("streets")
	assert.Equal(t, map[string]float64{"motorway": 5, "primary": 9, "residential": 3, "footway": 1}, streets.Width.ByClass)

	water, _ := got.Layers.Get("water")
	assert.Equal(t, Tags{"waterway": OneOf("riverbank")}, water.Tags)

	// Styles of excluded layers are kept; they are simply never drawn.
	assert.True(t, got.Style.Has("building"))
}

func TestResolveExcludeHelper(t *testing.T) {
	base := mustParse(t, defaultPresetYAML)
	var over Params
	over.Exclude("water")
	got, err := Resolve(base, over)
	require.NoError(t, err)
	assert.False(t, got.Layers.Has("water"))
	assert.True(t, got.Layers.Has("streets"))
}

func TestResolveTopLevel(t *testing.T) {
	base := mustParse(t, defaultPresetYAML)
	got, err := Resolve(base, Params{Circle: Ptr(true)})
	require.NoError(t, err)
	assert.True(t, *got.Circle)
	assert.Equal(t, 1100.0, *got.Radius)
	assert.Nil(t, got.Dilate)
}

func TestResolveValidation(t *testing.T) {
	base := mustParse(t, defaultPresetYAML)
	cases := map[string]string{
		`style: {water: {fc: "#zzzzzz"}}`:           "style.water.fc",
		`style: {water: {alpha: 2}}`:                "style.water.alpha",
		`style: {water: {lw: -1}}`:                  "style.water.lw",
		`style: {water: {hatch: "?"}}`:              "style.water.hatch",
		`style: {background: {pad: 0}}`:             "style.background.pad",
		`style: {building: {palette: [red, nope]}}`: "style.building.palette",
		`radius: -3`:                                "radius",
		`layers: {streets: {width: -1}}`:            "layers.streets.width",
		`layers: {x: {osmid: "12"}}`:                "layers.x.osmid",
		`layers: {x: {custom_filter: "a;b"}}`:       "layers.x.custom_filter",
	}
	for doc, key := range cases {
		_, err := Resolve(base, mustParse(t, doc))
		require.Error(t, err, doc)
		var cfgErr *ConfigurationError
		require.ErrorAs(t, err, &cfgErr, doc)
		assert.Equal(t, key, cfgErr.Key, doc)
		assert.True(t, IsConfigurationError(err))
	}
}

func TestUnknownKeysRejected(t *testing.T) {
	var p Params
	err := yaml.Unmarshal([]byte(`style: {water: {colour: red}}`), &p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown style key "colour"`)

	err = yaml.Unmarshal([]byte(`layers: {water: {tag: {natural: water}}}`), &p)
	require.Error(t, err)
}

func TestFaceColorListIsPalette(t *testing.T) {
	p := mustParse(t, `style: {building: {fc: ["#111111", "#222222"]}}`)
	s, _ := p.Style.Get("building")
	assert.Nil(t, s.FaceColor)
	assert.Equal(t, []string{"#111111", "#222222"}, s.Palette)
}

func TestYAMLRoundTripKeepsOrder(t *testing.T) {
	p := mustParse(t, defaultPresetYAML)
	out, err := yaml.Marshal(p)
	require.NoError(t, err)

	back := mustParse(t, string(out))
	if diff := cmp.Diff(p, back); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"perimeter", "streets", "building", "water"}, back.Layers.Keys())
}

func TestJSONPresetIsReadable(t *testing.T) {
	p := mustParse(t, `{"layers": {"water": {"tags": {"natural": ["water"]}}, "building": false}, "style": {"water": {"fc": "#a8e1e6", "zorder": 3}}, "circle": null, "radius": 500, "dilate": null}`)
	assert.Equal(t, []string{"water", "building"}, p.Layers.Keys())
	b, _ := p.Layers.Get("building")
	assert.True(t, b.Disabled)
	assert.Nil(t, p.Circle)
	assert.Equal(t, 500.0, *p.Radius)
}

func TestApplyBoundaryDefaults(t *testing.T) {
	p := mustParse(t, `
layers:
  perimeter: {}
  water: {circle: false, tags: {natural: water}}
circle: true
dilate: 100
`)
	p.ApplyBoundaryDefaults()
	per, _ := p.Layers.Get("perimeter")
	assert.True(t, *per.Circle)
	assert.Equal(t, 100.0, *per.Dilate)
	water, _ := p.Layers.Get("water")
	assert.False(t, *water.Circle)
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#a8e1e6")
	require.NoError(t, err)
	assert.Equal(t, uint8(0xa8), c.R)
	assert.Equal(t, uint8(0xff), c.A)

	c, err = ParseColor("#fff8")
	assert.Error(t, err)

	c, err = ParseColor("#00000080")
	require.NoError(t, err)
	assert.Equal(t, uint8(0x80), c.A)

	c, err = ParseColor("SteelBlue")
	require.NoError(t, err)
	assert.Equal(t, uint8(70), c.R)

	c, err = ParseColor("none")
	require.NoError(t, err)
	assert.Equal(t, uint8(0), c.A)
}

func TestWidthFor(t *testing.T) {
	w := ClassWidths(map[string]float64{"primary": 4, "residential": 2})
	v, ok := w.For("trunk", "residential")
	assert.True(t, ok)
	assert.Equal(t, 2.0, v)
	_, ok = w.For("footway")
	assert.False(t, ok)

	v, ok = UniformWidth(1.5).For("anything")
	assert.True(t, ok)
	assert.Equal(t, 1.5, v)

	var nilWidth *Width
	_, ok = nilWidth.For("x")
	assert.False(t, ok)
}

func TestTagsMatches(t *testing.T) {
	tags := Tags{"natural": OneOf("water", "bay"), "building": AnyValue()}
	assert.True(t, tags.Matches(map[string]any{"natural": "bay"}))
	assert.True(t, tags.Matches(map[string]any{"building": "yes"}))
	assert.False(t, tags.Matches(map[string]any{"natural": "wood"}))
	assert.Equal(t, []string{"building", "natural"}, tags.Keys())
}
