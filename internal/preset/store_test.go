package preset

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prettymaps-go/prettymaps/internal/params"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "presets"), nil)
	require.NoError(t, err)
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	def, err := LoadBuiltin(DefaultName)
	require.NoError(t, err)

	require.NoError(t, s.Save("my-preset", def, false))
	got, err := s.Load("my-preset")
	require.NoError(t, err)

	assert.Equal(t, "my-preset", got.Name)
	if diff := cmp.Diff(def.Params, got.Params); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestListAfterSaveAndDelete(t *testing.T) {
	s := newTestStore(t)

	list, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, list)

	p := Preset{Params: params.Params{Radius: params.Ptr(500.0)}}
	require.NoError(t, s.Save("my-preset", p, false))
	require.NoError(t, s.Save("another", p, false))

	list, err = s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "another", list[0].Name)
	assert.Equal(t, "my-preset", list[1].Name)
	assert.Contains(t, list[1].Summary, "radius 500m")

	require.NoError(t, s.Delete("my-preset"))
	list, err = s.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "another", list[0].Name)
}

func TestInitialized(t *testing.T) {
	s := newTestStore(t)
	ok, err := s.Initialized()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save("one", Preset{}, false))
	require.NoError(t, s.Delete("one"))
	ok, err = s.Initialized()
	require.NoError(t, err)
	assert.True(t, ok, "an emptied directory stays initialized")

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	s, err = NewStore(file, nil)
	require.NoError(t, err)
	_, err = s.Initialized()
	assert.Error(t, err)
}

func TestDeleteMissing(t *testing.T) {
	s := newTestStore(t)
	err := s.Delete("nope")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	_, err = s.Load("nope")
	assert.True(t, IsNotFound(err))
}

func TestSaveOverwrite(t *testing.T) {
	s := newTestStore(t)
	first := Preset{Params: params.Params{Radius: params.Ptr(100.0)}}
	second := Preset{Params: params.Params{Radius: params.Ptr(200.0)}}

	require.NoError(t, s.Save("p", first, false))
	err := s.Save("p", second, false)
	require.Error(t, err)
	assert.True(t, IsExists(err))

	require.NoError(t, s.Save("p", second, true))
	got, err := s.Load("p")
	require.NoError(t, err)
	assert.Equal(t, 200.0, *got.Params.Radius)
}

func TestSaveRejectsInvalid(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"", "../evil", ".hidden", "a/b", string(make([]byte, 65))} {
		err := s.Save(name, Preset{}, false)
		require.Error(t, err, name)
		assert.True(t, params.IsConfigurationError(err), name)
	}

	var bad params.Params
	bad.Style.Set("water", params.Style{FaceColor: params.Ptr("#nothex")})
	err := s.Save("bad", Preset{Params: bad}, false)
	require.Error(t, err)
	assert.True(t, params.IsConfigurationError(err))
}

func TestLoadLegacyJSON(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(s.Dir(), 0o755))
	doc := `{"layers": {"perimeter": {}, "water": {"tags": {"natural": ["water", "bay"]}}}, "style": {"water": {"fc": "#a8e1e6", "zorder": 3}}, "circle": null, "radius": 1100, "dilate": null}`
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "old.json"), []byte(doc), 0o644))

	got, err := s.Load("old")
	require.NoError(t, err)
	assert.Equal(t, []string{"perimeter", "water"}, got.Params.Layers.Keys())

	// Re-saving migrates the preset to YAML.
	require.NoError(t, s.Save("old", got, true))
	_, err = os.Stat(filepath.Join(s.Dir(), "old.json"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(s.Dir(), "old.yaml"))
	assert.NoError(t, err)
}

func TestSeed(t *testing.T) {
	s := newTestStore(t)
	installed, err := s.Seed(BuiltinFS())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"default", "macao", "minimal", "tijuca"}, installed)

	installed, err = s.Seed(BuiltinFS())
	require.NoError(t, err)
	assert.Empty(t, installed)

	custom := fstest.MapFS{"mine.yaml": {Data: []byte("radius: 42\n")}}
	installed, err = s.Seed(custom)
	require.NoError(t, err)
	assert.Equal(t, []string{"mine"}, installed)
}

func TestBuiltinPresetsResolve(t *testing.T) {
	for _, name := range []string{"default", "minimal", "macao", "tijuca"} {
		p, err := LoadBuiltin(name)
		require.NoError(t, err, name)
		_, err = params.Resolve(p.Params, params.Params{})
		require.NoError(t, err, name)
		assert.True(t, p.Params.Layers.Has(params.PerimeterLayer), name)
	}

	def, _ := LoadBuiltin(DefaultName)
	water, ok := def.Params.Style.Get("water")
	require.True(t, ok)
	assert.Equal(t, "#a8e1e6", *water.FaceColor)
	assert.Equal(t, 3.0, *water.ZOrder)

	_, err := LoadBuiltin("missing")
	assert.True(t, IsNotFound(err))
}
