package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInlineVars(t *testing.T) {
	vars, err := ParseInlineVars(" CITY=Porto Alegre , RADIUS=900,,")
	require.NoError(t, err)
	assert.Equal(t, Vars{"CITY": "Porto Alegre", "RADIUS": "900"}, vars)

	_, err = ParseInlineVars("novalue")
	assert.Error(t, err)

	_, err = ParseInlineVars("=x")
	assert.Error(t, err)
}

func TestMergeLaterWins(t *testing.T) {
	got := Merge(Vars{"A": "1", "B": "1"}, nil, Vars{"B": "2"})
	assert.Equal(t, Vars{"A": "1", "B": "2"}, got)
}

func TestLoadEnvFilesOptional(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("OVERPASS=http://local\n# comment\nUA=test\n"), 0o644))

	vars, err := LoadEnvFiles(dir, []string{".env", "?missing.env"})
	require.NoError(t, err)
	assert.Equal(t, "http://local", vars["OVERPASS"])
	assert.Equal(t, "test", vars["UA"])

	_, err = LoadEnvFiles(dir, []string{"missing.env"})
	assert.Error(t, err)
}

func TestLoadVarFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "vars.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("city: Lisbon\nradius: 1200\n"), 0o644))
	vars, err := LoadVarFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, Vars{"city": "Lisbon", "radius": "1200"}, vars)

	envPath := filepath.Join(dir, "vars.env")
	require.NoError(t, os.WriteFile(envPath, []byte("CITY=Lisbon\nRADIUS=1200\n"), 0o644))
	vars, err = LoadVarFile(envPath)
	require.NoError(t, err)
	assert.Equal(t, Vars{"CITY": "Lisbon", "RADIUS": "1200"}, vars)
}
