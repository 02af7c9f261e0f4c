// Package env loads and merges the variables exposed to prettymaps.yaml templates.
package env

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Vars is a flat string-to-string variable set.
type Vars map[string]string

// FromOS builds Vars from the current process environment.
func FromOS() Vars {
	out := make(Vars)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		out[key] = value
	}
	return out
}

// Merge merges several Vars into one, later sets overriding earlier keys.
func Merge(sets ...Vars) Vars {
	out := make(Vars)
	for _, s := range sets {
		for k, v := range s {
			out[k] = v
		}
	}
	return out
}

// LoadEnvFile loads a single .env-style file.
func LoadEnvFile(path string) (Vars, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	parsed, err := godotenv.Parse(f)
	if err != nil {
		return nil, err
	}
	return Vars(parsed), nil
}

// LoadEnvFiles loads several .env-style files relative to baseDir and merges them in order.
// Missing optional files (prefixed with "?") are skipped.
func LoadEnvFiles(baseDir string, files []string) (Vars, error) {
	result := make(Vars)
	for _, name := range files {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		optional := strings.HasPrefix(name, "?")
		name = strings.TrimPrefix(name, "?")

		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, name)
		}
		vars, err := LoadEnvFile(path)
		if err != nil {
			if optional && os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("load env file %q: %w", path, err)
		}
		result = Merge(result, vars)
	}
	return result, nil
}

// ParseInlineVars parses a comma-separated k=v list (e.g. "CITY=Porto,RADIUS=900").
func ParseInlineVars(s string) (Vars, error) {
	out := make(Vars)
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid inline var %q, expected key=value", part)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("empty key in inline var %q", part)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}

// LoadVarFile loads a var-file. YAML mappings are read with yaml.v3; anything that is not a
// flat mapping falls back to .env syntax.
func LoadVarFile(path string) (Vars, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err == nil && doc != nil {
		out := make(Vars, len(doc))
		for k, v := range doc {
			switch val := v.(type) {
			case nil:
				out[k] = ""
			case map[string]any, []any:
				return nil, fmt.Errorf("var-file %q: key %q must be a scalar", path, k)
			default:
				out[k] = fmt.Sprint(val)
			}
		}
		return out, nil
	}

	parsed, err := godotenv.Unmarshal(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse var-file %q: %w", path, err)
	}
	return Vars(parsed), nil
}
