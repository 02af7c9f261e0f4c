// Package config contains the loader and strongly typed model for prettymaps.yaml.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/prettymaps-go/prettymaps/internal/env"
)

// DefaultFileName is the tool configuration looked up when no path is given.
const DefaultFileName = "prettymaps.yaml"

// ToolConfig represents prettymaps.yaml after template rendering.
type ToolConfig struct {
	// PresetDir is the directory holding user presets. Relative paths are resolved against
	// the config file directory.
	PresetDir string `yaml:"presetDir,omitempty"`
	// EnvFiles lists .env files to load before rendering; a "?" prefix marks a file optional.
	EnvFiles []string `yaml:"envFiles,omitempty"`
	// Fetch configures the OpenStreetMap services.
	Fetch FetchConfig `yaml:"fetch,omitempty"`
	// Render sizes the output.
	Render RenderConfig `yaml:"render,omitempty"`
	// TolerateFetchErrors draws the layers that could be fetched instead of failing.
	TolerateFetchErrors bool `yaml:"tolerateFetchErrors,omitempty"`
}

// FetchConfig describes the Overpass and Nominatim endpoints.
type FetchConfig struct {
	OverpassURL  string `yaml:"overpassURL,omitempty"`
	NominatimURL string `yaml:"nominatimURL,omitempty"`
	UserAgent    string `yaml:"userAgent,omitempty"`
	// Timeout bounds each request (e.g. "3m").
	Timeout string      `yaml:"timeout,omitempty"`
	Cache   CacheConfig `yaml:"cache,omitempty"`
}

// CacheConfig describes the SQLite response cache.
type CacheConfig struct {
	// Enabled defaults to true.
	Enabled *bool  `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
	// TTL expires entries (e.g. "168h"); empty keeps them forever.
	TTL string `yaml:"ttl,omitempty"`
}

// RenderConfig holds canvas defaults.
type RenderConfig struct {
	// Size is the figure width and height in inches.
	Size float64 `yaml:"size,omitempty"`
	DPI  float64 `yaml:"dpi,omitempty"`
	Seed uint64  `yaml:"seed,omitempty"`
	// Format is "png" or "svg".
	Format string `yaml:"format,omitempty"`
}

// LoadOptions describes inputs for loading prettymaps.yaml.
type LoadOptions struct {
	// UserVars are inline variables from --vars.
	UserVars env.Vars
	// VarFiles are additional YAML or .env variable files.
	VarFiles []string
}

// TemplateContext is the data exposed to prettymaps.yaml templates.
type TemplateContext struct {
	// ConfigDir is the directory of the config file.
	ConfigDir string
	// Home is the user home directory, empty when unknown.
	Home string
	// Now is the render time in UTC.
	Now time.Time
	// UserVars are inline --vars values.
	UserVars env.Vars
	// EnvMap merges the OS environment, env files, var files and inline vars.
	EnvMap env.Vars
}

type rawHeader struct {
	EnvFiles []string `yaml:"envFiles,omitempty"`
}

// IsEnabled reports whether the response cache is on.
func (c CacheConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// TimeoutDuration parses Timeout; empty means zero.
func (f FetchConfig) TimeoutDuration() (time.Duration, error) {
	return parseDuration("fetch.timeout", f.Timeout)
}

// TTLDuration parses the cache TTL; empty means zero.
func (c CacheConfig) TTLDuration() (time.Duration, error) {
	return parseDuration("fetch.cache.ttl", c.TTL)
}

func parseDuration(key, value string) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", key, value)
	}
	return d, nil
}

// Default returns the configuration used when no file exists: presets and the cache live
// under the user config and cache directories.
func Default() *ToolConfig {
	cfg := &ToolConfig{}
	if dir, err := os.UserConfigDir(); err == nil {
		cfg.PresetDir = filepath.Join(dir, "prettymaps", "presets")
	} else {
		cfg.PresetDir = filepath.Join(".prettymaps", "presets")
	}
	if dir, err := os.UserCacheDir(); err == nil {
		cfg.Fetch.Cache.Path = filepath.Join(dir, "prettymaps", "cache.db")
	} else {
		cfg.Fetch.Cache.Path = filepath.Join(".prettymaps", "cache.db")
	}
	cfg.Fetch.Cache.TTL = "168h"
	return cfg
}

// Find returns the config file to use: ./prettymaps.yaml, then prettymaps.yaml in the
// user config directory. ok is false when neither exists.
func Find() (path string, ok bool) {
	candidates := []string{DefaultFileName}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "prettymaps", DefaultFileName))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}

// LoadAndRender reads prettymaps.yaml, merges env sources and renders it as a template.
func LoadAndRender(path string, opts LoadOptions) ([]byte, TemplateContext, error) {
	var zeroCtx TemplateContext

	if path == "" {
		return nil, zeroCtx, fmt.Errorf("config path is empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, zeroCtx, fmt.Errorf("resolve config path: %w", err)
	}

	rawBytes, err := os.ReadFile(absPath)
	if err != nil {
		return nil, zeroCtx, fmt.Errorf("read config %q: %w", absPath, err)
	}

	var header rawHeader
	if err := yaml.Unmarshal(rawBytes, &header); err != nil {
		return nil, zeroCtx, fmt.Errorf("parse top-level config fields: %w", err)
	}

	baseDir := filepath.Dir(absPath)
	envFileVars, err := env.LoadEnvFiles(baseDir, header.EnvFiles)
	if err != nil {
		return nil, zeroCtx, err
	}

	varFileVars := make(env.Vars)
	for _, vf := range opts.VarFiles {
		if strings.TrimSpace(vf) == "" {
			continue
		}
		vp, err := env.LoadVarFile(vf)
		if err != nil {
			return nil, zeroCtx, fmt.Errorf("load var-file %q: %w", vf, err)
		}
		varFileVars = env.Merge(varFileVars, vp)
	}

	home, _ := os.UserHomeDir()
	ctx := TemplateContext{
		ConfigDir: baseDir,
		Home:      home,
		Now:       time.Now().UTC(),
		UserVars:  opts.UserVars,
		EnvMap:    env.Merge(env.FromOS(), envFileVars, varFileVars, opts.UserVars),
	}

	rendered, err := RenderTemplate(DefaultFileName, rawBytes, ctx)
	if err != nil {
		return nil, zeroCtx, err
	}
	return rendered, ctx, nil
}

// Load loads, templates and parses prettymaps.yaml over Default. Relative paths in the
// file are resolved against its directory.
func Load(path string, opts LoadOptions) (*ToolConfig, TemplateContext, error) {
	rendered, ctx, err := LoadAndRender(path, opts)
	if err != nil {
		return nil, TemplateContext{}, err
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(rendered))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, TemplateContext{}, fmt.Errorf("parse rendered %s: %w", filepath.Base(path), err)
	}

	cfg.PresetDir = resolvePath(ctx.ConfigDir, cfg.PresetDir)
	cfg.Fetch.Cache.Path = resolvePath(ctx.ConfigDir, cfg.Fetch.Cache.Path)
	if err := cfg.Validate(); err != nil {
		return nil, TemplateContext{}, err
	}
	return cfg, ctx, nil
}

// Validate checks durations and the output format.
func (c *ToolConfig) Validate() error {
	if _, err := c.Fetch.TimeoutDuration(); err != nil {
		return err
	}
	if _, err := c.Fetch.Cache.TTLDuration(); err != nil {
		return err
	}
	switch strings.ToLower(c.Render.Format) {
	case "", "png", "svg":
	default:
		return fmt.Errorf("invalid render.format %q: expected png or svg", c.Render.Format)
	}
	if c.Render.Size < 0 || c.Render.DPI < 0 {
		return fmt.Errorf("render.size and render.dpi must not be negative")
	}
	return nil
}

func resolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// RenderTemplate renders arbitrary YAML or text content using the template context and helpers.
func RenderTemplate(name string, raw []byte, ctx TemplateContext) ([]byte, error) {
	tmpl, err := template.New(name).Funcs(buildFuncMap(ctx)).Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template %q: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return nil, fmt.Errorf("execute template %q: %w", name, err)
	}
	return buf.Bytes(), nil
}

// buildFuncMap constructs the template functions available in prettymaps.yaml.
func buildFuncMap(ctx TemplateContext) template.FuncMap {
	return template.FuncMap{
		"default":    funcDef,
		"envOr":      funcEnvOr(ctx.EnvMap),
		"home":       func() string { return ctx.Home },
		"toLower":    strings.ToLower,
		"ternary":    funcTernary,
		"now":        func() time.Time { return ctx.Now },
		"join":       strings.Join,
		"trimPrefix": strings.TrimPrefix,
	}
}

// funcDef returns def when value is empty or whitespace, otherwise value.
func funcDef(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}

// funcEnvOr returns a function that looks up a key in envMap and falls back to def.
func funcEnvOr(envMap env.Vars) func(key, def string) string {
	return func(key, def string) string {
		if v, ok := envMap[key]; ok && v != "" {
			return v
		}
		return def
	}
}

func funcTernary(cond bool, a, b any) any {
	if cond {
		return a
	}
	return b
}
