package cli

import (
	"os"
	"strconv"
	"strings"

	envparse "github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/prettymaps-go/prettymaps/internal/config"
)

// baseEnv defines root CLI defaults sourced from PRETTYMAPS_* env vars.
type baseEnv struct {
	// ConfigPath is the prettymaps.yaml path from PRETTYMAPS_CONFIG.
	ConfigPath string `env:"PRETTYMAPS_CONFIG"`
	// PresetDir is the preset directory from PRETTYMAPS_PRESET_DIR.
	PresetDir string `env:"PRETTYMAPS_PRESET_DIR"`
	// LogLevel is the logging level from PRETTYMAPS_LOG_LEVEL.
	LogLevel string `env:"PRETTYMAPS_LOG_LEVEL"`
}

// varsEnv describes inline vars and var files passed via env.
type varsEnv struct {
	// Vars is a k=v,k2=v2 list from PRETTYMAPS_VARS.
	Vars string `env:"PRETTYMAPS_VARS"`
	// VarFile is a YAML/ENV path from PRETTYMAPS_VAR_FILE.
	VarFile string `env:"PRETTYMAPS_VAR_FILE"`
}

// toolEnv overrides prettymaps.yaml values.
type toolEnv struct {
	// OverpassURL is the Overpass endpoint from PRETTYMAPS_OVERPASS_URL.
	OverpassURL string `env:"PRETTYMAPS_OVERPASS_URL"`
	// NominatimURL is the Nominatim endpoint from PRETTYMAPS_NOMINATIM_URL.
	NominatimURL string `env:"PRETTYMAPS_NOMINATIM_URL"`
	// UserAgent is the HTTP user agent from PRETTYMAPS_USER_AGENT.
	UserAgent string `env:"PRETTYMAPS_USER_AGENT"`
	// Timeout is the request timeout from PRETTYMAPS_FETCH_TIMEOUT.
	Timeout string `env:"PRETTYMAPS_FETCH_TIMEOUT"`
	// Cache toggles the response cache from PRETTYMAPS_CACHE.
	Cache string `env:"PRETTYMAPS_CACHE"`
	// CachePath is the cache database from PRETTYMAPS_CACHE_PATH.
	CachePath string `env:"PRETTYMAPS_CACHE_PATH"`
	// TolerateFetchErrors toggles partial plots from PRETTYMAPS_TOLERATE_FETCH_ERRORS.
	TolerateFetchErrors string `env:"PRETTYMAPS_TOLERATE_FETCH_ERRORS"`
	// Format is the default output format from PRETTYMAPS_FORMAT.
	Format string `env:"PRETTYMAPS_FORMAT"`
}

// plotEnv provides PRETTYMAPS_* values for plot runs.
type plotEnv struct {
	// Preset is the base preset from PRETTYMAPS_PRESET.
	Preset string `env:"PRETTYMAPS_PRESET"`
	// Output is the image path from PRETTYMAPS_OUTPUT.
	Output string `env:"PRETTYMAPS_OUTPUT"`
	// Strict fails partial plots from PRETTYMAPS_STRICT.
	Strict string `env:"PRETTYMAPS_STRICT"`
}

// parseEnv fills target from PRETTYMAPS_* env vars via caarlos0/env.
func parseEnv(target any) error {
	return envparse.Parse(target)
}

// envPresent reports whether a non-empty env var exists.
func envPresent(key string) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		return false
	}
	return strings.TrimSpace(val) != ""
}

// parseEnvBool parses a boolean string and reports if it was present and valid.
func parseEnvBool(value string) (bool, bool) {
	if strings.TrimSpace(value) == "" {
		return false, false
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, false
	}
	return parsed, true
}

func applyBaseEnv(cmd *cobra.Command, opts *Options, e baseEnv) {
	if !cmd.Flags().Changed("config") && envPresent("PRETTYMAPS_CONFIG") {
		opts.ConfigPath = e.ConfigPath
	}
	if !cmd.Flags().Changed("preset-dir") && envPresent("PRETTYMAPS_PRESET_DIR") {
		opts.PresetDir = e.PresetDir
	}
}

// applyToolEnv overlays PRETTYMAPS_* values on the loaded config.
func applyToolEnv(cfg *config.ToolConfig) error {
	var e toolEnv
	if err := parseEnv(&e); err != nil {
		return err
	}
	if envPresent("PRETTYMAPS_OVERPASS_URL") {
		cfg.Fetch.OverpassURL = e.OverpassURL
	}
	if envPresent("PRETTYMAPS_NOMINATIM_URL") {
		cfg.Fetch.NominatimURL = e.NominatimURL
	}
	if envPresent("PRETTYMAPS_USER_AGENT") {
		cfg.Fetch.UserAgent = e.UserAgent
	}
	if envPresent("PRETTYMAPS_FETCH_TIMEOUT") {
		cfg.Fetch.Timeout = e.Timeout
	}
	if v, ok := parseEnvBool(e.Cache); ok {
		cfg.Fetch.Cache.Enabled = &v
	}
	if envPresent("PRETTYMAPS_CACHE_PATH") {
		cfg.Fetch.Cache.Path = e.CachePath
	}
	if v, ok := parseEnvBool(e.TolerateFetchErrors); ok {
		cfg.TolerateFetchErrors = v
	}
	if envPresent("PRETTYMAPS_FORMAT") {
		cfg.Render.Format = e.Format
	}
	return cfg.Validate()
}
