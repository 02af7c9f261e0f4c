package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/prettymaps-go/prettymaps/internal/config"
	"github.com/prettymaps-go/prettymaps/internal/env"
	"github.com/prettymaps-go/prettymaps/internal/fetch"
	"github.com/prettymaps-go/prettymaps/internal/preset"
)

func parseInlineVarsAndFiles(cmd *cobra.Command) (env.Vars, []string, error) {
	var envCfg varsEnv
	if err := parseEnv(&envCfg); err != nil {
		return nil, nil, err
	}

	raw := cmd.Flag("vars").Value.String()
	if !cmd.Flags().Changed("vars") && envPresent("PRETTYMAPS_VARS") {
		raw = envCfg.Vars
	}
	inlineVars, err := env.ParseInlineVars(raw)
	if err != nil {
		return nil, nil, err
	}

	varFile := cmd.Flag("var-file").Value.String()
	if !cmd.Flags().Changed("var-file") && envPresent("PRETTYMAPS_VAR_FILE") {
		varFile = envCfg.VarFile
	}
	var varFiles []string
	if varFile != "" {
		varFiles = append(varFiles, varFile)
	}
	return inlineVars, varFiles, nil
}

// loadToolConfigFromCmd loads prettymaps.yaml (or the defaults when there is none) and
// applies the --preset-dir flag and PRETTYMAPS_* overrides.
func loadToolConfigFromCmd(opts *Options, cmd *cobra.Command) (*config.ToolConfig, error) {
	logger := LoggerFromContext(cmd.Context())

	inlineVars, varFiles, err := parseInlineVarsAndFiles(cmd)
	if err != nil {
		return nil, err
	}

	path := opts.ConfigPath
	if path == "" {
		if found, ok := config.Find(); ok {
			path = found
		}
	}

	cfg := config.Default()
	if path != "" {
		cfg, _, err = config.Load(path, config.LoadOptions{UserVars: inlineVars, VarFiles: varFiles})
		if err != nil {
			return nil, err
		}
		logger.Debug("loaded config", "path", path)
	}
	if opts.PresetDir != "" {
		cfg.PresetDir = opts.PresetDir
	}
	if err := applyToolEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openStore opens the preset directory. The bundled presets are installed only when the
// directory does not exist yet; "preset init" restores them later on.
func openStore(cfg *config.ToolConfig, logger *slog.Logger) (*preset.Store, error) {
	store, err := preset.NewStore(cfg.PresetDir, logger)
	if err != nil {
		return nil, err
	}
	ok, err := store.Initialized()
	if err != nil || ok {
		return store, err
	}
	installed, err := store.Seed(preset.BuiltinFS())
	if err != nil {
		return nil, err
	}
	if len(installed) > 0 {
		logger.Info("installed bundled presets", "dir", store.Dir(), "presets", installed)
	}
	return store, nil
}

// openCache opens the response cache, or returns nil when it is disabled.
func openCache(cfg *config.ToolConfig) (*fetch.Cache, error) {
	if !cfg.Fetch.Cache.IsEnabled() || cfg.Fetch.Cache.Path == "" {
		return nil, nil
	}
	ttl, err := cfg.Fetch.Cache.TTLDuration()
	if err != nil {
		return nil, err
	}
	return fetch.OpenCache(cfg.Fetch.Cache.Path, ttl)
}

// clients bundles the OSM service clients and the cache they share.
type clients struct {
	overpass  *fetch.Overpass
	nominatim *fetch.Nominatim
	cache     *fetch.Cache
}

func (c *clients) Close() {
	if c.cache != nil {
		_ = c.cache.Close()
	}
}

// newClients builds the Overpass and Nominatim clients. A cache that cannot be opened is
// skipped with a warning.
func newClients(cfg *config.ToolConfig, logger *slog.Logger) (*clients, error) {
	timeout, err := cfg.Fetch.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	cache, err := openCache(cfg)
	if err != nil {
		logger.Warn("response cache disabled", "path", cfg.Fetch.Cache.Path, "error", err)
		cache = nil
	}

	base := fetch.Options{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   timeout,
		Cache:     cache,
		Logger:    logger,
	}
	overpassOpts := base
	overpassOpts.BaseURL = cfg.Fetch.OverpassURL
	overpass, err := fetch.NewOverpass(overpassOpts)
	if err != nil {
		return nil, fmt.Errorf("overpass client: %w", err)
	}
	nominatimOpts := base
	nominatimOpts.BaseURL = cfg.Fetch.NominatimURL
	nominatim, err := fetch.NewNominatim(nominatimOpts)
	if err != nil {
		return nil, fmt.Errorf("nominatim client: %w", err)
	}
	return &clients{overpass: overpass, nominatim: nominatim, cache: cache}, nil
}
