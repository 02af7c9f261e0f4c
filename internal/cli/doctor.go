package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prettymaps-go/prettymaps/internal/config"
	"github.com/prettymaps-go/prettymaps/internal/fetch"
)

// newDoctorCommand creates the "doctor" subcommand that checks the local setup.
func newDoctorCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the config file, preset directory and response cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			cfg, err := loadToolConfigFromCmd(opts, cmd)
			if err != nil {
				logger.Error("config check failed", "error", err)
				return err
			}
			logger.Info("config check ok")

			if err := runDoctorChecks(cmd.Context(), logger, cfg); err != nil {
				return err
			}
			logger.Info("doctor checks completed successfully")
			return nil
		},
	}
}

func runDoctorChecks(ctx context.Context, logger *slog.Logger, cfg *config.ToolConfig) error {
	var fatalErrs []error

	endpoints := []struct{ name, url string }{
		{"overpass", cfg.Fetch.OverpassURL},
		{"nominatim", cfg.Fetch.NominatimURL},
	}
	for _, ep := range endpoints {
		name, endpoint := ep.name, ep.url
		if strings.TrimSpace(endpoint) == "" {
			logger.Info("endpoint check ok", "service", name, "url", "default")
			continue
		}
		u, err := url.Parse(endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			err = fmt.Errorf("%s endpoint %q is not an http(s) URL", name, endpoint)
			logger.Error("endpoint check failed", "service", name, "error", err)
			fatalErrs = append(fatalErrs, err)
			continue
		}
		logger.Info("endpoint check ok", "service", name, "url", endpoint)
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("preset directory check failed", "dir", cfg.PresetDir, "error", err)
		fatalErrs = append(fatalErrs, err)
	} else {
		list, err := store.List()
		if err != nil {
			logger.Error("preset directory check failed", "dir", store.Dir(), "error", err)
			fatalErrs = append(fatalErrs, err)
		}
		for _, s := range list {
			if strings.HasPrefix(s.Summary, "unreadable") {
				err := fmt.Errorf("preset %q is %s", s.Name, s.Summary)
				logger.Error("preset check failed", "name", s.Name, "error", err)
				fatalErrs = append(fatalErrs, err)
			}
		}
		logger.Info("preset directory check ok", "dir", store.Dir(), "presets", len(list))
	}

	if cfg.Fetch.UserAgent == "" {
		logger.Warn("no userAgent configured; public OSM services ask for one that identifies you", "default", fetch.DefaultUserAgent)
	}

	cache, err := openCache(cfg)
	switch {
	case err != nil:
		logger.Error("cache check failed", "path", cfg.Fetch.Cache.Path, "error", err)
		fatalErrs = append(fatalErrs, err)
	case cache == nil:
		logger.Warn("response cache disabled; every plot queries Overpass again")
	default:
		entries, _, err := cache.Stats(ctx)
		_ = cache.Close()
		if err != nil {
			logger.Error("cache check failed", "path", cfg.Fetch.Cache.Path, "error", err)
			fatalErrs = append(fatalErrs, err)
		} else {
			logger.Info("cache check ok", "path", cfg.Fetch.Cache.Path, "entries", entries)
		}
	}

	if len(fatalErrs) > 0 {
		return fmt.Errorf("doctor found %d fatal issue(s); see log for details", len(fatalErrs))
	}
	return nil
}
