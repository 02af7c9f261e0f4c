package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newCacheCommand groups the response cache subcommands.
func newCacheCommand(opts *Options) *cobra.Command {
	return newGroupCommand("cache", "Inspect and prune the OSM response cache",
		newCacheInfoCommand(opts),
		newCachePurgeCommand(opts),
	)
}

func newCacheInfoCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the cache location and size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadToolConfigFromCmd(opts, cmd)
			if err != nil {
				return err
			}
			cache, err := openCache(cfg)
			if err != nil {
				return err
			}
			if cache == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "cache disabled")
				return nil
			}
			defer cache.Close()

			entries, size, err := cache.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return writeTable(cmd.OutOrStdout(), []string{"PATH", "TTL", "ENTRIES", "BYTES"}, [][]string{{
				cfg.Fetch.Cache.Path,
				cfg.Fetch.Cache.TTL,
				fmt.Sprint(entries),
				fmt.Sprint(size),
			}})
		},
	}
}

func newCachePurgeCommand(opts *Options) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())
			cfg, err := loadToolConfigFromCmd(opts, cmd)
			if err != nil {
				return err
			}
			cache, err := openCache(cfg)
			if err != nil {
				return err
			}
			if cache == nil {
				logger.Info("cache disabled; nothing to purge")
				return nil
			}
			defer cache.Close()

			purge := cache.Purge
			if all {
				purge = cache.Clear
			}
			n, err := purge(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("purged cache", "path", cfg.Fetch.Cache.Path, "removed", n, "all", all)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Delete every entry, not only expired ones")
	return cmd
}
