package cli

import (
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/prettymaps-go/prettymaps/internal/params"
	"github.com/prettymaps-go/prettymaps/internal/preset"
)

// newPresetCommand groups the preset management subcommands.
func newPresetCommand(opts *Options) *cobra.Command {
	return newGroupCommand("preset", "Manage named presets",
		newPresetListCommand(opts),
		newPresetShowCommand(opts),
		newPresetSaveCommand(opts),
		newPresetDeleteCommand(opts),
		newPresetInitCommand(opts),
	)
}

func storeFromCmd(opts *Options, cmd *cobra.Command) (*preset.Store, error) {
	cfg, err := loadToolConfigFromCmd(opts, cmd)
	if err != nil {
		return nil, err
	}
	return openStore(cfg, LoggerFromContext(cmd.Context()))
}

func newPresetListCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List presets with a one-line summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := storeFromCmd(opts, cmd)
			if err != nil {
				return err
			}
			list, err := store.List()
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(list))
			for _, s := range list {
				rows = append(rows, []string{s.Name, s.Summary})
			}
			return writeTable(cmd.OutOrStdout(), []string{"NAME", "SUMMARY"}, rows)
		},
	}
}

func newPresetShowCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print a preset as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storeFromCmd(opts, cmd)
			if err != nil {
				return err
			}
			p, err := store.Load(args[0])
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(p.Params)
			if err != nil {
				return fmt.Errorf("encode preset %q: %w", p.Name, err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newPresetSaveCommand(opts *Options) *cobra.Command {
	var (
		from       string
		layersFile string
		sets       []string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "save <name>",
		Short: "Save a preset built from another preset, a parameter file and --set overrides",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := LoggerFromContext(cmd.Context())
			name := args[0]
			store, err := storeFromCmd(opts, cmd)
			if err != nil {
				return err
			}

			var base params.Params
			if from != "" {
				p, err := store.Load(from)
				if err != nil {
					return err
				}
				base = p.Params
			}
			overrides, err := readParamsFile(layersFile)
			if err != nil {
				return err
			}
			for _, s := range sets {
				if err := overrides.Set(s); err != nil {
					return err
				}
			}
			resolved, err := params.Resolve(base, overrides)
			if err != nil {
				return err
			}
			if err := store.Save(name, preset.Preset{Name: name, Params: resolved}, force); err != nil {
				return err
			}
			logger.Info("saved preset", "name", name, "dir", store.Dir())
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Preset to start from")
	cmd.Flags().StringVar(&layersFile, "layers-file", "", "YAML file with layers/style/circle/radius/dilate")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Override a parameter, e.g. style.water.fc=#a1e3ff (repeatable)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Replace an existing preset")
	return cmd
}

func newPresetDeleteCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a preset",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storeFromCmd(opts, cmd)
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			LoggerFromContext(cmd.Context()).Info("deleted preset", "name", args[0])
			return nil
		},
	}
}

func newPresetInitCommand(opts *Options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Install the bundled presets into the preset directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())
			cfg, err := loadToolConfigFromCmd(opts, cmd)
			if err != nil {
				return err
			}
			store, err := preset.NewStore(cfg.PresetDir, logger)
			if err != nil {
				return err
			}

			var installed []string
			if force {
				installed, err = restoreBuiltins(store)
			} else {
				installed, err = store.Seed(preset.BuiltinFS())
			}
			if err != nil {
				return err
			}
			if len(installed) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "presets already installed in %s\n", store.Dir())
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed %s in %s\n", strings.Join(installed, ", "), store.Dir())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite bundled presets that were edited")
	return cmd
}

// restoreBuiltins writes every bundled preset over the store copy.
func restoreBuiltins(store *preset.Store) ([]string, error) {
	files, err := fs.Glob(preset.BuiltinFS(), "*.yaml")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, f := range files {
		name := strings.TrimSuffix(f, ".yaml")
		p, err := preset.LoadBuiltin(name)
		if err != nil {
			return names, err
		}
		if err := store.Save(name, p, true); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, nil
}
