package cli

import (
	"bytes"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/prettymaps-go/prettymaps/internal/config"
	"github.com/prettymaps-go/prettymaps/internal/engine"
	"github.com/prettymaps-go/prettymaps/internal/fetch"
	"github.com/prettymaps-go/prettymaps/internal/geo"
	"github.com/prettymaps-go/prettymaps/internal/params"
)

// subplotsFile is the YAML layout of --subplots.
type subplotsFile struct {
	Subplots []subplotEntry `yaml:"subplots"`
}

// subplotEntry is one map of a multiplot. Boundary paths are relative to the file.
type subplotEntry struct {
	Query     string        `yaml:"query"`
	Boundary  string        `yaml:"boundary"`
	Preset    string        `yaml:"preset"`
	NoPreset  bool          `yaml:"no_preset"`
	Params    params.Params `yaml:"params"`
	Transform geo.Transform `yaml:"transform"`
}

type multiplotFlags struct {
	plotFlags
	subplots string
	offsets  []string
}

// newMultiplotCommand creates the "multiplot" subcommand that draws several maps on one canvas.
func newMultiplotCommand(opts *Options) *cobra.Command {
	f := &multiplotFlags{}

	cmd := &cobra.Command{
		Use:   "multiplot [query...]",
		Short: "Draw several places on one canvas",
		Long: `Draw several maps onto one shared canvas with a single caption. Each query becomes a
subplot using the shared preset and overrides; --offset moves them apart in metres. A
--subplots file gives each map its own query or boundary, preset, parameters and transform.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := LoggerFromContext(cmd.Context())
			if err := applyPlotEnv(cmd, &f.plotFlags); err != nil {
				return err
			}

			cfg, err := loadToolConfigFromCmd(opts, cmd)
			if err != nil {
				return err
			}
			req, err := buildMultiplotRequest(cmd, f, cfg, args)
			if err != nil {
				return err
			}

			eng, closeEngine, err := newPlotEngine(cmd, &f.plotFlags, cfg)
			if err != nil {
				return err
			}
			defer closeEngine()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			res, err := eng.Multiplot(ctx, req)
			if err != nil {
				return err
			}
			logger.Info("multiplot completed", "subplots", len(res.Subplots), "output", req.Output)
			return partialOutcome(cmd, &f.plotFlags, res.Err())
		},
	}

	addParamFlags(cmd, &f.plotFlags)
	cmd.Flags().StringVar(&f.subplots, "subplots", "", "YAML file listing the subplots")
	cmd.Flags().StringArrayVar(&f.offsets, "offset", nil, "Shift of each query subplot as x,y metres, in query order (repeatable)")
	addOutputFlags(cmd, &f.plotFlags)
	return cmd
}

// buildMultiplotRequest lists the subplots of --subplots first, then one per query. The
// shared overrides apply to every subplot; a file entry's params are merged on top.
func buildMultiplotRequest(cmd *cobra.Command, f *multiplotFlags, cfg *config.ToolConfig, args []string) (engine.MultiplotRequest, error) {
	out := buildOutput(cmd, &f.plotFlags, cfg)
	req := engine.MultiplotRequest{
		Credit:              out.credit,
		NoCredit:            out.noCredit,
		TolerateFetchErrors: out.tolerate,
		Format:              out.format,
		Output:              out.output,
		GeoJSON:             out.geojson,
	}

	shared, err := buildOverrides(cmd, &f.plotFlags)
	if err != nil {
		return req, err
	}
	base := engine.PlotRequest{
		Preset:              f.preset,
		NoPreset:            f.noPreset,
		Overrides:           shared,
		TolerateFetchErrors: out.tolerate,
	}

	entries, err := readSubplotsFile(f.subplots)
	if err != nil {
		return req, err
	}
	dir := filepath.Dir(f.subplots)
	for i, e := range entries {
		sr := base
		sr.Overrides = params.Overlay(shared, e.Params)
		sr.Transform = e.Transform
		if e.Preset != "" || e.NoPreset {
			sr.Preset, sr.NoPreset = e.Preset, e.NoPreset
		}
		switch {
		case e.Boundary != "" && e.Query != "":
			return req, fmt.Errorf("subplot %d: set either query or boundary, not both", i)
		case e.Boundary != "":
			path := e.Boundary
			if !filepath.IsAbs(path) {
				path = filepath.Join(dir, path)
			}
			place, err := fetch.LoadPlaceFile(path)
			if err != nil {
				return req, fmt.Errorf("subplot %d: %w", i, err)
			}
			sr.Place = &place
		case strings.TrimSpace(e.Query) != "":
			sr.Query = e.Query
		default:
			return req, fmt.Errorf("subplot %d: a query or boundary is required", i)
		}
		req.Subplots = append(req.Subplots, sr)
	}

	if len(f.offsets) > len(args) {
		return req, fmt.Errorf("%d offset(s) for %d query subplot(s)", len(f.offsets), len(args))
	}
	for i, q := range args {
		if strings.TrimSpace(q) == "" {
			return req, fmt.Errorf("query %d is empty", i)
		}
		sr := base
		sr.Query = q
		if i < len(f.offsets) {
			x, y, err := parseOffset(f.offsets[i])
			if err != nil {
				return req, err
			}
			sr.Transform = geo.Transform{X: x, Y: y}
		}
		req.Subplots = append(req.Subplots, sr)
	}

	if len(req.Subplots) == 0 {
		return req, fmt.Errorf("at least one query or a --subplots file is required")
	}
	return req, nil
}

func readSubplotsFile(path string) ([]subplotEntry, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read subplots file: %w", err)
	}
	var file subplotsFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse subplots file %s: %w", path, err)
	}
	return file.Subplots, nil
}

// parseOffset reads "x,y" in metres.
func parseOffset(raw string) (float64, float64, error) {
	xs, ys, ok := strings.Cut(raw, ",")
	if !ok {
		return 0, 0, fmt.Errorf("offset %q: want x,y", raw)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("offset %q: %w", raw, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("offset %q: %w", raw, err)
	}
	return x, y, nil
}
