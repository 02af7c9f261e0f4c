package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/prettymaps-go/prettymaps/internal/compose"
	"github.com/prettymaps-go/prettymaps/internal/config"
	"github.com/prettymaps-go/prettymaps/internal/engine"
	"github.com/prettymaps-go/prettymaps/internal/fetch"
	"github.com/prettymaps-go/prettymaps/internal/geo"
	"github.com/prettymaps-go/prettymaps/internal/params"
	"github.com/prettymaps-go/prettymaps/internal/render"
)

// plotFlags holds the flags of the plot command.
type plotFlags struct {
	boundary     string
	preset       string
	noPreset     bool
	sets         []string
	layersFile   string
	exclude      []string
	circle       bool
	radius       float64
	dilate       float64
	savePreset   string
	updatePreset string
	overwrite    bool

	output   string
	format   string
	geojson  string
	tolerate bool
	strict   bool

	transform geo.Transform

	credit     string
	noCredit   bool
	creditX    float64
	creditY    float64
	creditSize float64

	size float64
	dpi  float64
	seed uint64
}

// newPlotCommand creates the "plot" subcommand that draws one map.
func newPlotCommand(opts *Options) *cobra.Command {
	f := &plotFlags{}

	cmd := &cobra.Command{
		Use:   "plot [query]",
		Short: "Draw a map of an address, coordinates or OSM id",
		Long: `Draw a map around a place. The query is an address ("Porto Alegre"), coordinates
("-30.03, -51.22") or an OpenStreetMap id (R2166283). Use --boundary to draw inside a
GeoJSON polygon instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := LoggerFromContext(cmd.Context())
			if err := applyPlotEnv(cmd, f); err != nil {
				return err
			}

			cfg, err := loadToolConfigFromCmd(opts, cmd)
			if err != nil {
				return err
			}
			req, err := buildPlotRequest(cmd, f, cfg, args)
			if err != nil {
				return err
			}

			eng, closeEngine, err := newPlotEngine(cmd, f, cfg)
			if err != nil {
				return err
			}
			defer closeEngine()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			res, err := eng.Plot(ctx, req)
			if err != nil {
				return err
			}
			logger.Info("plot completed", "layers", len(res.Composition.Drawn), "skipped", res.Composition.Skipped, "output", req.Output)
			return partialOutcome(cmd, f, res.Err())
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.boundary, "boundary", "", "GeoJSON file with the polygon to draw instead of a query")
	addParamFlags(cmd, f)
	fl.StringVar(&f.savePreset, "save-preset", "", "Save the resolved parameters as a preset")
	fl.StringVar(&f.updatePreset, "update-preset", "", "Load a preset, merge the overrides into it and save it back")
	fl.BoolVar(&f.overwrite, "overwrite", false, "Allow --save-preset to replace an existing preset")

	fl.Float64Var(&f.transform.X, "x", 0, "Shift the map east by this many metres")
	fl.Float64Var(&f.transform.Y, "y", 0, "Shift the map north by this many metres")
	fl.Float64Var(&f.transform.ScaleX, "scale-x", 1, "Horizontal scale factor")
	fl.Float64Var(&f.transform.ScaleY, "scale-y", 1, "Vertical scale factor")
	fl.Float64Var(&f.transform.Rotation, "rotation", 0, "Rotate the map by this many degrees counter-clockwise")

	addOutputFlags(cmd, f)
	return cmd
}

// addParamFlags registers the flags that pick and override the plot parameters.
func addParamFlags(cmd *cobra.Command, f *plotFlags) {
	fl := cmd.Flags()
	fl.StringVarP(&f.preset, "preset", "p", "", "Base preset (default \"default\")")
	fl.BoolVar(&f.noPreset, "no-preset", false, "Start from empty parameters instead of a preset")
	fl.StringArrayVar(&f.sets, "set", nil, "Override a parameter, e.g. style.water.fc=#a1e3ff or layers.green.tags.leisure=[park,garden] (repeatable)")
	fl.StringVar(&f.layersFile, "layers-file", "", "YAML file with layers/style/circle/radius/dilate overrides")
	fl.StringSliceVar(&f.exclude, "exclude", nil, "Layers to leave out (repeatable or comma-separated)")
	fl.BoolVar(&f.circle, "circle", false, "Use a circular boundary")
	fl.Float64Var(&f.radius, "radius", 0, "Boundary radius in metres around the place")
	fl.Float64Var(&f.dilate, "dilate", 0, "Grow the boundary by this many metres")
}

// addOutputFlags registers the flags for the written files, the caption and the canvas.
func addOutputFlags(cmd *cobra.Command, f *plotFlags) {
	fl := cmd.Flags()
	fl.StringVarP(&f.output, "output", "o", "", "Image file to write (default map.<format>)")
	fl.StringVar(&f.format, "format", "", "Output format: png or svg (default from the output extension)")
	fl.StringVar(&f.geojson, "geojson", "", "Also write the fetched layers to this GeoJSON file")
	fl.BoolVar(&f.tolerate, "tolerate-fetch-errors", false, "Draw the layers that could be fetched instead of failing")
	fl.BoolVar(&f.strict, "strict", false, "Exit with an error when layers were left out, after writing the map")

	fl.StringVar(&f.credit, "credit", "", "Caption text (default credits OpenStreetMap)")
	fl.BoolVar(&f.noCredit, "no-credit", false, "Draw no caption")
	fl.Float64Var(&f.creditX, "credit-x", 0, "Caption position from the left, 0 to 1")
	fl.Float64Var(&f.creditY, "credit-y", 1, "Caption position from the bottom, 0 to 1")
	fl.Float64Var(&f.creditSize, "credit-size", 0, "Caption font size in points")

	fl.Float64Var(&f.size, "size", 0, "Figure size in inches")
	fl.Float64Var(&f.dpi, "dpi", 0, "Pixels per inch")
	fl.Uint64Var(&f.seed, "seed", 0, "Seed for palette colour picks")
}

// applyPlotEnv fills unset flags from PRETTYMAPS_* variables.
func applyPlotEnv(cmd *cobra.Command, f *plotFlags) error {
	var envVars plotEnv
	if err := parseEnv(&envVars); err != nil {
		return err
	}
	if !cmd.Flags().Changed("preset") && envPresent("PRETTYMAPS_PRESET") {
		f.preset = envVars.Preset
	}
	if !cmd.Flags().Changed("output") && envPresent("PRETTYMAPS_OUTPUT") {
		f.output = envVars.Output
	}
	if v, ok := parseEnvBool(envVars.Strict); ok && !cmd.Flags().Changed("strict") {
		f.strict = v
	}
	return nil
}

// newPlotEngine opens the preset store and the HTTP clients and wires an engine. The
// returned func releases the clients.
func newPlotEngine(cmd *cobra.Command, f *plotFlags, cfg *config.ToolConfig) (*engine.Engine, func(), error) {
	logger := LoggerFromContext(cmd.Context())
	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	cl, err := newClients(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	eng, err := engine.NewEngine(engine.Options{
		Store:    store,
		Source:   cl.overpass,
		Geocoder: cl.nominatim,
		Render:   renderOptions(cmd, f, cfg),
		Logger:   logger,
	})
	if err != nil {
		cl.Close()
		return nil, nil, err
	}
	return eng, cl.Close, nil
}

// partialOutcome reports layers left out under --tolerate-fetch-errors. The map is already
// written; with --strict the partial failure becomes the command error.
func partialOutcome(cmd *cobra.Command, f *plotFlags, err error) error {
	if err == nil {
		return nil
	}
	logger := LoggerFromContext(cmd.Context())
	var partial *compose.PartialError
	if errors.As(err, &partial) {
		logger.Warn("map drawn without some layers", "layers", partial.Layers(), "error", err)
	} else {
		logger.Warn("map drawn without some layers", "error", err)
	}
	if f.strict {
		return err
	}
	return nil
}

// buildPlotRequest turns the flags into an engine request.
func buildPlotRequest(cmd *cobra.Command, f *plotFlags, cfg *config.ToolConfig, args []string) (engine.PlotRequest, error) {
	out := buildOutput(cmd, f, cfg)
	req := engine.PlotRequest{
		Preset:              f.preset,
		NoPreset:            f.noPreset,
		SavePreset:          f.savePreset,
		OverwritePreset:     f.overwrite,
		UpdatePreset:        f.updatePreset,
		Transform:           f.transform,
		Credit:              out.credit,
		NoCredit:            out.noCredit,
		TolerateFetchErrors: out.tolerate,
		Format:              out.format,
		Output:              out.output,
		GeoJSON:             out.geojson,
	}

	switch {
	case f.boundary != "" && len(args) > 0:
		return req, fmt.Errorf("pass either a query or --boundary, not both")
	case f.boundary != "":
		place, err := fetch.LoadPlaceFile(f.boundary)
		if err != nil {
			return req, err
		}
		req.Place = &place
	case len(args) == 1 && strings.TrimSpace(args[0]) != "":
		req.Query = args[0]
	default:
		return req, fmt.Errorf("a query or --boundary is required")
	}

	overrides, err := buildOverrides(cmd, f)
	if err != nil {
		return req, err
	}
	req.Overrides = overrides
	return req, nil
}

// outputSettings are the output flags resolved against the config file.
type outputSettings struct {
	credit   compose.Credit
	noCredit bool
	tolerate bool
	format   string
	output   string
	geojson  string
}

func buildOutput(cmd *cobra.Command, f *plotFlags, cfg *config.ToolConfig) outputSettings {
	out := outputSettings{
		credit:   compose.Credit{Text: strings.ReplaceAll(f.credit, `\n`, "\n"), FontSize: f.creditSize},
		noCredit: f.noCredit,
		tolerate: cfg.TolerateFetchErrors,
		format:   f.format,
		output:   f.output,
		geojson:  f.geojson,
	}
	if cmd.Flags().Changed("credit-x") {
		out.credit.X = params.Ptr(f.creditX)
	}
	if cmd.Flags().Changed("credit-y") {
		out.credit.Y = params.Ptr(f.creditY)
	}
	if cmd.Flags().Changed("tolerate-fetch-errors") {
		out.tolerate = f.tolerate
	}

	if out.format == "" && out.output == "" {
		out.format = cfg.Render.Format
	}
	if out.output == "" {
		ext := strings.ToLower(out.format)
		if ext == "" {
			ext = "png"
		}
		out.output = "map." + ext
	}
	return out
}

// buildOverrides reads --layers-file, then applies the boundary flags, --set and --exclude
// in that order.
func buildOverrides(cmd *cobra.Command, f *plotFlags) (params.Params, error) {
	p, err := readParamsFile(f.layersFile)
	if err != nil {
		return p, err
	}
	if cmd.Flags().Changed("circle") {
		p.Circle = params.Ptr(f.circle)
	}
	if cmd.Flags().Changed("radius") {
		p.Radius = params.Ptr(f.radius)
	}
	if cmd.Flags().Changed("dilate") {
		p.Dilate = params.Ptr(f.dilate)
	}
	for _, s := range f.sets {
		if err := p.Set(s); err != nil {
			return p, err
		}
	}
	for _, name := range parseNameList(f.exclude) {
		p.Exclude(name)
	}
	return p, nil
}

// readParamsFile decodes a YAML parameter file. An empty path yields empty parameters.
func readParamsFile(path string) (params.Params, error) {
	var p params.Params
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read layers file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return p, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return p, fmt.Errorf("parse layers file %s: %w", path, err)
	}
	return p, nil
}

func renderOptions(cmd *cobra.Command, f *plotFlags, cfg *config.ToolConfig) render.Options {
	o := render.Options{Width: cfg.Render.Size, DPI: cfg.Render.DPI, Seed: cfg.Render.Seed}
	if cmd.Flags().Changed("size") {
		o.Width = f.size
	}
	if cmd.Flags().Changed("dpi") {
		o.DPI = f.dpi
	}
	if cmd.Flags().Changed("seed") {
		o.Seed = f.seed
	}
	return o
}
