// Package engine contains the high-level orchestration of a map plot: presets, parameter
// resolution, boundary, fetching, transforms, composition and output.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/prettymaps-go/prettymaps/internal/compose"
	"github.com/prettymaps-go/prettymaps/internal/fetch"
	"github.com/prettymaps-go/prettymaps/internal/geo"
	"github.com/prettymaps-go/prettymaps/internal/logging"
	"github.com/prettymaps-go/prettymaps/internal/params"
	"github.com/prettymaps-go/prettymaps/internal/preset"
	"github.com/prettymaps-go/prettymaps/internal/render"
)

// Engine plots maps. Its dependencies are passed explicitly so tests can swap the data
// source and geocoder.
type Engine struct {
	store    *preset.Store
	source   fetch.Source
	geocoder fetch.Geocoder
	render   render.Options
	logger   *slog.Logger
}

// Options wires an Engine.
type Options struct {
	// Store holds named presets. Without one, requests must set NoPreset.
	Store *preset.Store
	// Source fetches layer features.
	Source fetch.Source
	// Geocoder resolves addresses and OSM ids. Only coordinate and polygon queries work without one.
	Geocoder fetch.Geocoder
	// Render sizes the output canvas.
	Render render.Options
	Logger *slog.Logger
}

// NewEngine constructs an Engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("engine needs a data source")
	}
	logger := logging.OrDiscard(opts.Logger)
	if opts.Render.Logger == nil {
		opts.Render.Logger = logger
	}
	return &Engine{
		store:    opts.Store,
		source:   opts.Source,
		geocoder: opts.Geocoder,
		render:   opts.Render,
		logger:   logger,
	}, nil
}

// PlotRequest describes one map.
type PlotRequest struct {
	// Query is an address, "lat,lon" coordinates or an OSM id such as R1234.
	Query string
	// Place overrides Query with an already parsed place, e.g. a boundary polygon.
	Place *fetch.Place

	// Preset is the base preset, preset.DefaultName when empty. NoPreset starts from empty
	// parameters instead.
	Preset   string
	NoPreset bool
	// Overrides are merged onto the preset (layers, style, circle, radius, dilate).
	Overrides params.Params
	// SavePreset stores the resolved parameters under this name. OverwritePreset allows
	// replacing an existing preset.
	SavePreset      string
	OverwritePreset bool
	// UpdatePreset loads this preset, merges the overrides and writes it back.
	UpdatePreset string

	// Transform moves, scales and rotates the projected layers.
	Transform geo.Transform
	// Postprocess edits the projected layers before drawing.
	Postprocess func(layers map[string]*geojson.FeatureCollection) error

	Credit   compose.Credit
	NoCredit bool
	// TolerateFetchErrors draws the layers that could be fetched instead of failing.
	TolerateFetchErrors bool

	// Backup reuses the fetched layers and perimeter of a previous plot. Layers it lacks are fetched.
	Backup *PlotResult

	// Format is "png" or "svg". When empty it follows the Output extension, then defaults to png.
	Format string
	// Output is the image file to write, if any.
	Output string
	// GeoJSON is the file to write the fetched layers to, if any.
	GeoJSON string
}

// PlotResult is the outcome of a plot.
type PlotResult struct {
	// Params are the resolved parameters that drove the plot.
	Params params.Params
	// Perimeter is the lon/lat boundary.
	Perimeter orb.Geometry
	// Fetched holds the lon/lat features per layer as returned by the source.
	Fetched map[string]*geojson.FeatureCollection
	// Composition is the drawing outcome; its Layers are projected and transformed.
	Composition *compose.Result
	// Canvas holds the drawing and can be encoded again.
	Canvas render.Canvas
}

// Err returns the partial failure of the plot, if any layer was left out.
func (r *PlotResult) Err() error {
	if r == nil || r.Composition == nil {
		return nil
	}
	return r.Composition.Err()
}

// Plot runs the whole pipeline: presets, resolve, boundary, fetch, transform, compose and
// save.
func (e *Engine) Plot(ctx context.Context, req PlotRequest) (*PlotResult, error) {
	st, err := e.gather(ctx, req)
	if err != nil {
		return nil, err
	}
	proj := geo.NewProjection(st.perimeter.Bound().Center())
	if err := st.arrange(proj, req); err != nil {
		return nil, err
	}

	frame, err := compose.NewFrame(proj, st.planar, st.cfg)
	if err != nil {
		return nil, err
	}
	canvas, err := e.canvas(req.Format, req.Output)
	if err != nil {
		return nil, err
	}
	composition, err := compose.Compose(st.cfg, frame, st.inputs, canvas, compose.Options{
		TolerateFetchErrors: req.TolerateFetchErrors,
		Credit:              req.Credit,
		NoCredit:            req.NoCredit,
		Logger:              e.logger,
	})
	if err != nil {
		return nil, err
	}

	res := st.result(composition, canvas)
	if err := e.save(req.Output, req.GeoJSON, canvas, st.cfg.LayerNames(), st.fetched); err != nil {
		return nil, err
	}
	return res, nil
}

// stage carries one map through fetching and projection.
type stage struct {
	cfg       params.Params
	perimeter orb.Geometry
	fetched   map[string]*geojson.FeatureCollection
	inputs    map[string]compose.Input
	planar    orb.Geometry
}

// gather resolves the parameters, builds the lon/lat perimeter and fetches the layers.
func (e *Engine) gather(ctx context.Context, req PlotRequest) (*stage, error) {
	cfg, err := e.resolve(req)
	if err != nil {
		return nil, err
	}
	cfg.ApplyBoundaryDefaults()

	var perimeter orb.Geometry
	if req.Backup != nil && req.Backup.Perimeter != nil {
		perimeter = req.Backup.Perimeter
	} else {
		place, err := e.place(req)
		if err != nil {
			return nil, err
		}
		perimeter, err = e.perimeter(ctx, place, cfg, req.Transform.Rotation)
		if err != nil {
			return nil, err
		}
	}

	fetched, inputs, err := e.fetchLayers(ctx, cfg, perimeter, req)
	if err != nil {
		return nil, err
	}
	return &stage{cfg: cfg, perimeter: perimeter, fetched: fetched, inputs: inputs}, nil
}

// arrange projects and transforms the layers, then runs the postprocess hook.
func (st *stage) arrange(proj geo.Projection, req PlotRequest) error {
	planar, err := project(proj, req.Transform, st.perimeter, st.fetched, st.inputs)
	if err != nil {
		return err
	}
	if req.Postprocess != nil {
		if err := postprocess(req.Postprocess, st.inputs); err != nil {
			return fmt.Errorf("postprocess layers: %w", err)
		}
	}
	st.planar = planar
	return nil
}

func (st *stage) result(composition *compose.Result, canvas render.Canvas) *PlotResult {
	return &PlotResult{
		Params:      st.cfg,
		Perimeter:   st.perimeter,
		Fetched:     st.fetched,
		Composition: composition,
		Canvas:      canvas,
	}
}

func (e *Engine) canvas(format, output string) (render.Canvas, error) {
	format, err := outputFormat(format, output)
	if err != nil {
		return nil, err
	}
	return render.New(format, e.render)
}

// save writes the image and the GeoJSON layers when their paths are set.
func (e *Engine) save(output, geoJSON string, canvas render.Canvas, order []string, layers map[string]*geojson.FeatureCollection) error {
	if output != "" {
		if err := SaveImage(output, canvas); err != nil {
			return err
		}
		e.logger.Info("saved map", "path", output, "format", canvas.Format())
	}
	if geoJSON != "" {
		if err := SaveGeoJSON(geoJSON, order, layers); err != nil {
			return err
		}
		e.logger.Info("saved layers", "path", geoJSON)
	}
	return nil
}

// resolve loads, merges and optionally saves the preset parameters.
func (e *Engine) resolve(req PlotRequest) (params.Params, error) {
	load := req.Preset
	save := req.SavePreset
	overwrite := req.OverwritePreset
	if req.UpdatePreset != "" {
		load, save, overwrite = req.UpdatePreset, req.UpdatePreset, true
	}

	var base params.Params
	if !req.NoPreset || req.UpdatePreset != "" {
		if load == "" {
			load = preset.DefaultName
		}
		if e.store == nil {
			return params.Params{}, fmt.Errorf("no preset store configured to load %q", load)
		}
		p, err := e.store.Load(load)
		if err != nil {
			return params.Params{}, err
		}
		base = p.Params
		e.logger.Debug("loaded preset", "name", load)
	}

	cfg, err := params.Resolve(base, req.Overrides)
	if err != nil {
		return params.Params{}, err
	}
	if save != "" {
		if e.store == nil {
			return params.Params{}, fmt.Errorf("no preset store configured to save %q", save)
		}
		if err := e.store.Save(save, preset.Preset{Name: save, Params: cfg}, overwrite); err != nil {
			return params.Params{}, err
		}
		e.logger.Info("saved preset", "name", save)
	}
	return cfg, nil
}

func (e *Engine) place(req PlotRequest) (fetch.Place, error) {
	if req.Place != nil {
		return *req.Place, nil
	}
	return fetch.ParsePlace(req.Query)
}

func postprocess(fn func(map[string]*geojson.FeatureCollection) error, inputs map[string]compose.Input) error {
	layers := make(map[string]*geojson.FeatureCollection, len(inputs))
	for name, in := range inputs {
		if in.Features != nil {
			layers[name] = in.Features
		}
	}
	if err := fn(layers); err != nil {
		return err
	}
	for name, fc := range layers {
		in := inputs[name]
		in.Features = fc
		inputs[name] = in
	}
	return nil
}

func outputFormat(format, output string) (string, error) {
	if format != "" {
		return format, nil
	}
	if output != "" {
		return render.FormatFromPath(output)
	}
	return "png", nil
}

// isCancelled reports whether err comes from the caller giving up rather than the source failing.
func isCancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
