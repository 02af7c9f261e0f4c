package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/prettymaps-go/prettymaps/internal/compose"
	"github.com/prettymaps-go/prettymaps/internal/geo"
	"github.com/prettymaps-go/prettymaps/internal/params"
	"github.com/prettymaps-go/prettymaps/internal/render"
)

// MultiplotRequest draws several maps onto one canvas.
type MultiplotRequest struct {
	// Subplots are planned like single plots. Their output, format and credit fields are
	// ignored; the fields below apply to the whole canvas.
	Subplots []PlotRequest

	Credit   compose.Credit
	NoCredit bool
	// TolerateFetchErrors applies to every subplot.
	TolerateFetchErrors bool

	Format  string
	Output  string
	GeoJSON string
}

// MultiplotResult is the outcome of a multiplot.
type MultiplotResult struct {
	// Subplots are the per-map results, in request order. They share Frame and Canvas.
	Subplots []*PlotResult
	Frame    compose.Frame
	Canvas   render.Canvas
}

// Err joins the partial failures of every subplot.
func (r *MultiplotResult) Err() error {
	if r == nil {
		return nil
	}
	var errs []error
	for i, sp := range r.Subplots {
		if err := sp.Err(); err != nil {
			errs = append(errs, fmt.Errorf("subplot %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Multiplot fetches every subplot on its own and draws them onto one canvas. All subplots
// share one projection, so places keep their relative position and each subplot's
// transform moves it on the shared canvas. A single credit is drawn over the combined frame.
func (e *Engine) Multiplot(ctx context.Context, req MultiplotRequest) (*MultiplotResult, error) {
	if len(req.Subplots) == 0 {
		return nil, fmt.Errorf("multiplot needs at least one subplot")
	}

	subReqs := make([]PlotRequest, len(req.Subplots))
	stages := make([]*stage, len(req.Subplots))
	var bound orb.Bound
	for i, sr := range req.Subplots {
		sr.TolerateFetchErrors = sr.TolerateFetchErrors || req.TolerateFetchErrors
		subReqs[i] = sr
		st, err := e.gather(ctx, sr)
		if err != nil {
			return nil, fmt.Errorf("subplot %d: %w", i, err)
		}
		stages[i] = st
		if i == 0 {
			bound = st.perimeter.Bound()
		} else {
			bound = bound.Union(st.perimeter.Bound())
		}
		e.logger.Debug("subplot fetched", "subplot", i, "query", sr.Query, "layers", len(st.fetched))
	}

	proj := geo.NewProjection(bound.Center())
	subplots := make([]compose.Subplot, len(stages))
	perimeters := make([]orb.Geometry, len(stages))
	cfgs := make([]params.Params, len(stages))
	for i, st := range stages {
		if err := st.arrange(proj, subReqs[i]); err != nil {
			return nil, fmt.Errorf("subplot %d: %w", i, err)
		}
		subplots[i] = compose.Subplot{Params: st.cfg, Inputs: st.inputs}
		perimeters[i] = st.planar
		cfgs[i] = st.cfg
	}

	frame, err := compose.NewMultiFrame(proj, perimeters, cfgs)
	if err != nil {
		return nil, err
	}
	canvas, err := e.canvas(req.Format, req.Output)
	if err != nil {
		return nil, err
	}
	compositions, err := compose.ComposeMulti(frame, subplots, canvas, compose.Options{
		TolerateFetchErrors: req.TolerateFetchErrors,
		Credit:              req.Credit,
		NoCredit:            req.NoCredit,
		Logger:              e.logger,
	})
	if err != nil {
		return nil, err
	}

	res := &MultiplotResult{Frame: frame, Canvas: canvas}
	for i, st := range stages {
		res.Subplots = append(res.Subplots, st.result(compositions[i], canvas))
	}
	order, layers := mergeSubplotLayers(stages)
	if err := e.save(req.Output, req.GeoJSON, canvas, order, layers); err != nil {
		return nil, err
	}
	return res, nil
}

// mergeSubplotLayers combines the fetched layers of every subplot for a single GeoJSON
// export. Layers of later subplots are appended to those of the same name.
func mergeSubplotLayers(stages []*stage) ([]string, map[string]*geojson.FeatureCollection) {
	var order []string
	layers := make(map[string]*geojson.FeatureCollection)
	for _, st := range stages {
		for _, name := range st.cfg.LayerNames() {
			fc, ok := st.fetched[name]
			if !ok {
				continue
			}
			merged, seen := layers[name]
			if !seen {
				merged = geojson.NewFeatureCollection()
				layers[name] = merged
				order = append(order, name)
			}
			merged.Features = append(merged.Features, fc.Features...)
		}
	}
	return order, layers
}
