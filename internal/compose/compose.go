// Package compose orders resolved layers by z-order and hands their geometry and style
// to a drawing canvas.
package compose

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/prettymaps-go/prettymaps/internal/geo"
	"github.com/prettymaps-go/prettymaps/internal/logging"
	"github.com/prettymaps-go/prettymaps/internal/params"
)

// DefaultBackgroundZOrder is used when the background style does not set one.
const DefaultBackgroundZOrder = -1

// Canvas is a rendering backend.
type Canvas interface {
	// Begin sizes the canvas to the frame. It is called once before any drawing.
	Begin(f Frame) error
	// DrawBackground fills the background shape.
	DrawBackground(g orb.Geometry, s params.Style) error
	// DrawLayer draws the shapes of one layer.
	DrawLayer(l Layer) error
	// DrawCredit writes the credit caption.
	DrawCredit(c Credit) error
}

// Frame is the planar drawing area shared by every layer.
type Frame struct {
	// Projection maps lon/lat to the planar metres used by every geometry below.
	Projection geo.Projection
	// Bound is the visible extent, the bounds of Background.
	Bound orb.Bound
	// Perimeter is the planar boundary that clips layers.
	Perimeter orb.Geometry
	// Background is the padded box behind the map.
	Background orb.Geometry
	// Multi holds one panel per subplot when several maps share the frame. Perimeter and
	// Background are then unused.
	Multi []Panel
}

// Panel is the area of one map inside a frame.
type Panel struct {
	Perimeter  orb.Geometry
	Background orb.Geometry
}

// Panels returns the subplot areas of f, a single panel for an ordinary map.
func (f Frame) Panels() []Panel {
	if len(f.Multi) > 0 {
		return f.Multi
	}
	return []Panel{{Perimeter: f.Perimeter, Background: f.Background}}
}

// Layer is one drawable layer in planar coordinates.
type Layer struct {
	Name   string
	Shapes []orb.Geometry
	Style  params.Style
	// Union draws every shape with a single colour.
	Union bool
	// Clip restricts drawing to the perimeter of the layer's panel.
	Clip bool
	// Subplot indexes Frame.Panels.
	Subplot int
	// Labels are drawn over the shapes when the style asks for a legend.
	Labels []Label
}

// Label is a feature name written at a planar point.
type Label struct {
	Text string
	At   orb.Point
}

// LabelFontSize is the legend text size in points.
const LabelFontSize = 6.0

// Input is the fetch outcome of one layer, projected to the frame.
type Input struct {
	Features *geojson.FeatureCollection
	Err      error
}

// Options tunes a composition.
type Options struct {
	// TolerateFetchErrors records failed layers and draws the rest instead of aborting.
	TolerateFetchErrors bool
	// Credit overrides the caption; NoCredit disables it.
	Credit   Credit
	NoCredit bool
	Logger   *slog.Logger
}

// Result is the outcome of a composition.
type Result struct {
	// Layers holds the projected features per layer, including those that were not drawn.
	Layers map[string]*geojson.FeatureCollection
	// Frame is the drawing area ("axis").
	Frame Frame
	// Canvas is the backend that received the drawing ("figure").
	Canvas Canvas
	// Drawn lists the drawn entries in draw order.
	Drawn []string
	// Skipped lists layers with no geometry.
	Skipped []string
	// Failures lists layers left out under TolerateFetchErrors.
	Failures []LayerFailure
}

// Err returns a PartialError when some layers failed, nil otherwise.
func (r *Result) Err() error {
	if r == nil || len(r.Failures) == 0 {
		return nil
	}
	return &PartialError{Failures: r.Failures}
}

type entry struct {
	name   string
	zorder float64
	index  int
}

// DrawOrder returns the layer names of cfg, plus the background when it is styled, in
// ascending z-order. Ties keep declaration order with the background first.
func DrawOrder(cfg params.Params) []string {
	var entries []entry
	if s, ok := cfg.Style.Get(params.BackgroundLayer); ok {
		entries = append(entries, entry{
			name:   params.BackgroundLayer,
			zorder: params.Value(s.ZOrder, DefaultBackgroundZOrder),
			index:  -1,
		})
	}
	for i, name := range cfg.LayerNames() {
		if name == params.BackgroundLayer {
			continue
		}
		s, _ := cfg.Style.Get(name)
		entries = append(entries, entry{name: name, zorder: params.Value(s.ZOrder, 0), index: i})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].zorder != entries[j].zorder {
			return entries[i].zorder < entries[j].zorder
		}
		return entries[i].index < entries[j].index
	})
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.name
	}
	return out
}

// Compose draws the layers of cfg onto canvas in z-order. Fetch failures abort before
// anything is drawn unless opts.TolerateFetchErrors is set, in which case they are recorded
// in Result.Failures. Canvas failures abort with a RenderError naming the layer.
func Compose(cfg params.Params, frame Frame, inputs map[string]Input, canvas Canvas, opts Options) (*Result, error) {
	frame.Multi = nil
	results, err := ComposeMulti(frame, []Subplot{{Params: cfg, Inputs: inputs}}, canvas, opts)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// Subplot is one map of a shared frame.
type Subplot struct {
	Params params.Params
	Inputs map[string]Input
}

type drawItem struct {
	subplot int
	name    string
	zorder  float64
	index   int
}

// ComposeMulti draws several maps onto one canvas. Subplot i uses panel i of frame. Layers
// of every subplot are interleaved by z-order, ties keeping subplot order, so that one
// map's background never covers another map's buildings. The credit is drawn once.
func ComposeMulti(frame Frame, subplots []Subplot, canvas Canvas, opts Options) ([]*Result, error) {
	logger := logging.OrDiscard(opts.Logger)
	panels := frame.Panels()
	if len(subplots) == 0 || len(panels) != len(subplots) {
		return nil, fmt.Errorf("frame has %d panel(s) for %d subplot(s)", len(panels), len(subplots))
	}

	results := make([]*Result, len(subplots))
	failed := make([]map[string]bool, len(subplots))
	var items []drawItem
	for i, sp := range subplots {
		res := &Result{
			Layers: make(map[string]*geojson.FeatureCollection, len(sp.Inputs)),
			Frame:  frame,
			Canvas: canvas,
		}
		failed[i] = make(map[string]bool)
		order := DrawOrder(sp.Params)
		for _, name := range order {
			in, ok := sp.Inputs[name]
			if !ok || in.Err == nil {
				continue
			}
			if !opts.TolerateFetchErrors {
				return nil, in.Err
			}
			logger.Warn("layer failed, drawing the rest", "layer", name, "subplot", i, "error", in.Err)
			res.Failures = append(res.Failures, LayerFailure{Layer: name, Err: in.Err})
			failed[i][name] = true
		}
		for name, in := range sp.Inputs {
			if in.Features != nil {
				res.Layers[name] = in.Features
			}
		}
		for j, name := range order {
			style, _ := sp.Params.Style.Get(name)
			z := params.Value(style.ZOrder, 0)
			if name == params.BackgroundLayer {
				z = params.Value(style.ZOrder, DefaultBackgroundZOrder)
			}
			items = append(items, drawItem{subplot: i, name: name, zorder: z, index: j})
		}
		results[i] = res
	}
	sort.SliceStable(items, func(a, b int) bool {
		if items[a].zorder != items[b].zorder {
			return items[a].zorder < items[b].zorder
		}
		if items[a].subplot != items[b].subplot {
			return items[a].subplot < items[b].subplot
		}
		return items[a].index < items[b].index
	})

	if err := canvas.Begin(frame); err != nil {
		return nil, &RenderError{Layer: "canvas", Err: err}
	}

	for _, it := range items {
		sp, res, panel := subplots[it.subplot], results[it.subplot], panels[it.subplot]
		name := it.name
		style, _ := sp.Params.Style.Get(name)

		if name == params.BackgroundLayer {
			if panel.Background == nil {
				continue
			}
			if err := canvas.DrawBackground(panel.Background, style); err != nil {
				return nil, &RenderError{Layer: name, Err: err}
			}
			res.Drawn = append(res.Drawn, name)
			continue
		}
		if failed[it.subplot][name] {
			continue
		}

		layer, _ := sp.Params.Layers.Get(name)
		in := sp.Inputs[name]
		shapes := Shapes(name, layer, in.Features)
		if len(shapes) == 0 {
			logger.Debug("skip empty layer", "layer", name, "subplot", it.subplot)
			res.Skipped = append(res.Skipped, name)
			continue
		}
		if !sp.Params.Style.Has(name) {
			style = DefaultStyle
		}
		dl := Layer{
			Name:    name,
			Shapes:  shapes,
			Style:   style,
			Union:   params.Value(layer.Union, false),
			Clip:    name != params.PerimeterLayer && params.Value(layer.Tolerance, 0) == 0,
			Subplot: it.subplot,
		}
		if params.Value(style.Legend, false) {
			var clipTo orb.Geometry
			if dl.Clip {
				clipTo = panel.Perimeter
			}
			dl.Labels = Labels(in.Features, clipTo)
		}
		if err := canvas.DrawLayer(dl); err != nil {
			return nil, &RenderError{Layer: name, Err: err}
		}
		logger.Debug("drew layer", "layer", name, "subplot", it.subplot, "shapes", len(shapes), "zorder", it.zorder)
		res.Drawn = append(res.Drawn, name)
	}

	if !opts.NoCredit {
		credit := opts.Credit.withDefaults()
		if err := canvas.DrawCredit(credit); err != nil {
			return nil, &RenderError{Layer: "credit", Err: err}
		}
	}
	return results, nil
}

// Labels returns one label per distinct feature name, placed at the feature centroid.
// When within is set, labels outside it are dropped.
func Labels(fc *geojson.FeatureCollection, within orb.Geometry) []Label {
	if fc == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []Label
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		text := strings.TrimSpace(f.Properties.MustString("name", ""))
		if text == "" || seen[text] {
			continue
		}
		at, _ := planar.CentroidArea(f.Geometry)
		if within != nil && !geo.Contains(within, at) {
			continue
		}
		seen[text] = true
		out = append(out, Label{Text: text, At: at})
	}
	return out
}

// DefaultStyle draws layers that have no style entry.
var DefaultStyle = params.Style{
	FaceColor: params.Ptr("#808080"),
	LineWidth: params.Ptr(0.0),
}

// Credit is the caption written over the map.
type Credit struct {
	Text string
	// X and Y place the caption's top-left corner relative to the frame, from the
	// bottom-left (0, 0) to the top-right (1, 1).
	X, Y *float64
	// FontSize is in points.
	FontSize float64
	Color    string
	// Box draws a white box behind the text.
	Box *bool
}

// DefaultCreditText attributes the data as the OpenStreetMap licence requires.
const DefaultCreditText = "data © OpenStreetMap contributors\ngithub.com/prettymaps-go/prettymaps"

func (c Credit) withDefaults() Credit {
	if c.Text == "" {
		c.Text = DefaultCreditText
	}
	if c.X == nil {
		c.X = params.Ptr(0.0)
	}
	if c.Y == nil {
		c.Y = params.Ptr(1.0)
	}
	if c.FontSize <= 0 {
		c.FontSize = 8
	}
	if c.Color == "" {
		c.Color = "#000000"
	}
	if c.Box == nil {
		c.Box = params.Ptr(true)
	}
	return c
}

// Point returns the caption anchor in planar coordinates.
func (c Credit) Point(b orb.Bound) orb.Point {
	x := params.Value(c.X, 0)
	y := params.Value(c.Y, 1)
	return orb.Point{b.Min.X() + x*(b.Max.X()-b.Min.X()), b.Min.Y() + y*(b.Max.Y()-b.Min.Y())}
}

// NewFrame builds the frame around a planar perimeter. The background is the perimeter's
// bounding box scaled by the background pad (default 1.1) about its centre, then grown by
// the background dilate amount.
func NewFrame(proj geo.Projection, perimeter orb.Geometry, cfg params.Params) (Frame, error) {
	if perimeter == nil || perimeter.Bound().IsEmpty() {
		return Frame{}, fmt.Errorf("perimeter is empty")
	}
	bg, _ := cfg.Style.Get(params.BackgroundLayer)
	background := Background(perimeter.Bound(), params.Value(bg.Pad, DefaultPad), params.Value(bg.Dilate, 0))
	return Frame{
		Projection: proj,
		Bound:      background.Bound(),
		Perimeter:  perimeter,
		Background: background,
	}, nil
}

// NewMultiFrame builds one frame around several planar perimeters. Each panel keeps the
// background box of its own parameters; the frame bound covers all of them.
func NewMultiFrame(proj geo.Projection, perimeters []orb.Geometry, cfgs []params.Params) (Frame, error) {
	if len(perimeters) == 0 || len(perimeters) != len(cfgs) {
		return Frame{}, fmt.Errorf("need one parameter set per perimeter")
	}
	f := Frame{Projection: proj}
	for i, perimeter := range perimeters {
		single, err := NewFrame(proj, perimeter, cfgs[i])
		if err != nil {
			return Frame{}, fmt.Errorf("subplot %d: %w", i, err)
		}
		if i == 0 {
			f.Bound = single.Bound
		} else {
			f.Bound = f.Bound.Union(single.Bound)
		}
		f.Multi = append(f.Multi, Panel{Perimeter: single.Perimeter, Background: single.Background})
	}
	f.Background = f.Bound.ToPolygon()
	return f, nil
}

// DefaultPad scales the perimeter box into the background box.
const DefaultPad = 1.1

// Background returns box scaled by pad about its centre and grown by dilate.
func Background(box orb.Bound, pad, dilate float64) orb.Polygon {
	c := box.Center()
	hw := (box.Max.X() - box.Min.X()) / 2 * pad
	hh := (box.Max.Y() - box.Min.Y()) / 2 * pad
	hw = max(hw+dilate, 0)
	hh = max(hh+dilate, 0)
	b := orb.Bound{Min: orb.Point{c.X() - hw, c.Y() - hh}, Max: orb.Point{c.X() + hw, c.Y() + hh}}
	return b.ToPolygon()
}
