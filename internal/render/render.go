// Package render implements the drawing backends of the compositor: a PNG raster canvas
// and an SVG vector canvas.
package render

import (
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"

	"github.com/prettymaps-go/prettymaps/internal/compose"
)

// Defaults for Options.
const (
	DefaultSize = 12.0
	DefaultDPI  = 100.0
)

// Canvas is a compositor backend that can be written out.
type Canvas interface {
	compose.Canvas
	// Encode writes the drawing in the canvas format.
	Encode(w io.Writer) error
	// Format is "png" or "svg".
	Format() string
}

// Options sizes a canvas and seeds palette choices.
type Options struct {
	// Width and Height of the figure in inches.
	Width, Height float64
	// DPI converts inches and points to pixels.
	DPI float64
	// Seed makes palette picks reproducible.
	Seed uint64
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = DefaultSize
	}
	if o.Height <= 0 {
		o.Height = o.Width
	}
	if o.DPI <= 0 {
		o.DPI = DefaultDPI
	}
	return o
}

// Pixels returns the canvas size in pixels.
func (o Options) Pixels() (int, int) {
	o = o.withDefaults()
	return int(math.Round(o.Width * o.DPI)), int(math.Round(o.Height * o.DPI))
}

// New returns a canvas for format ("png" or "svg").
func New(format string, opts Options) (Canvas, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "png", "":
		return NewRaster(opts), nil
	case "svg":
		return NewSVG(opts), nil
	default:
		return nil, fmt.Errorf("unsupported output format %q (use png or svg)", format)
	}
}

// FormatFromPath returns the canvas format implied by a file name.
func FormatFromPath(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png":
		return "png", nil
	case ".svg":
		return "svg", nil
	default:
		return "", fmt.Errorf("cannot infer output format from %q (use .png or .svg)", path)
	}
}

// viewport maps planar metres to pixels, preserving aspect ratio and centring the frame.
type viewport struct {
	b      orb.Bound
	scale  float64
	ox, oy float64
	minX   float64
	maxY   float64
	w, h   int
}

func newViewport(b orb.Bound, w, h int) viewport {
	bw := b.Max.X() - b.Min.X()
	bh := b.Max.Y() - b.Min.Y()
	scale := 1.0
	if bw > 0 && bh > 0 {
		scale = math.Min(float64(w)/bw, float64(h)/bh)
	}
	return viewport{
		b:     b,
		scale: scale,
		ox:    (float64(w) - bw*scale) / 2,
		oy:    (float64(h) - bh*scale) / 2,
		minX:  b.Min.X(),
		maxY:  b.Max.Y(),
		w:     w,
		h:     h,
	}
}

func (v viewport) bound() orb.Bound { return v.b }

func (v viewport) px(p orb.Point) orb.Point {
	return orb.Point{v.ox + (p.X()-v.minX)*v.scale, v.oy + (v.maxY-p.Y())*v.scale}
}

func (v viewport) path(pts []orb.Point) []orb.Point {
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		out[i] = v.px(p)
	}
	return out
}

// picker chooses palette colours reproducibly per layer.
type picker struct {
	rng *rand.Rand
}

func newPicker(seed uint64, layer string) picker {
	h := fnv.New64a()
	_, _ = h.Write([]byte(layer))
	return picker{rng: rand.New(rand.NewPCG(seed, h.Sum64()))}
}

func (p picker) pick(palette []string) string {
	if len(palette) == 0 {
		return ""
	}
	return palette[p.rng.IntN(len(palette))]
}

// lines collects the line strings of g.
func lines(g orb.Geometry) []orb.LineString {
	switch v := g.(type) {
	case orb.LineString:
		return []orb.LineString{v}
	case orb.MultiLineString:
		return v
	case orb.Collection:
		var out []orb.LineString
		for _, c := range v {
			out = append(out, lines(c)...)
		}
		return out
	}
	return nil
}

// points collects the points of g.
func points(g orb.Geometry) []orb.Point {
	switch v := g.(type) {
	case orb.Point:
		return []orb.Point{v}
	case orb.MultiPoint:
		return v
	case orb.Collection:
		var out []orb.Point
		for _, c := range v {
			out = append(out, points(c)...)
		}
		return out
	}
	return nil
}
