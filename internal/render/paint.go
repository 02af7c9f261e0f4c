package render

import (
	"fmt"
	"image/color"

	"github.com/prettymaps-go/prettymaps/internal/params"
)

// DefaultLineWidth is the stroke width in points of line features whose style sets none.
const DefaultLineWidth = 1.0

// paint is a style resolved to pixel units and colours.
type paint struct {
	fill    color.NRGBA
	hasFill bool

	edge      color.NRGBA
	edgeWidth float64

	// line colour and width for line features.
	line      color.NRGBA
	lineWidth float64
	dashes    []float64

	hatch      string
	hatchColor color.NRGBA
}

// resolvePaint converts s to pixels at dpi. face is the chosen fill colour (fc or a
// palette pick), empty for none.
func resolvePaint(s params.Style, face string, dpi float64) (paint, error) {
	var p paint
	alpha := params.Value(s.Alpha, 1)
	pt := dpi / 72

	if face != "" && params.Value(s.Fill, true) {
		c, err := params.ParseColor(face)
		if err != nil {
			return p, fmt.Errorf("fc: %w", err)
		}
		p.fill = params.WithAlpha(c, alpha)
		p.hasFill = p.fill.A > 0
	}

	edge := face
	if s.EdgeColor != nil {
		edge = *s.EdgeColor
	}
	if edge == "" {
		edge = "#000000"
	}
	ec, err := params.ParseColor(edge)
	if err != nil {
		return p, fmt.Errorf("ec: %w", err)
	}
	ec = params.WithAlpha(ec, alpha)
	p.edge = ec
	p.edgeWidth = params.Value(s.LineWidth, 0) * pt
	p.line = ec
	p.lineWidth = params.Value(s.LineWidth, DefaultLineWidth) * pt
	p.dashes = dashPattern(s, p.lineWidth)

	if s.Hatch != nil && *s.Hatch != "" {
		p.hatch = *s.Hatch
		hc := edge
		if s.HatchColor != nil {
			hc = *s.HatchColor
		}
		c, err := params.ParseColor(hc)
		if err != nil {
			return p, fmt.Errorf("hatch_c: %w", err)
		}
		p.hatchColor = params.WithAlpha(c, alpha)
	}
	return p, nil
}

// faceColor returns the fill colour of a style: fc, or a palette pick.
func faceColor(s params.Style, pick func([]string) string) string {
	if s.FaceColor != nil {
		return *s.FaceColor
	}
	return pick(s.Palette)
}

// dashPattern returns on/off lengths in pixels, or nil for a solid line. Named styles
// scale with the line width.
func dashPattern(s params.Style, lw float64) []float64 {
	if len(s.Dashes) > 0 {
		out := make([]float64, 0, len(s.Dashes))
		var total float64
		for _, d := range s.Dashes {
			out = append(out, d*lw)
			total += d
		}
		if total == 0 {
			return nil
		}
		return out
	}
	var unit []float64
	switch params.Value(s.LineStyle, "") {
	case "--", "dashed":
		unit = []float64{3.7, 1.6}
	case ":", "dotted":
		unit = []float64{1, 1.65}
	case "-.", "dashdot":
		unit = []float64{6.4, 1.6, 1, 1.6}
	default:
		return nil
	}
	w := max(lw, 1)
	out := make([]float64, len(unit))
	for i, u := range unit {
		out[i] = u * w
	}
	return out
}
