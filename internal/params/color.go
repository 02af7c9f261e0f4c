package params

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/colornames"
)

// ParseColor converts a style colour to a non-premultiplied colour. It accepts "#rgb", "#rrggbb", "#rrggbbaa",
// SVG colour names and "none" (fully transparent).
func ParseColor(s string) (color.NRGBA, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return color.NRGBA{}, fmt.Errorf("empty colour")
	}
	if v == "none" || v == "transparent" {
		return color.NRGBA{}, nil
	}
	if c, ok := colornames.Map[v]; ok {
		return color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A}, nil
	}
	if !strings.HasPrefix(v, "#") {
		return color.NRGBA{}, fmt.Errorf("unknown colour %q", s)
	}

	alpha := uint8(0xff)
	if len(v) == 9 {
		a, err := strconv.ParseUint(v[7:], 16, 8)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("invalid alpha in colour %q", s)
		}
		alpha = uint8(a)
		v = v[:7]
	}
	c, err := colorful.Hex(v)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: alpha}, nil
}

// WithAlpha scales the opacity of c by alpha in [0, 1].
func WithAlpha(c color.NRGBA, alpha float64) color.NRGBA {
	a := float64(c.A) * alpha
	if a < 0 {
		a = 0
	}
	if a > 255 {
		a = 255
	}
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: uint8(a + 0.5)}
}
