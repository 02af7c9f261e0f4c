package render

import (
	"math"
	"strings"

	"github.com/paulmach/orb"

	"github.com/prettymaps-go/prettymaps/internal/geo"
)

// hatchDensity is the number of pattern lines per inch for a single pattern character.
const hatchDensity = 6

// hatchMark sizes the marks drawn by a pattern character relative to the spacing.
type hatchMark struct {
	radius float64
	filled bool
}

var hatchMarks = map[rune]hatchMark{
	'o': {radius: 0.2},
	'O': {radius: 0.35},
	'.': {radius: 0.1, filled: true},
	'*': {radius: 1.0 / 6, filled: true},
}

// hatchSpacing returns the distance in pixels between repeats of a pattern character that
// appears count times.
func hatchSpacing(dpi float64, count int) float64 {
	return dpi / float64(hatchDensity*count)
}

// hatchShapes returns the pixel pattern of hatch over b with lines of width lw. The pattern
// is aligned to multiples of its spacing so it tiles.
func hatchShapes(hatch string, b orb.Bound, dpi, lw float64) orb.MultiPolygon {
	var out orb.MultiPolygon
	x0, y0 := b.Min.X(), b.Min.Y()
	x1, y1 := b.Max.X(), b.Max.Y()

	family := func(s float64, from, to float64, seg func(c float64) (orb.Point, orb.Point)) {
		start := (math.Floor(from/s) - 1) * s
		for c := start; c <= to; c += s {
			p0, p1 := seg(c)
			if q := quad(p0, p1, lw); q != nil {
				out = append(out, q)
			}
		}
	}

	for _, ch := range uniqueRunes(hatch) {
		n := strings.Count(hatch, string(ch))
		s := hatchSpacing(dpi, n)
		vertical := func(c float64) (orb.Point, orb.Point) { return orb.Point{c, y0}, orb.Point{c, y1} }
		horizontal := func(c float64) (orb.Point, orb.Point) { return orb.Point{x0, c}, orb.Point{x1, c} }
		rising := func(c float64) (orb.Point, orb.Point) { return orb.Point{c - y1, y1}, orb.Point{c - y0, y0} }
		falling := func(c float64) (orb.Point, orb.Point) { return orb.Point{c + y0, y0}, orb.Point{c + y1, y1} }

		switch ch {
		case '|':
			family(s, x0, x1, vertical)
		case '-':
			family(s, y0, y1, horizontal)
		case '+':
			family(s, x0, x1, vertical)
			family(s, y0, y1, horizontal)
		case '/':
			family(s, x0+y0, x1+y1, rising)
		case '\\':
			family(s, x0-y1, x1-y0, falling)
		case 'x':
			family(s, x0+y0, x1+y1, rising)
			family(s, x0-y1, x1-y0, falling)
		default:
			m, ok := hatchMarks[ch]
			if !ok {
				continue
			}
			radius := m.radius * s
			for y := (math.Floor(y0/s) - 1) * s; y <= y1+s; y += s {
				for x := (math.Floor(x0/s) - 1) * s; x <= x1+s; x += s {
					c := orb.Point{x, y}
					if m.filled {
						out = append(out, geo.Circle(c, radius, 8))
					} else {
						out = append(out, annulus(c, radius, lw, 12))
					}
				}
			}
		}
	}
	return out
}

func uniqueRunes(s string) []rune {
	var out []rune
	seen := map[rune]bool{}
	for _, r := range s {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}
