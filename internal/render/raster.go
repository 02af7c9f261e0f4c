package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"golang.org/x/image/vector"

	"github.com/prettymaps-go/prettymaps/internal/compose"
	"github.com/prettymaps-go/prettymaps/internal/geo"
	"github.com/prettymaps-go/prettymaps/internal/logging"
	"github.com/prettymaps-go/prettymaps/internal/params"
)

// pointRadius is the disc radius in points of point features that were not dilated.
const pointRadius = 2.0

// Raster draws onto an RGBA image and encodes it as PNG.
type Raster struct {
	opts Options
	img  *image.RGBA
	vp   viewport
	// clips holds the perimeter coverage of every frame panel.
	clips []*image.Alpha
}

// noClip draws without a perimeter mask.
const noClip = -1

// NewRaster returns a raster canvas. The image is allocated by Begin.
func NewRaster(opts Options) *Raster {
	opts = opts.withDefaults()
	opts.Logger = logging.OrDiscard(opts.Logger)
	return &Raster{opts: opts}
}

// Format implements Canvas.
func (c *Raster) Format() string { return "png" }

// Image returns the drawing, nil before Begin.
func (c *Raster) Image() *image.RGBA { return c.img }

// Begin allocates a transparent image and the perimeter clip mask of every panel.
func (c *Raster) Begin(f compose.Frame) error {
	w, h := c.opts.Pixels()
	if w <= 0 || h <= 0 {
		return fmt.Errorf("invalid canvas size %dx%d", w, h)
	}
	c.img = image.NewRGBA(image.Rect(0, 0, w, h))
	c.vp = newViewport(f.Bound, w, h)
	c.clips = nil
	for _, panel := range f.Panels() {
		if panel.Perimeter == nil {
			c.clips = append(c.clips, nil)
			continue
		}
		mask, r := c.coverage(c.vp.pixelPolygons(panel.Perimeter))
		full := image.NewAlpha(c.img.Bounds())
		if mask != nil {
			draw.Draw(full, r, mask, image.Point{}, draw.Src)
		}
		c.clips = append(c.clips, full)
	}
	c.opts.Logger.Debug("raster canvas ready", "width", w, "height", h, "scale", c.vp.scale)
	return nil
}

// DrawBackground fills the background box.
func (c *Raster) DrawBackground(g orb.Geometry, s params.Style) error {
	pick := newPicker(c.opts.Seed, params.BackgroundLayer).pick
	p, err := resolvePaint(s, faceColor(s, pick), c.opts.DPI)
	if err != nil {
		return err
	}
	polys := c.vp.pixelPolygons(g)
	c.fill(polys, p, noClip)
	c.outline(polys, p, noClip)
	return nil
}

// DrawLayer draws every shape of l. Polygons are filled, hatched and outlined; lines are
// stroked; points become small discs. Labels go on top.
func (c *Raster) DrawLayer(l compose.Layer) error {
	pick := newPicker(c.opts.Seed, l.Name).pick
	clipTo := noClip
	if l.Clip {
		clipTo = l.Subplot
	}
	shared := ""
	if l.Union {
		shared = faceColor(l.Style, pick)
	}
	for _, g := range l.Shapes {
		face := shared
		if !l.Union {
			face = faceColor(l.Style, pick)
		}
		p, err := resolvePaint(l.Style, face, c.opts.DPI)
		if err != nil {
			return err
		}

		if polys := c.vp.pixelPolygons(g); len(polys) > 0 {
			c.fill(polys, p, clipTo)
			c.outline(polys, p, clipTo)
		}
		for _, ls := range lines(g) {
			shape := stroke(c.vp.path(ls), p.lineWidth, p.dashes)
			c.paint(shape, p.line, clipTo)
		}
		if pts := points(g); len(pts) > 0 {
			col := p.fill
			if !p.hasFill {
				col = p.line
			}
			r := pointRadius * c.opts.DPI / 72
			var discs []orb.Polygon
			for _, pt := range pts {
				discs = append(discs, geo.Circle(c.vp.px(pt), r, 16))
			}
			c.paint(discs, col, clipTo)
		}
	}
	c.drawLabels(l.Labels)
	return nil
}

func (c *Raster) fill(polys []orb.Polygon, p paint, clipTo int) {
	if !p.hasFill && p.hatch == "" {
		return
	}
	mask, r := c.coverage(polys)
	if mask == nil {
		return
	}
	c.applyClip(mask, r, clipTo)
	if p.hasFill {
		c.compositeMask(mask, r, p.fill)
	}
	if p.hatch != "" {
		lw := c.opts.DPI / 72
		hm, hr := c.coverage(hatchShapes(p.hatch, rectBound(r), c.opts.DPI, lw))
		if hm == nil {
			return
		}
		intersectMask(hm, hr, mask, r)
		c.compositeMask(hm, hr, p.hatchColor)
	}
}

func (c *Raster) outline(polys []orb.Polygon, p paint, clipTo int) {
	if p.edgeWidth <= 0 || p.edge.A == 0 {
		return
	}
	var shape orb.MultiPolygon
	for _, poly := range polys {
		for _, ring := range poly {
			shape = append(shape, stroke(closed(ring), p.edgeWidth, nil)...)
		}
	}
	c.paint(shape, p.edge, clipTo)
}

func (c *Raster) paint(polys []orb.Polygon, col color.NRGBA, clipTo int) {
	if len(polys) == 0 || col.A == 0 {
		return
	}
	mask, r := c.coverage(polys)
	if mask == nil {
		return
	}
	c.applyClip(mask, r, clipTo)
	c.compositeMask(mask, r, col)
}

// coverage rasterizes polys with the non-zero rule. The mask is indexed from (0, 0) and
// covers r in canvas coordinates.
func (c *Raster) coverage(polys []orb.Polygon) (*image.Alpha, image.Rectangle) {
	var b orb.Bound
	first := true
	for _, p := range polys {
		for _, ring := range p {
			if len(ring) == 0 {
				continue
			}
			if first {
				b = ring.Bound()
				first = false
				continue
			}
			b = b.Union(ring.Bound())
		}
	}
	if first {
		return nil, image.Rectangle{}
	}
	r := image.Rect(
		int(math.Floor(b.Min.X())), int(math.Floor(b.Min.Y())),
		int(math.Ceil(b.Max.X())), int(math.Ceil(b.Max.Y())),
	).Intersect(c.img.Bounds())
	if r.Empty() {
		return nil, image.Rectangle{}
	}

	limit := rectBound(r)
	z := vector.NewRasterizer(r.Dx(), r.Dy())
	for _, p := range polys {
		for _, ring := range p {
			ring = clip.Ring(limit, ring)
			if len(ring) < 3 {
				continue
			}
			ox, oy := float64(r.Min.X), float64(r.Min.Y)
			z.MoveTo(float32(ring[0].X()-ox), float32(ring[0].Y()-oy))
			for _, pt := range ring[1:] {
				z.LineTo(float32(pt.X()-ox), float32(pt.Y()-oy))
			}
			z.ClosePath()
		}
	}
	mask := image.NewAlpha(image.Rect(0, 0, r.Dx(), r.Dy()))
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	return mask, r
}

func (c *Raster) applyClip(mask *image.Alpha, r image.Rectangle, panel int) {
	if panel < 0 || panel >= len(c.clips) || c.clips[panel] == nil {
		return
	}
	m := c.clips[panel]
	intersectMask(mask, r, m, m.Bounds())
}

func (c *Raster) compositeMask(mask *image.Alpha, r image.Rectangle, col color.NRGBA) {
	draw.DrawMask(c.img, r, image.NewUniform(col), image.Point{}, mask, image.Point{}, draw.Over)
}

// intersectMask multiplies dst, covering dr, by the coverage of src, covering sr.
func intersectMask(dst *image.Alpha, dr image.Rectangle, src *image.Alpha, sr image.Rectangle) {
	for y := dr.Min.Y; y < dr.Max.Y; y++ {
		for x := dr.Min.X; x < dr.Max.X; x++ {
			i := dst.PixOffset(x-dr.Min.X, y-dr.Min.Y)
			if dst.Pix[i] == 0 {
				continue
			}
			var s uint16
			if (image.Point{X: x, Y: y}).In(sr) {
				s = uint16(src.Pix[src.PixOffset(x-sr.Min.X, y-sr.Min.Y)])
			}
			dst.Pix[i] = uint8(uint16(dst.Pix[i]) * s / 255)
		}
	}
}

// Encode writes the image as PNG.
func (c *Raster) Encode(w io.Writer) error {
	if c.img == nil {
		return fmt.Errorf("nothing drawn")
	}
	return png.Encode(w, c.img)
}

func rectBound(r image.Rectangle) orb.Bound {
	return orb.Bound{
		Min: orb.Point{float64(r.Min.X), float64(r.Min.Y)},
		Max: orb.Point{float64(r.Max.X), float64(r.Max.Y)},
	}
}
