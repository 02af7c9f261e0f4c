package render

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/paulmach/orb"

	"github.com/prettymaps-go/prettymaps/internal/compose"
	"github.com/prettymaps-go/prettymaps/internal/logging"
	"github.com/prettymaps-go/prettymaps/internal/params"
)

const (
	svgNS        = "http://www.w3.org/2000/svg"
	perimeterRef = "perimeter-clip"
)

var unsafeID = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SVG builds an SVG document. Layers become groups named after them; hatches become
// patterns and the perimeter a clip path.
type SVG struct {
	opts Options
	doc  *etree.Document
	root *etree.Element
	defs *etree.Element
	vp   viewport
	// clipped records which panels have a clip path.
	clipped     map[int]bool
	backgrounds int
}

// NewSVG returns a vector canvas.
func NewSVG(opts Options) *SVG {
	opts = opts.withDefaults()
	opts.Logger = logging.OrDiscard(opts.Logger)
	return &SVG{opts: opts}
}

// Format implements Canvas.
func (c *SVG) Format() string { return "svg" }

// Document returns the document, nil before Begin.
func (c *SVG) Document() *etree.Document { return c.doc }

// Begin creates the document root and a clip path per panel perimeter.
func (c *SVG) Begin(f compose.Frame) error {
	w, h := c.opts.Pixels()
	if w <= 0 || h <= 0 {
		return fmt.Errorf("invalid canvas size %dx%d", w, h)
	}
	c.vp = newViewport(f.Bound, w, h)

	c.doc = etree.NewDocument()
	c.doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	c.root = c.doc.CreateElement("svg")
	c.root.CreateAttr("xmlns", svgNS)
	c.root.CreateAttr("width", num(c.opts.Width)+"in")
	c.root.CreateAttr("height", num(c.opts.Height)+"in")
	c.root.CreateAttr("viewBox", fmt.Sprintf("0 0 %d %d", w, h))
	c.defs = c.root.CreateElement("defs")
	c.clipped = make(map[int]bool)
	c.backgrounds = 0

	for i, panel := range f.Panels() {
		if panel.Perimeter == nil {
			continue
		}
		cp := c.defs.CreateElement("clipPath")
		cp.CreateAttr("id", clipID(i))
		p := cp.CreateElement("path")
		p.CreateAttr("d", pathData(c.vp.pixelPolygons(panel.Perimeter)))
		p.CreateAttr("clip-rule", "nonzero")
		c.clipped[i] = true
	}
	return nil
}

// DrawBackground fills the background box.
func (c *SVG) DrawBackground(g orb.Geometry, s params.Style) error {
	pick := newPicker(c.opts.Seed, params.BackgroundLayer).pick
	p, err := resolvePaint(s, faceColor(s, pick), c.opts.DPI)
	if err != nil {
		return err
	}
	id := params.BackgroundLayer
	if c.backgrounds > 0 {
		id = fmt.Sprintf("%s-%d", params.BackgroundLayer, c.backgrounds)
	}
	c.backgrounds++
	group := c.root.CreateElement("g")
	group.CreateAttr("id", id)
	c.polygons(group, id, c.vp.pixelPolygons(g), p)
	return nil
}

// DrawLayer adds a group with one element per shape.
func (c *SVG) DrawLayer(l compose.Layer) error {
	pick := newPicker(c.opts.Seed, l.Name).pick
	shared := ""
	if l.Union {
		shared = faceColor(l.Style, pick)
	}

	key := unsafeID.ReplaceAllString(l.Name, "_")
	if l.Subplot > 0 {
		key = fmt.Sprintf("%d-%s", l.Subplot, key)
	}
	group := c.root.CreateElement("g")
	group.CreateAttr("id", "layer-"+key)
	if l.Clip && c.clipped[l.Subplot] {
		group.CreateAttr("clip-path", "url(#"+clipID(l.Subplot)+")")
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
			c.polygons(group, key, polys, p)
		}
		for _, ls := range lines(g) {
			if p.lineWidth <= 0 {
				continue
			}
			el := group.CreateElement("path")
			el.CreateAttr("d", polylineData(c.vp.path(ls)))
			el.CreateAttr("fill", "none")
			setColor(el, "stroke", p.line)
			el.CreateAttr("stroke-width", num(p.lineWidth))
			el.CreateAttr("stroke-linecap", "round")
			el.CreateAttr("stroke-linejoin", "round")
			if len(p.dashes) > 0 {
				el.CreateAttr("stroke-dasharray", nums(p.dashes))
			}
		}
		col := p.fill
		if !p.hasFill {
			col = p.line
		}
		for _, pt := range points(g) {
			q := c.vp.px(pt)
			el := group.CreateElement("circle")
			el.CreateAttr("cx", num(q.X()))
			el.CreateAttr("cy", num(q.Y()))
			el.CreateAttr("r", num(pointRadius*c.opts.DPI/72))
			setColor(el, "fill", col)
		}
	}
	c.labels(group, l.Labels)
	return nil
}

func (c *SVG) labels(group *etree.Element, labels []compose.Label) {
	for _, l := range labels {
		at := c.vp.px(l.At)
		el := group.CreateElement("text")
		el.CreateAttr("class", "label")
		el.CreateAttr("x", num(at.X()))
		el.CreateAttr("y", num(at.Y()))
		el.CreateAttr("text-anchor", "middle")
		el.CreateAttr("dominant-baseline", "middle")
		el.CreateAttr("font-family", "Go, sans-serif")
		el.CreateAttr("font-size", num(compose.LabelFontSize*c.opts.DPI/72))
		el.CreateAttr("fill", "#000000")
		el.SetText(l.Text)
	}
}

func clipID(panel int) string {
	if panel == 0 {
		return perimeterRef
	}
	return fmt.Sprintf("%s-%d", perimeterRef, panel)
}

func (c *SVG) polygons(group *etree.Element, key string, polys []orb.Polygon, p paint) {
	d := pathData(polys)
	if d == "" {
		return
	}
	if p.hasFill || p.edgeWidth > 0 {
		el := group.CreateElement("path")
		el.CreateAttr("d", d)
		el.CreateAttr("fill-rule", "nonzero")
		if p.hasFill {
			setColor(el, "fill", p.fill)
		} else {
			el.CreateAttr("fill", "none")
		}
		if p.edgeWidth > 0 && p.edge.A > 0 {
			setColor(el, "stroke", p.edge)
			el.CreateAttr("stroke-width", num(p.edgeWidth))
			el.CreateAttr("stroke-linejoin", "round")
		}
	}
	if p.hatch != "" {
		el := group.CreateElement("path")
		el.CreateAttr("d", d)
		el.CreateAttr("fill", "url(#"+c.hatchPattern(key, p)+")")
	}
}

// hatchPattern returns the id of the tile for the hatch of a layer, creating it once.
func (c *SVG) hatchPattern(key string, p paint) string {
	id := "hatch-" + key
	if c.defs.FindElement("pattern[@id='"+id+"']") != nil {
		return id
	}
	tile := c.opts.DPI / hatchDensity
	pat := c.defs.CreateElement("pattern")
	pat.CreateAttr("id", id)
	pat.CreateAttr("patternUnits", "userSpaceOnUse")
	pat.CreateAttr("width", num(tile))
	pat.CreateAttr("height", num(tile))
	bound := orb.Bound{Max: orb.Point{tile, tile}}
	el := pat.CreateElement("path")
	el.CreateAttr("d", pathData(hatchShapes(p.hatch, bound, c.opts.DPI, c.opts.DPI/72)))
	setColor(el, "fill", p.hatchColor)
	return id
}

// DrawCredit adds the caption as a text element over an optional box.
func (c *SVG) DrawCredit(cr compose.Credit) error {
	col, err := params.ParseColor(cr.Color)
	if err != nil {
		return err
	}
	size := cr.FontSize * c.opts.DPI / 72
	rows := strings.Split(cr.Text, "\n")
	lineHeight := size * 1.2
	pad := lineHeight / 3
	width := 0.0
	for _, r := range rows {
		// Average glyph advance of a proportional sans-serif face.
		width = max(width, float64(len([]rune(r)))*size*0.55)
	}
	anchor := c.vp.px(cr.Point(c.vp.bound()))

	group := c.root.CreateElement("g")
	group.CreateAttr("id", "credit")
	if params.Value(cr.Box, true) {
		box := group.CreateElement("rect")
		box.CreateAttr("x", num(anchor.X()))
		box.CreateAttr("y", num(anchor.Y()))
		box.CreateAttr("width", num(width+2*pad))
		box.CreateAttr("height", num(lineHeight*float64(len(rows))+2*pad))
		box.CreateAttr("fill", "#ffffff")
		box.CreateAttr("stroke", "#000000")
		box.CreateAttr("stroke-width", "1")
	}
	text := group.CreateElement("text")
	text.CreateAttr("font-family", "Go, sans-serif")
	text.CreateAttr("font-size", num(size))
	setColor(text, "fill", col)
	for i, r := range rows {
		span := text.CreateElement("tspan")
		span.CreateAttr("x", num(anchor.X()+pad))
		span.CreateAttr("y", num(anchor.Y()+pad+size+float64(i)*lineHeight))
		span.SetText(r)
	}
	return nil
}

// Encode writes the indented document.
func (c *SVG) Encode(w io.Writer) error {
	if c.doc == nil {
		return fmt.Errorf("nothing drawn")
	}
	c.doc.Indent(2)
	_, err := c.doc.WriteTo(w)
	return err
}

func setColor(el *etree.Element, attr string, col color.NRGBA) {
	el.CreateAttr(attr, fmt.Sprintf("#%02x%02x%02x", col.R, col.G, col.B))
	if col.A < 0xff {
		el.CreateAttr(attr+"-opacity", num(float64(col.A)/255))
	}
}

func pathData(polys []orb.Polygon) string {
	var b strings.Builder
	for _, p := range polys {
		for _, r := range p {
			if len(r) < 3 {
				continue
			}
			writePoints(&b, r)
			b.WriteString("Z")
		}
	}
	return b.String()
}

func polylineData(pts []orb.Point) string {
	var b strings.Builder
	writePoints(&b, pts)
	return b.String()
}

func writePoints(b *strings.Builder, pts []orb.Point) {
	for i, pt := range pts {
		if i == 0 {
			b.WriteString("M")
		} else {
			b.WriteString("L")
		}
		b.WriteString(num(pt.X()))
		b.WriteByte(' ')
		b.WriteString(num(pt.Y()))
	}
}

func num(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

func nums(vs []float64) string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = num(v)
	}
	return strings.Join(out, " ")
}
