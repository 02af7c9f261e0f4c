package render

import (
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/prettymaps-go/prettymaps/internal/compose"
	"github.com/prettymaps-go/prettymaps/internal/params"
)

var (
	goFontOnce sync.Once
	goFont     *opentype.Font
	goFontErr  error
)

// fontFace returns Go Regular at size points, or a fixed bitmap face when the font cannot
// be loaded.
func fontFace(size, dpi float64) font.Face {
	goFontOnce.Do(func() {
		goFont, goFontErr = opentype.Parse(goregular.TTF)
	})
	if goFontErr != nil {
		return basicfont.Face7x13
	}
	face, err := opentype.NewFace(goFont, &opentype.FaceOptions{
		Size:    size,
		DPI:     dpi,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return basicfont.Face7x13
	}
	return face
}

// DrawCredit writes the caption with its top-left corner at the credit anchor, inside a
// white box with a black border when Box is set.
func (c *Raster) DrawCredit(cr compose.Credit) error {
	col, err := params.ParseColor(cr.Color)
	if err != nil {
		return err
	}
	face := fontFace(cr.FontSize, c.opts.DPI)
	defer face.Close()

	rows := strings.Split(cr.Text, "\n")
	m := face.Metrics()
	lineHeight := m.Height.Ceil()
	ascent := m.Ascent.Ceil()
	width := 0
	for _, l := range rows {
		width = max(width, font.MeasureString(face, l).Ceil())
	}
	pad := lineHeight / 3
	boxW := width + 2*pad
	boxH := lineHeight*len(rows) + 2*pad

	anchor := c.vp.px(cr.Point(c.vp.bound()))
	x := min(max(int(anchor.X()), 0), max(c.img.Bounds().Dx()-boxW, 0))
	y := min(max(int(anchor.Y()), 0), max(c.img.Bounds().Dy()-boxH, 0))
	box := image.Rect(x, y, x+boxW, y+boxH)

	if params.Value(cr.Box, true) {
		draw.Draw(c.img, box, image.NewUniform(color.White), image.Point{}, draw.Src)
		border(c.img, box, color.Black)
	}
	d := &font.Drawer{Dst: c.img, Src: image.NewUniform(col), Face: face}
	for i, l := range rows {
		d.Dot = fixed.P(x+pad, y+pad+ascent+i*lineHeight)
		d.DrawString(l)
	}
	return nil
}

func border(img draw.Image, r image.Rectangle, col color.Color) {
	src := image.NewUniform(col)
	for _, edge := range []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1),
		image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y),
		image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y),
	} {
		draw.Draw(img, edge, src, image.Point{}, draw.Src)
	}
}

// drawLabels writes legend text centred on each label point.
func (c *Raster) drawLabels(labels []compose.Label) {
	if len(labels) == 0 {
		return
	}
	face := fontFace(compose.LabelFontSize, c.opts.DPI)
	defer face.Close()
	ascent := face.Metrics().Ascent.Ceil()
	d := &font.Drawer{Dst: c.img, Src: image.NewUniform(color.Black), Face: face}
	for _, l := range labels {
		at := c.vp.px(l.At)
		w := font.MeasureString(face, l.Text).Ceil()
		d.Dot = fixed.P(int(at.X())-w/2, int(at.Y())+ascent/2)
		d.DrawString(l.Text)
	}
}
