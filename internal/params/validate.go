package params

import (
	"math"
	"regexp"
	"slices"
	"strings"
)

var osmIDPattern = regexp.MustCompile(`^[NWR][0-9]+$`)

// hatchRunes are the pattern characters understood by the renderers.
const hatchRunes = `/\|-+xoO.*`

var lineStyles = []string{"", "-", "--", ":", "-.", "solid", "dashed", "dotted", "dashdot"}

// Validate checks every layer and style leaf and returns the first ConfigurationError found.
func Validate(p Params) error {
	if p.Radius != nil && (!finite(*p.Radius) || *p.Radius <= 0) {
		return configErr("radius", "must be a positive number of metres, got %v", *p.Radius)
	}
	if p.Dilate != nil && !finite(*p.Dilate) {
		return configErr("dilate", "must be a finite number")
	}
	for name, l := range p.Layers.All() {
		if err := validateLayer("layers."+name, name, l); err != nil {
			return err
		}
	}
	for name, s := range p.Style.All() {
		if err := validateStyle("style."+name, s); err != nil {
			return err
		}
	}
	return nil
}

func validateLayer(key, name string, l Layer) error {
	if strings.TrimSpace(name) == "" {
		return configErr(key, "layer name is empty")
	}
	if l.Disabled {
		return nil
	}
	for attr, v := range l.Tags {
		tk := key + ".tags." + attr
		if strings.TrimSpace(attr) == "" {
			return configErr(key+".tags", "empty attribute name")
		}
		if !v.Any && !v.Removed && len(v.Values) == 0 {
			return configErr(tk, "needs true, a value, or a list of values")
		}
		for _, val := range v.Values {
			if strings.ContainsAny(val, `"`+"\n") {
				return configErr(tk, "value %q contains a quote or newline", val)
			}
		}
	}
	if l.OSMID != nil && !osmIDPattern.MatchString(*l.OSMID) {
		return configErr(key+".osmid", "must look like N123, W123 or R123, got %q", *l.OSMID)
	}
	if l.CustomFilter != nil && strings.Contains(*l.CustomFilter, ";") {
		return configErr(key+".custom_filter", "must be a filter expression, not a statement")
	}
	if l.Width != nil {
		if l.Width.Uniform != nil && (!finite(*l.Width.Uniform) || *l.Width.Uniform < 0) {
			return configErr(key+".width", "must be a non-negative number")
		}
		for class, w := range l.Width.ByClass {
			if !finite(w) || w < 0 {
				return configErr(key+".width."+class, "must be a non-negative number")
			}
		}
	}
	for field, v := range map[string]*float64{
		"dilate":              l.Dilate,
		"dilate_points":       l.DilatePoints,
		"dilate_lines":        l.DilateLines,
		"perimeter_tolerance": l.Tolerance,
	} {
		if v != nil && !finite(*v) {
			return configErr(key+"."+field, "must be a finite number")
		}
	}
	if l.Tolerance != nil && *l.Tolerance < 0 {
		return configErr(key+".perimeter_tolerance", "must not be negative")
	}
	return nil
}

func validateStyle(key string, s Style) error {
	for field, c := range map[string]*string{"fc": s.FaceColor, "ec": s.EdgeColor, "hatch_c": s.HatchColor} {
		if c == nil {
			continue
		}
		if _, err := ParseColor(*c); err != nil {
			return configErr(key+"."+field, "%v", err)
		}
	}
	for i, c := range s.Palette {
		if _, err := ParseColor(c); err != nil {
			return configErr(key+".palette", "entry %d: %v", i, err)
		}
	}
	if s.LineWidth != nil && (!finite(*s.LineWidth) || *s.LineWidth < 0) {
		return configErr(key+".lw", "must be a non-negative number")
	}
	if s.Alpha != nil && (!finite(*s.Alpha) || *s.Alpha < 0 || *s.Alpha > 1) {
		return configErr(key+".alpha", "must be between 0 and 1")
	}
	if s.ZOrder != nil && !finite(*s.ZOrder) {
		return configErr(key+".zorder", "must be a finite number")
	}
	if s.Hatch != nil {
		for _, r := range *s.Hatch {
			if !strings.ContainsRune(hatchRunes, r) {
				return configErr(key+".hatch", "unsupported pattern character %q (use %s)", r, hatchRunes)
			}
		}
	}
	if s.LineStyle != nil && !slices.Contains(lineStyles, *s.LineStyle) {
		return configErr(key+".ls", "unsupported line style %q", *s.LineStyle)
	}
	for _, d := range s.Dashes {
		if !finite(d) || d < 0 {
			return configErr(key+".dashes", "dash lengths must be non-negative")
		}
	}
	if s.Pad != nil && (!finite(*s.Pad) || *s.Pad <= 0) {
		return configErr(key+".pad", "must be a positive scale factor")
	}
	if s.Dilate != nil && !finite(*s.Dilate) {
		return configErr(key+".dilate", "must be a finite number")
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
