package params

import (
	"maps"
	"slices"
)

// Resolve merges overrides onto base and validates the result.
//
// Layers and styles merge per name: override leaves replace base leaves, missing leaves keep
// the base value, names only present in overrides are appended, and layers written as
// `false` in overrides are removed. Tag and width tables merge key by key.
func Resolve(base, overrides Params) (Params, error) {
	out := merge(base, overrides)
	for _, name := range out.Layers.Keys() {
		if l, _ := out.Layers.Get(name); l.Disabled {
			out.Layers.Delete(name)
		}
	}
	if err := Validate(out); err != nil {
		return Params{}, err
	}
	return out, nil
}

// Overlay merges over onto p without validating or dropping disabled layers. It is used to
// accumulate several override sources into one override set.
func Overlay(p, over Params) Params {
	return merge(p, over)
}

func merge(base, over Params) Params {
	out := Params{
		Circle: clonePtr(base.Circle),
		Radius: clonePtr(base.Radius),
		Dilate: clonePtr(base.Dilate),
	}
	if over.Circle != nil {
		out.Circle = clonePtr(over.Circle)
	}
	if over.Radius != nil {
		out.Radius = clonePtr(over.Radius)
	}
	if over.Dilate != nil {
		out.Dilate = clonePtr(over.Dilate)
	}

	for name, l := range base.Layers.All() {
		out.Layers.Set(name, cloneLayer(l))
	}
	for name, l := range over.Layers.All() {
		current, ok := out.Layers.Get(name)
		switch {
		case l.Disabled:
			out.Layers.Set(name, Layer{Disabled: true})
		case !ok || current.Disabled:
			out.Layers.Set(name, cloneLayer(l))
		default:
			out.Layers.Set(name, MergeLayer(current, l))
		}
	}

	for name, s := range base.Style.All() {
		out.Style.Set(name, cloneStyle(s))
	}
	for name, s := range over.Style.All() {
		if current, ok := out.Style.Get(name); ok {
			out.Style.Set(name, MergeStyle(current, s))
			continue
		}
		out.Style.Set(name, cloneStyle(s))
	}
	return out
}

// MergeLayer returns base with every field set in over replacing it.
func MergeLayer(base, over Layer) Layer {
	out := cloneLayer(base)
	out.Tags = mergeTags(base.Tags, over.Tags)
	out.Width = mergeWidth(base.Width, over.Width)
	pick(&out.CustomFilter, over.CustomFilter)
	pick(&out.OSMID, over.OSMID)
	pick(&out.Union, over.Union)
	pick(&out.Circle, over.Circle)
	pick(&out.Dilate, over.Dilate)
	pick(&out.DilatePoints, over.DilatePoints)
	pick(&out.DilateLines, over.DilateLines)
	pick(&out.Tolerance, over.Tolerance)
	return out
}

// MergeStyle returns base with every field set in over replacing it.
func MergeStyle(base, over Style) Style {
	out := cloneStyle(base)
	pick(&out.FaceColor, over.FaceColor)
	pick(&out.EdgeColor, over.EdgeColor)
	pick(&out.LineWidth, over.LineWidth)
	pick(&out.Alpha, over.Alpha)
	pick(&out.Hatch, over.Hatch)
	pick(&out.HatchColor, over.HatchColor)
	pick(&out.ZOrder, over.ZOrder)
	pick(&out.Fill, over.Fill)
	pick(&out.LineStyle, over.LineStyle)
	pick(&out.Pad, over.Pad)
	pick(&out.Dilate, over.Dilate)
	pick(&out.Legend, over.Legend)
	if over.Palette != nil {
		out.Palette = slices.Clone(over.Palette)
	}
	if over.Dashes != nil {
		out.Dashes = slices.Clone(over.Dashes)
	}
	return out
}

func mergeTags(base, over Tags) Tags {
	if base == nil && over == nil {
		return nil
	}
	out := make(Tags, len(base)+len(over))
	for k, v := range base {
		out[k] = cloneTag(v)
	}
	for k, v := range over {
		if v.Removed {
			delete(out, k)
			continue
		}
		out[k] = cloneTag(v)
	}
	return out
}

func mergeWidth(base, over *Width) *Width {
	if over == nil {
		return base.clone()
	}
	if base == nil || over.Uniform != nil || base.Uniform != nil {
		return over.clone()
	}
	out := base.clone()
	if out.ByClass == nil {
		out.ByClass = make(map[string]float64, len(over.ByClass))
	}
	maps.Copy(out.ByClass, over.ByClass)
	return out
}

func pick[T any](dst **T, over *T) {
	if over != nil {
		*dst = clonePtr(over)
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTag(v TagValue) TagValue {
	v.Values = slices.Clone(v.Values)
	return v
}

func cloneLayer(l Layer) Layer {
	out := l
	out.Tags = nil
	if l.Tags != nil {
		out.Tags = make(Tags, len(l.Tags))
		for k, v := range l.Tags {
			out.Tags[k] = cloneTag(v)
		}
	}
	out.Width = l.Width.clone()
	out.CustomFilter = clonePtr(l.CustomFilter)
	out.OSMID = clonePtr(l.OSMID)
	out.Union = clonePtr(l.Union)
	out.Circle = clonePtr(l.Circle)
	out.Dilate = clonePtr(l.Dilate)
	out.DilatePoints = clonePtr(l.DilatePoints)
	out.DilateLines = clonePtr(l.DilateLines)
	out.Tolerance = clonePtr(l.Tolerance)
	return out
}

func cloneStyle(s Style) Style {
	out := s
	out.FaceColor = clonePtr(s.FaceColor)
	out.EdgeColor = clonePtr(s.EdgeColor)
	out.LineWidth = clonePtr(s.LineWidth)
	out.Alpha = clonePtr(s.Alpha)
	out.Hatch = clonePtr(s.Hatch)
	out.HatchColor = clonePtr(s.HatchColor)
	out.ZOrder = clonePtr(s.ZOrder)
	out.Fill = clonePtr(s.Fill)
	out.LineStyle = clonePtr(s.LineStyle)
	out.Pad = clonePtr(s.Pad)
	out.Dilate = clonePtr(s.Dilate)
	out.Legend = clonePtr(s.Legend)
	out.Palette = slices.Clone(s.Palette)
	out.Dashes = slices.Clone(s.Dashes)
	return out
}
