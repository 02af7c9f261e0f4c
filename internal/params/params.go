// Package params holds the strongly typed configuration tree shared by presets and caller
// overrides, and the resolver that merges them into one effective configuration.
package params

import (
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Layers maps layer names to their data-source query, in declaration order.
type Layers = Ordered[Layer]

// Styles maps layer names to their drawing parameters, in declaration order.
type Styles = Ordered[Style]

// BackgroundLayer is the reserved style key for the padded area behind the map.
const BackgroundLayer = "background"

// PerimeterLayer is the reserved layer key holding the boundary geometry.
const PerimeterLayer = "perimeter"

// networkLayers are drawn from line networks dilated by a per-class width.
var networkLayers = []string{"streets", "railway", "waterway"}

// Params is the body of a preset and the shape of caller overrides.
type Params struct {
	// Layers declares which OpenStreetMap features to fetch per layer.
	Layers Layers `yaml:"layers,omitempty"`
	// Style holds the drawing parameters per layer.
	Style Styles `yaml:"style,omitempty"`
	// Circle selects a circular instead of square boundary around a point query.
	Circle *bool `yaml:"circle,omitempty"`
	// Radius is the boundary radius in metres around a point query.
	Radius *float64 `yaml:"radius,omitempty"`
	// Dilate grows the boundary by this many metres.
	Dilate *float64 `yaml:"dilate,omitempty"`
}

// Layer describes the data-source query for one named layer.
type Layer struct {
	// Tags maps OSM attributes to true (any value), a value, or a list of values.
	Tags Tags `yaml:"tags,omitempty"`
	// CustomFilter is a raw Overpass filter such as `["highway"~"primary|secondary"]` for network layers.
	CustomFilter *string `yaml:"custom_filter,omitempty"`
	// OSMID fetches one element by id (e.g. "R1234") instead of by tags.
	OSMID *string `yaml:"osmid,omitempty"`
	// Width is the half-width in metres of network lines, uniform or per highway class.
	Width *Width `yaml:"width,omitempty"`
	// Union draws every geometry of the layer as one shape with one colour.
	Union *bool `yaml:"union,omitempty"`
	// Circle overrides the top-level circle flag for the perimeter.
	Circle *bool `yaml:"circle,omitempty"`
	// Dilate overrides the top-level dilate amount for the perimeter.
	Dilate *float64 `yaml:"dilate,omitempty"`
	// DilatePoints turns points into discs of this radius in metres; a negative value drops points.
	DilatePoints *float64 `yaml:"dilate_points,omitempty"`
	// DilateLines turns lines into bands of this half-width in metres; a negative value drops lines.
	DilateLines *float64 `yaml:"dilate_lines,omitempty"`
	// Tolerance grows the fetch area beyond the perimeter by this many metres.
	Tolerance *float64 `yaml:"perimeter_tolerance,omitempty"`

	// Disabled marks a layer written as `false`; resolving removes it.
	Disabled bool `yaml:"-"`
}

// Style carries the rendering parameters of one layer.
type Style struct {
	FaceColor  *string   `yaml:"fc,omitempty"`
	EdgeColor  *string   `yaml:"ec,omitempty"`
	LineWidth  *float64  `yaml:"lw,omitempty"`
	Alpha      *float64  `yaml:"alpha,omitempty"`
	Hatch      *string   `yaml:"hatch,omitempty"`
	HatchColor *string   `yaml:"hatch_c,omitempty"`
	ZOrder     *float64  `yaml:"zorder,omitempty"`
	Palette    []string  `yaml:"palette,omitempty"`
	Fill       *bool     `yaml:"fill,omitempty"`
	LineStyle  *string   `yaml:"ls,omitempty"`
	Dashes     []float64 `yaml:"dashes,omitempty"`
	// Pad scales the background box around the perimeter (background only).
	Pad *float64 `yaml:"pad,omitempty"`
	// Dilate grows the background box by this many metres (background only).
	Dilate *float64 `yaml:"dilate,omitempty"`
	// Legend writes each named feature's name at its centroid.
	Legend *bool `yaml:"legend,omitempty"`
}

var layerKeys = []string{
	"tags", "custom_filter", "osmid", "width", "union", "circle", "dilate",
	"dilate_points", "dilate_lines", "perimeter_tolerance",
}

var styleKeys = []string{
	"fc", "ec", "lw", "alpha", "hatch", "hatch_c", "zorder", "palette", "fill", "ls", "dashes", "pad", "dilate", "legend",
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Value dereferences p or returns def when p is nil.
func Value[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

// IsNetwork reports whether the layer is drawn from a dilated line network.
func (l Layer) IsNetwork(name string) bool {
	return l.Width != nil || slices.Contains(networkLayers, name)
}

type layerFields Layer

// UnmarshalYAML accepts `false` to disable a layer, `true` or a mapping otherwise.
func (l *Layer) UnmarshalYAML(node *yaml.Node) error {
	*l = Layer{}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!bool" {
		var enabled bool
		if err := node.Decode(&enabled); err != nil {
			return err
		}
		l.Disabled = !enabled
		return nil
	}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil
	}
	if err := checkKeys(node, layerKeys, "layer"); err != nil {
		return err
	}
	var fields layerFields
	if err := node.Decode(&fields); err != nil {
		return err
	}
	*l = Layer(fields)
	return nil
}

// MarshalYAML writes disabled layers back as `false`.
func (l Layer) MarshalYAML() (any, error) {
	if l.Disabled {
		return false, nil
	}
	return layerFields(l), nil
}

type styleFields Style

// UnmarshalYAML decodes a style mapping. A list given as `fc` is read as the palette.
func (s *Style) UnmarshalYAML(node *yaml.Node) error {
	*s = Style{}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil
	}
	if err := checkKeys(node, styleKeys, "style"); err != nil {
		return err
	}

	var fcList []string
	filtered := *node
	filtered.Content = nil
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if k.Value == "fc" && v.Kind == yaml.SequenceNode {
			if err := v.Decode(&fcList); err != nil {
				return fmt.Errorf("fc: %w", err)
			}
			continue
		}
		filtered.Content = append(filtered.Content, k, v)
	}

	var fields styleFields
	if err := filtered.Decode(&fields); err != nil {
		return err
	}
	*s = Style(fields)
	if len(fcList) > 0 && len(s.Palette) == 0 {
		s.Palette = fcList
	}
	return nil
}

func checkKeys(node *yaml.Node, known []string, what string) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: %s must be a mapping", node.Line, what)
	}
	for i := 0; i < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if !slices.Contains(known, key) {
			return fmt.Errorf("line %d: unknown %s key %q (known: %s)", node.Content[i].Line, what, key, strings.Join(known, ", "))
		}
	}
	return nil
}

// LayerNames returns the names of enabled layers in declaration order.
func (p Params) LayerNames() []string {
	var names []string
	for name, l := range p.Layers.All() {
		if !l.Disabled {
			names = append(names, name)
		}
	}
	return names
}

// Exclude marks a layer for removal when p is used as an override.
func (p *Params) Exclude(name string) {
	p.Layers.Set(name, Layer{Disabled: true})
}

// ApplyBoundaryDefaults pushes the top-level circle and dilate values into every layer
// that does not set its own.
func (p *Params) ApplyBoundaryDefaults() {
	for name, l := range p.Layers.All() {
		if l.Circle == nil && p.Circle != nil {
			l.Circle = Ptr(*p.Circle)
		}
		if l.Dilate == nil && p.Dilate != nil {
			l.Dilate = Ptr(*p.Dilate)
		}
		p.Layers.Set(name, l)
	}
}

// Summary returns a one-line human description.
func (p Params) Summary() string {
	var parts []string
	names := p.LayerNames()
	parts = append(parts, fmt.Sprintf("%d layers (%s)", len(names), strings.Join(names, ", ")))
	if Value(p.Circle, false) {
		parts = append(parts, "circle")
	}
	if p.Radius != nil {
		parts = append(parts, fmt.Sprintf("radius %gm", *p.Radius))
	}
	if p.Dilate != nil {
		parts = append(parts, fmt.Sprintf("dilate %gm", *p.Dilate))
	}
	return strings.Join(parts, "; ")
}
