package params

import (
	"fmt"
	"maps"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"
)

// Tags maps an OSM attribute to the values a feature must carry.
type Tags map[string]TagValue

// TagValue is either "any value" (true), one value, or a list of accepted values.
// Written as `false` in an override it removes the attribute from the merged tags.
type TagValue struct {
	Any     bool
	Values  []string
	Removed bool
}

// AnyValue matches every value of an attribute.
func AnyValue() TagValue { return TagValue{Any: true} }

// OneOf matches the listed values of an attribute.
func OneOf(values ...string) TagValue { return TagValue{Values: values} }

// Keys returns the attributes in sorted order.
func (t Tags) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Matches reports whether the feature properties satisfy at least one attribute.
func (t Tags) Matches(props map[string]any) bool {
	for key, want := range t {
		got, ok := props[key]
		if !ok {
			continue
		}
		if want.Any {
			return true
		}
		if s, ok := got.(string); ok && slices.Contains(want.Values, s) {
			return true
		}
	}
	return false
}

// UnmarshalYAML decodes true, false, a scalar, or a sequence.
func (v *TagValue) UnmarshalYAML(node *yaml.Node) error {
	*v = TagValue{}
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!bool" {
			var b bool
			if err := node.Decode(&b); err != nil {
				return err
			}
			v.Any = b
			v.Removed = !b
			return nil
		}
		v.Values = []string{node.Value}
		return nil
	case yaml.SequenceNode:
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: tag values must be scalars", item.Line)
			}
			v.Values = append(v.Values, item.Value)
		}
		return nil
	default:
		return fmt.Errorf("line %d: tag value must be a boolean, a scalar or a list", node.Line)
	}
}

// MarshalYAML writes the most compact form.
func (v TagValue) MarshalYAML() (any, error) {
	switch {
	case v.Removed:
		return false, nil
	case v.Any:
		return true, nil
	case len(v.Values) == 1:
		return v.Values[0], nil
	default:
		return v.Values, nil
	}
}

// Width is a uniform line half-width or a per-class table (keyed by highway class).
type Width struct {
	Uniform *float64
	ByClass map[string]float64
}

// UniformWidth returns a Width applying w to every class.
func UniformWidth(w float64) *Width { return &Width{Uniform: &w} }

// ClassWidths returns a Width table.
func ClassWidths(m map[string]float64) *Width { return &Width{ByClass: m} }

// For returns the width for the first class that has one.
func (w *Width) For(classes ...string) (float64, bool) {
	if w == nil {
		return 0, false
	}
	if w.Uniform != nil {
		return *w.Uniform, true
	}
	for _, c := range classes {
		if v, ok := w.ByClass[c]; ok {
			return v, true
		}
	}
	return 0, false
}

// UnmarshalYAML accepts a number or a mapping of class to number.
func (w *Width) UnmarshalYAML(node *yaml.Node) error {
	*w = Width{}
	switch node.Kind {
	case yaml.ScalarNode:
		var f float64
		if err := node.Decode(&f); err != nil {
			return fmt.Errorf("line %d: width must be a number: %w", node.Line, err)
		}
		w.Uniform = &f
		return nil
	case yaml.MappingNode:
		return node.Decode(&w.ByClass)
	default:
		return fmt.Errorf("line %d: width must be a number or a mapping", node.Line)
	}
}

// MarshalYAML writes the uniform value or the table.
func (w Width) MarshalYAML() (any, error) {
	if w.Uniform != nil {
		return *w.Uniform, nil
	}
	return w.ByClass, nil
}

func (w *Width) clone() *Width {
	if w == nil {
		return nil
	}
	out := &Width{ByClass: maps.Clone(w.ByClass)}
	if w.Uniform != nil {
		out.Uniform = Ptr(*w.Uniform)
	}
	return out
}
