package params

import (
	"fmt"
	"iter"
	"reflect"
	"slices"

	"gopkg.in/yaml.v3"
)

// Ordered is a string-keyed mapping that remembers insertion order. Layer and style
// mappings use it so that z-order ties resolve to the order written in the preset.
type Ordered[V any] struct {
	keys []string
	vals map[string]V
}

// Len returns the number of entries.
func (o *Ordered[V]) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns a copy of the keys in insertion order.
func (o *Ordered[V]) Keys() []string {
	if o == nil {
		return nil
	}
	return slices.Clone(o.keys)
}

// Get returns the value stored under key.
func (o *Ordered[V]) Get(key string) (V, bool) {
	var zero V
	if o == nil || o.vals == nil {
		return zero, false
	}
	v, ok := o.vals[key]
	return v, ok
}

// Has reports whether key is present.
func (o *Ordered[V]) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Set stores value under key. New keys are appended; existing keys keep their position.
func (o *Ordered[V]) Set(key string, value V) {
	if o.vals == nil {
		o.vals = make(map[string]V)
	}
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = value
}

// Delete removes key if present.
func (o *Ordered[V]) Delete(key string) {
	if o == nil || o.vals == nil {
		return
	}
	if _, ok := o.vals[key]; !ok {
		return
	}
	delete(o.vals, key)
	o.keys = slices.DeleteFunc(o.keys, func(k string) bool { return k == key })
}

// All iterates over entries in insertion order.
func (o *Ordered[V]) All() iter.Seq2[string, V] {
	return func(yield func(string, V) bool) {
		if o == nil {
			return
		}
		for _, k := range o.keys {
			if !yield(k, o.vals[k]) {
				return
			}
		}
	}
}

// Clone returns a shallow copy with its own key slice and map.
func (o *Ordered[V]) Clone() Ordered[V] {
	var out Ordered[V]
	for k, v := range o.All() {
		out.Set(k, v)
	}
	return out
}

// Equal reports whether both mappings hold the same keys in the same order with deeply equal values.
func (o Ordered[V]) Equal(other Ordered[V]) bool {
	if len(o.keys) != len(other.keys) {
		return false
	}
	for i, k := range o.keys {
		if other.keys[i] != k {
			return false
		}
		if !reflect.DeepEqual(o.vals[k], other.vals[k]) {
			return false
		}
	}
	return true
}

// IsZero lets yaml.v3 omit empty mappings.
func (o Ordered[V]) IsZero() bool {
	return len(o.keys) == 0
}

// UnmarshalYAML decodes a YAML (or JSON) mapping while keeping key order.
func (o *Ordered[V]) UnmarshalYAML(node *yaml.Node) error {
	*o = Ordered[V]{}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		var value V
		if err := valNode.Decode(&value); err != nil {
			return fmt.Errorf("%s: %w", keyNode.Value, err)
		}
		o.Set(keyNode.Value, value)
	}
	return nil
}

// MarshalYAML encodes the mapping in insertion order.
func (o Ordered[V]) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range o.keys {
		var valNode yaml.Node
		if err := valNode.Encode(o.vals[k]); err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			&valNode,
		)
	}
	return node, nil
}
