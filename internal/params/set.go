package params

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Set applies a dotted assignment such as "style.water.fc=#000000",
// "layers.green.tags.leisure=[park,garden]" or "layers.building=false" to p.
// The value is read as a YAML scalar or flow sequence; values starting with '#' are strings.
func (p *Params) Set(assignment string) error {
	path, raw, ok := strings.Cut(assignment, "=")
	path = strings.TrimSpace(path)
	if !ok || path == "" {
		return configErr(path, "expected key=value, got %q", assignment)
	}
	segs := strings.Split(path, ".")
	for _, s := range segs {
		if s == "" {
			return configErr(path, "empty path segment")
		}
	}

	switch segs[0] {
	case "circle", "radius", "dilate":
		if len(segs) != 1 {
			return configErr(path, "%s takes no sub-keys", segs[0])
		}
	case "layers":
		if len(segs) < 2 {
			return configErr(path, "expected layers.<name>[.<key>]")
		}
	case "style":
		if len(segs) < 3 {
			return configErr(path, "expected style.<name>.<key>")
		}
	default:
		return configErr(path, "unknown top-level key %q (use layers, style, circle, radius or dilate)", segs[0])
	}

	value, err := parseScalar(raw)
	if err != nil {
		return configErr(path, "%v", err)
	}

	var doc any = value
	for i := len(segs) - 1; i >= 0; i-- {
		doc = map[string]any{segs[i]: doc}
	}
	encoded, err := yaml.Marshal(doc)
	if err != nil {
		return configErr(path, "%v", err)
	}
	var overlay Params
	if err := yaml.Unmarshal(encoded, &overlay); err != nil {
		return configErr(path, "%v", err)
	}
	*p = Overlay(*p, overlay)
	return nil
}

func parseScalar(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if strings.HasPrefix(raw, "#") {
		return raw, nil
	}
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
			// Unquoted colours such as [#fff,#000] are not valid flow YAML.
			var items []any
			for _, item := range strings.Split(raw[1:len(raw)-1], ",") {
				items = append(items, strings.TrimSpace(item))
			}
			return items, nil
		}
		if strings.HasPrefix(raw, "{") {
			return nil, fmt.Errorf("invalid value %q: %w", raw, err)
		}
		return raw, nil
	}
	if v == nil && raw != "null" && raw != "~" {
		return raw, nil
	}
	return v, nil
}
