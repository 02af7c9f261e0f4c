package compose

import (
	"errors"
	"fmt"
	"strings"
)

// RenderError reports a layer the canvas could not draw.
type RenderError struct {
	Layer string
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render layer %q: %v", e.Layer, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// IsRenderError reports whether err is or wraps a RenderError.
func IsRenderError(err error) bool {
	var target *RenderError
	return errors.As(err, &target)
}

// LayerFailure is one layer left out of a tolerant composition.
type LayerFailure struct {
	Layer string
	Err   error
}

// PartialError lists the layers that failed while the rest of the map was drawn.
type PartialError struct {
	Failures []LayerFailure
}

func (e *PartialError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Layer, f.Err))
	}
	return fmt.Sprintf("%d layer(s) failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes every layer cause to errors.Is and errors.As.
func (e *PartialError) Unwrap() []error {
	out := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f.Err
	}
	return out
}

// Layers returns the names of the failed layers.
func (e *PartialError) Layers() []string {
	out := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f.Layer
	}
	return out
}

// IsPartialError reports whether err is or wraps a PartialError.
func IsPartialError(err error) bool {
	var target *PartialError
	return errors.As(err, &target)
}
