// Package preset implements the on-disk store of named parameter bundles.
package preset

import (
	"embed"
	"errors"
	"fmt"
	"regexp"

	"github.com/prettymaps-go/prettymaps/internal/params"
)

// Builtin holds the presets shipped with the tool.
//
//go:embed builtin/*.yaml
var Builtin embed.FS

// DefaultName is the preset used when the caller does not name one.
const DefaultName = "default"

const maxNameLen = 64

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Preset is a saved, named bundle of layer, style and boundary parameters.
type Preset struct {
	// Name is the unique, filesystem-safe preset name.
	Name string
	// Params is the serialized body of the preset.
	Params params.Params
}

// Summary is one entry of List.
type Summary struct {
	Name    string
	Summary string
}

// NotFoundError reports a preset name that does not exist in the store.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("preset %q not found", e.Name)
}

// IsNotFound reports whether err indicates a missing preset.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// ExistsError reports a save that would overwrite a preset without permission.
type ExistsError struct {
	Name string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("preset %q already exists (use overwrite to replace it)", e.Name)
}

// IsExists reports whether err indicates an existing preset.
func IsExists(err error) bool {
	var target *ExistsError
	return errors.As(err, &target)
}

// ValidateName checks that name can be used as a preset file name.
func ValidateName(name string) error {
	if len(name) > maxNameLen {
		return &params.ConfigurationError{Key: "name", Reason: fmt.Sprintf("preset name longer than %d bytes", maxNameLen)}
	}
	if !namePattern.MatchString(name) {
		return &params.ConfigurationError{Key: "name", Reason: fmt.Sprintf("preset name %q must match %s", name, namePattern)}
	}
	return nil
}
