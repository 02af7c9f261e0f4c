package params

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a malformed or conflicting layer or style setting.
type ConfigurationError struct {
	// Key is the dotted path of the offending setting, e.g. "style.water.fc".
	Key string
	// Reason describes what is wrong with it.
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return "invalid configuration"
	}
	if e.Key == "" {
		return "invalid configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid configuration at %s: %s", e.Key, e.Reason)
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

func configErr(key, format string, args ...any) error {
	return &ConfigurationError{Key: key, Reason: fmt.Sprintf(format, args...)}
}
