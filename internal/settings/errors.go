package settings

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingKey is returned when a setting is read that no layer or
	// schema defines.
	ErrMissingKey = errors.New("setting not defined")

	// ErrWrongType is returned when a setting is read as a type it is not.
	ErrWrongType = errors.New("setting has a different type")
)

// Violation is one rejected override.
type Violation struct {
	Layer  LayerKind
	Source string
	Key    Key
	Value  any
	Reason string
}

func (v Violation) String() string {
	src := v.Layer.String()
	if v.Source != "" {
		src += " " + v.Source
	}
	return fmt.Sprintf("%s = %v (%s): %s", v.Key, v.Value, src, v.Reason)
}

// ValidationError reports every override that violated the schema.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return "invalid setting " + e.Violations[0].String()
	}
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("%d invalid settings: %s", len(e.Violations), strings.Join(parts, "; "))
}

// Keys returns the offending keys in report order.
func (e *ValidationError) Keys() []Key {
	keys := make([]Key, len(e.Violations))
	for i, v := range e.Violations {
		keys[i] = v.Key
	}
	return keys
}

// ConfigError is returned by EffectiveConfig accessors.
type ConfigError struct {
	Key Key
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("setting %s: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
