// Package settings resolves per-job render settings. Option schemas declare
// typed options grouped by section; override layers (base, application,
// template) are validated against the schema and merged into an immutable
// EffectiveConfig handed to each job.
package settings

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// OptionType is the closed set of option value types.
type OptionType string

const (
	TypeBool    OptionType = "bool"
	TypeNumeric OptionType = "numeric"
	TypeString  OptionType = "string"
	TypeEnum    OptionType = "enum"
)

// ParseOptionType validates a schema type string.
func ParseOptionType(s string) (OptionType, error) {
	switch t := OptionType(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeBool, TypeNumeric, TypeString, TypeEnum:
		return t, nil
	default:
		return "", fmt.Errorf("unknown option type %q", s)
	}
}

// Key identifies an option by section and name.
type Key struct {
	Section string
	Name    string
}

// K is shorthand for Key{section, name}.
func K(section, name string) Key { return Key{Section: section, Name: name} }

func (k Key) String() string { return "[" + k.Section + "] " + k.Name }

// Option describes one setting. Options are immutable after load.
type Option struct {
	Key
	Type     OptionType
	Default  any // bool, float64 or string depending on Type
	Options  []string
	Disabled bool
	Title    string
	Desc     string
}

// Coerce converts raw into the option's canonical Go type, rejecting values
// the option does not allow. Strings are accepted for every type since
// override files carry untyped scalars.
func (o Option) Coerce(raw any) (any, error) {
	switch o.Type {
	case TypeBool:
		return coerceBool(raw)
	case TypeNumeric:
		return coerceNumber(raw)
	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		return s, nil
	case TypeEnum:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected one of %s, got %T", strings.Join(o.Options, ", "), raw)
		}
		if !slices.Contains(o.Options, s) {
			return nil, fmt.Errorf("%q is not one of %s", s, strings.Join(o.Options, ", "))
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown option type %q", o.Type)
	}
}

func coerceBool(raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "yes", "true", "on":
			return true, nil
		case "0", "no", "false", "off":
			return false, nil
		}
		return nil, fmt.Errorf("%q is not a boolean", v)
	default:
		return nil, fmt.Errorf("expected boolean, got %T", raw)
	}
}

func coerceNumber(raw any) (any, error) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", v)
		}
		f = parsed
	default:
		return nil, fmt.Errorf("expected number, got %T", raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%v is not a finite number", f)
	}
	return f, nil
}
