package settings

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

type entry struct {
	typ    OptionType
	value  any
	source LayerKind
}

// EffectiveConfig is the immutable result of Resolve. Every accessor returns
// a typed value or a *ConfigError; nothing resolves to an implicit zero.
type EffectiveConfig struct {
	values map[Key]entry
	order  []Key
}

func (c *EffectiveConfig) lookup(k Key, want ...OptionType) (entry, error) {
	if c == nil {
		return entry{}, &ConfigError{Key: k, Err: ErrMissingKey}
	}
	e, ok := c.values[k]
	if !ok {
		return entry{}, &ConfigError{Key: k, Err: ErrMissingKey}
	}
	if !slices.Contains(want, e.typ) {
		return entry{}, &ConfigError{Key: k, Err: fmt.Errorf("%w: is %s", ErrWrongType, e.typ)}
	}
	return e, nil
}

// Bool returns a bool setting.
func (c *EffectiveConfig) Bool(k Key) (bool, error) {
	e, err := c.lookup(k, TypeBool)
	if err != nil {
		return false, err
	}
	return e.value.(bool), nil
}

// Number returns a numeric setting.
func (c *EffectiveConfig) Number(k Key) (float64, error) {
	e, err := c.lookup(k, TypeNumeric)
	if err != nil {
		return 0, err
	}
	return e.value.(float64), nil
}

// String returns a string or enum setting.
func (c *EffectiveConfig) String(k Key) (string, error) {
	e, err := c.lookup(k, TypeString, TypeEnum)
	if err != nil {
		return "", err
	}
	return e.value.(string), nil
}

// Enum returns an enum setting.
func (c *EffectiveConfig) Enum(k Key) (string, error) {
	e, err := c.lookup(k, TypeEnum)
	if err != nil {
		return "", err
	}
	return e.value.(string), nil
}

// Get returns the raw resolved value.
func (c *EffectiveConfig) Get(k Key) (any, bool) {
	if c == nil {
		return nil, false
	}
	e, ok := c.values[k]
	return e.value, ok
}

// Source reports which layer supplied k.
func (c *EffectiveConfig) Source(k Key) (LayerKind, bool) {
	if c == nil {
		return 0, false
	}
	e, ok := c.values[k]
	return e.source, ok
}

// Keys returns every resolved key in schema order.
func (c *EffectiveConfig) Keys() []Key {
	if c == nil {
		return nil
	}
	return slices.Clone(c.order)
}

// Len returns the number of resolved keys.
func (c *EffectiveConfig) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

// Dump renders the config as INI-style text grouped by section, in schema
// order. The output is stable and suitable for diffing.
func (c *EffectiveConfig) Dump() string {
	if c == nil {
		return ""
	}
	var b strings.Builder
	section := ""
	for _, k := range c.order {
		if k.Section != section {
			if section != "" {
				b.WriteByte('\n')
			}
			section = k.Section
			fmt.Fprintf(&b, "[%s]\n", section)
		}
		fmt.Fprintf(&b, "%s = %s\n", k.Name, formatValue(c.values[k].value))
	}
	return b.String()
}

func formatValue(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
