package settings

import (
	"cmp"
	"slices"

	"github.com/zjrosen/cardsmith/internal/log"
)

// Resolve merges layers over the schema defaults. Layers are applied in
// LayerKind order (base, application, template) regardless of argument
// order; layers of the same kind keep their argument order. Every override
// is validated against its option. Any violation fails the whole resolution
// with a *ValidationError naming each offending key.
//
// Application and template overrides of disabled options are ignored, so a
// disabled option resolves to its schema default.
func Resolve(schema *Schema, layers ...Layer) (*EffectiveConfig, error) {
	cfg := &EffectiveConfig{
		values: make(map[Key]entry, schema.Len()),
		order:  make([]Key, 0, schema.Len()),
	}
	for _, opt := range schema.Options() {
		cfg.values[opt.Key] = entry{typ: opt.Type, value: opt.Default, source: LayerBase}
		cfg.order = append(cfg.order, opt.Key)
	}

	ordered := slices.Clone(layers)
	slices.SortStableFunc(ordered, func(a, b Layer) int { return cmp.Compare(a.Kind, b.Kind) })

	var violations []Violation
	for _, layer := range ordered {
		for _, k := range sortedKeys(layer.Values) {
			raw := layer.Values[k]
			opt, ok := schema.Lookup(k)
			if !ok {
				violations = append(violations, Violation{layer.Kind, layer.Source, k, raw, "unknown setting"})
				continue
			}
			if opt.Disabled && layer.Kind != LayerBase {
				log.Warn(log.CatSettings, "Ignoring override of disabled setting", "key", k.String(), "source", layer.Source)
				continue
			}
			value, err := opt.Coerce(raw)
			if err != nil {
				violations = append(violations, Violation{layer.Kind, layer.Source, k, raw, err.Error()})
				continue
			}
			cfg.values[k] = entry{typ: opt.Type, value: value, source: layer.Kind}
		}
	}

	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}
	return cfg, nil
}

// sortedKeys gives violations a deterministic order.
func sortedKeys(m map[Key]any) []Key {
	keys := make([]Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b Key) int {
		return cmp.Or(cmp.Compare(a.Section, b.Section), cmp.Compare(a.Name, b.Name))
	})
	return keys
}
