package settings

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/cardsmith/internal/log"
)

//go:embed schema/*.json
var builtinSchemas embed.FS

// Schema is an ordered, immutable set of options indexed by key.
type Schema struct {
	options []Option
	index   map[Key]int
}

// NewSchema builds a schema from options. Every default must validate
// against its own option and keys must be unique.
func NewSchema(opts ...Option) (*Schema, error) {
	s := &Schema{index: make(map[Key]int, len(opts))}
	for _, opt := range opts {
		if _, dup := s.index[opt.Key]; dup {
			return nil, fmt.Errorf("duplicate option %s", opt.Key)
		}
		opt, err := canonical(opt)
		if err != nil {
			return nil, err
		}
		s.index[opt.Key] = len(s.options)
		s.options = append(s.options, opt)
	}
	return s, nil
}

// canonical validates opt and converts its default to the option's Go type.
func canonical(opt Option) (Option, error) {
	if opt.Section == "" || opt.Name == "" {
		return opt, fmt.Errorf("option %q: section and key are required", opt.Title)
	}
	if _, err := ParseOptionType(string(opt.Type)); err != nil {
		return opt, fmt.Errorf("option %s: %w", opt.Key, err)
	}
	if opt.Type == TypeEnum && len(opt.Options) == 0 {
		return opt, fmt.Errorf("option %s: enum declares no options", opt.Key)
	}
	def, err := opt.Coerce(opt.Default)
	if err != nil {
		return opt, fmt.Errorf("option %s: invalid default: %w", opt.Key, err)
	}
	opt.Default = def
	return opt, nil
}

// Lookup returns the option for k.
func (s *Schema) Lookup(k Key) (Option, bool) {
	if s == nil {
		return Option{}, false
	}
	i, ok := s.index[k]
	if !ok {
		return Option{}, false
	}
	return s.options[i], true
}

// Options returns the options in declaration order.
func (s *Schema) Options() []Option {
	if s == nil {
		return nil
	}
	return slices.Clone(s.options)
}

// Len returns the number of options.
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.options)
}

// Extend returns a new schema with opts appended. An option whose key
// already exists replaces the existing one in place.
func (s *Schema) Extend(opts ...Option) (*Schema, error) {
	merged := s.Options()
	index := make(map[Key]int, len(merged))
	for i, o := range merged {
		index[o.Key] = i
	}
	for _, opt := range opts {
		if i, ok := index[opt.Key]; ok {
			merged[i] = opt
			continue
		}
		index[opt.Key] = len(merged)
		merged = append(merged, opt)
	}
	return NewSchema(merged...)
}

// descriptor is the on-disk form of one schema row.
type descriptor struct {
	Type     string   `json:"type" yaml:"type"`
	Section  string   `json:"section" yaml:"section"`
	Key      string   `json:"key" yaml:"key"`
	Title    string   `json:"title" yaml:"title"`
	Desc     string   `json:"desc" yaml:"desc"`
	Default  any      `json:"default" yaml:"default"`
	Options  []string `json:"options" yaml:"options"`
	Disabled bool     `json:"disabled" yaml:"disabled"`
}

// ParseSchema decodes a list of option descriptors. JSON is expected for
// .json names and YAML otherwise. Rows of type "title" are section headings
// for display and are dropped. Any other unknown type fails the load.
func ParseSchema(name string, data []byte) ([]Option, error) {
	var rows []descriptor
	var err error
	if strings.EqualFold(filepath.Ext(name), ".json") {
		err = json.Unmarshal(data, &rows)
	} else {
		err = yaml.Unmarshal(data, &rows)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing schema %s: %w", name, err)
	}

	opts := make([]Option, 0, len(rows))
	for i, row := range rows {
		if strings.EqualFold(row.Type, "title") {
			continue
		}
		typ, err := ParseOptionType(row.Type)
		if err != nil {
			return nil, fmt.Errorf("schema %s row %d (%s): %w", name, i, row.Key, err)
		}
		opt := Option{
			Key:      K(row.Section, row.Key),
			Type:     typ,
			Default:  normalizeDefault(row.Default),
			Options:  row.Options,
			Disabled: row.Disabled,
			Title:    row.Title,
			Desc:     row.Desc,
		}
		opt, err = canonical(opt)
		if err != nil {
			return nil, fmt.Errorf("schema %s row %d: %w", name, i, err)
		}
		opts = append(opts, opt)
	}
	return opts, nil
}

func normalizeDefault(v any) any {
	switch d := v.(type) {
	case int:
		return float64(d)
	case nil:
		return ""
	default:
		return d
	}
}

// LoadSchema reads and merges schema files in order. When two files declare
// the same key the later one wins.
func LoadSchema(base *Schema, files ...string) (*Schema, error) {
	s := base
	if s == nil {
		s = &Schema{index: map[Key]int{}}
	}
	for _, file := range files {
		data, err := os.ReadFile(file) //nolint:gosec // G304: schema paths come from config
		if err != nil {
			return nil, fmt.Errorf("reading schema: %w", err)
		}
		opts, err := ParseSchema(file, data)
		if err != nil {
			return nil, err
		}
		for _, o := range opts {
			if _, exists := s.Lookup(o.Key); exists {
				log.Warn(log.CatSettings, "Schema option redeclared", "key", o.Key.String(), "file", file)
			}
		}
		if s, err = s.Extend(opts...); err != nil {
			return nil, fmt.Errorf("schema %s: %w", file, err)
		}
	}
	log.Debug(log.CatSettings, "Loaded schema", "files", len(files), "options", s.Len())
	return s, nil
}

var (
	baseOnce   sync.Once
	baseSchema *Schema
	baseErr    error
)

// Base returns the built-in option schema shipped with cardsmith.
func Base() (*Schema, error) {
	baseOnce.Do(func() {
		entries, err := builtinSchemas.ReadDir("schema")
		if err != nil {
			baseErr = err
			return
		}
		var all []Option
		for _, e := range entries {
			data, err := builtinSchemas.ReadFile("schema/" + e.Name())
			if err != nil {
				baseErr = err
				return
			}
			opts, err := ParseSchema(e.Name(), data)
			if err != nil {
				baseErr = err
				return
			}
			all = append(all, opts...)
		}
		baseSchema, baseErr = NewSchema(all...)
	})
	return baseSchema, baseErr
}
