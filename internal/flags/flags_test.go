package flags

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_Enabled(t *testing.T) {
	tests := []struct {
		name     string
		registry *Registry
		flag     string
		expected bool
	}{
		{"enabled flag", New(map[string]bool{FlagBatchHistory: true}), FlagBatchHistory, true},
		{"disabled flag", New(map[string]bool{FlagTemplateWatch: false}), FlagTemplateWatch, false},
		{"unset flag", New(map[string]bool{FlagBatchHistory: true}), FlagLuaTemplates, false},
		{"nil map", New(nil), FlagBatchHistory, false},
		{"nil registry", nil, FlagBatchHistory, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.registry.Enabled(tt.flag))
		})
	}
}

func TestRegistry_IsolatedFromSource(t *testing.T) {
	src := map[string]bool{FlagLuaTemplates: true}
	r := New(src)
	src[FlagLuaTemplates] = false

	require.True(t, r.Enabled(FlagLuaTemplates))

	all := r.All()
	all[FlagLuaTemplates] = false
	require.True(t, r.Enabled(FlagLuaTemplates))
}
