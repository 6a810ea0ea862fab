package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ParseServiceSet Tests
// =============================================================================

func TestParseServiceSet_SortedByName(t *testing.T) {
	tree := map[string]any{
		"web": map[string]any{"image": "web:1"},
		"api": map[string]any{"image": "api:1"},
		"db":  map[string]any{"image": "db:1"},
	}

	specs, err := ParseServiceSet(tree)
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "db", "web"}, ServiceNames(specs))
}

func TestParseServiceSet_DependsOnString(t *testing.T) {
	tree := map[string]any{
		"web": map[string]any{"depends_on": "api"},
	}

	specs, err := ParseServiceSet(tree)
	require.NoError(t, err)
	assert.Equal(t, []string{"api"}, specs[0].DependsOn)
}

func TestParseServiceSet_DependsOnList(t *testing.T) {
	tree := map[string]any{
		"web": map[string]any{"depends_on": []any{"api", "cache"}},
	}

	specs, err := ParseServiceSet(tree)
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "cache"}, specs[0].DependsOn)
}

func TestParseServiceSet_NilParams(t *testing.T) {
	tree := map[string]any{"web": nil}

	specs, err := ParseServiceSet(tree)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Nil(t, specs[0].Parameters)
}

func TestParseServiceSet_BadParams(t *testing.T) {
	_, err := ParseServiceSet(map[string]any{"web": "not-a-map"})
	assert.Error(t, err)
}

func TestParseServiceSet_BadDependsOn(t *testing.T) {
	_, err := ParseServiceSet(map[string]any{
		"web": map[string]any{"depends_on": 42},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depends_on")
}

func TestStringParam(t *testing.T) {
	spec := ServiceSpec{Parameters: map[string]any{"deploy_cmd": "make deploy", "count": 3}}
	assert.Equal(t, "make deploy", spec.StringParam("deploy_cmd"))
	assert.Empty(t, spec.StringParam("count"))
	assert.Empty(t, spec.StringParam("missing"))
	assert.Empty(t, ServiceSpec{}.StringParam("any"))
}
