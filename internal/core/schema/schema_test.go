package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Rule Lookup Tests
// =============================================================================

func TestRule_SectionAndField(t *testing.T) {
	s := Schema{
		"database": {
			"port": {Type: TypeInteger, Default: 5432},
		},
	}

	rule, ok := s.Rule("database.port")
	require.True(t, ok)
	assert.Equal(t, TypeInteger, rule.Type)
}

func TestRule_DeeperPathInheritsFieldRule(t *testing.T) {
	s := Schema{
		"auth": {
			"credentials": {Sensitive: true},
		},
	}

	_, ok := s.Rule("auth.credentials.token")
	assert.True(t, ok)
	assert.True(t, s.IsSensitive("auth.credentials.token"))
}

func TestRule_UnknownPath(t *testing.T) {
	s := Schema{"database": {"port": {}}}

	_, ok := s.Rule("database.host")
	assert.False(t, ok)
	_, ok = s.Rule("toplevel")
	assert.False(t, ok)
}

func TestIsSensitive_Unflagged(t *testing.T) {
	s := Schema{"database": {"host": {}}}
	assert.False(t, s.IsSensitive("database.host"))
	assert.False(t, s.IsSensitive("unknown.path"))
}
