package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Integer Coercion Tests
// =============================================================================

func TestCoerceInt_FromString(t *testing.T) {
	n, err := CoerceInt("42")
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestCoerceInt_FromFloat(t *testing.T) {
	n, err := CoerceInt(3.9)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCoerceInt_TrimsWhitespace(t *testing.T) {
	n, err := CoerceInt(" 7 ")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestCoerceInt_BadString(t *testing.T) {
	_, err := CoerceInt("bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot convert")
}

func TestCoerceInt_Bool(t *testing.T) {
	_, err := CoerceInt(true)
	assert.Error(t, err)
}

// =============================================================================
// Float Coercion Tests
// =============================================================================

func TestCoerceFloat_FromString(t *testing.T) {
	f, err := CoerceFloat("0.5")
	require.NoError(t, err)
	assert.Equal(t, 0.5, f)
}

func TestCoerceFloat_FromInt(t *testing.T) {
	f, err := CoerceFloat(3)
	require.NoError(t, err)
	assert.Equal(t, 3.0, f)
}

func TestCoerceFloat_BadString(t *testing.T) {
	_, err := CoerceFloat("1.2.3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot convert")
}

// =============================================================================
// Boolean Coercion Tests
// =============================================================================

func TestCoerceBool_TruthyForms(t *testing.T) {
	for _, raw := range []string{"true", "TRUE", "1", "yes", "Yes", "on", "ON"} {
		b, err := CoerceBool(raw)
		require.NoError(t, err, "input %q", raw)
		assert.True(t, b, "input %q", raw)
	}
}

func TestCoerceBool_FalsyForms(t *testing.T) {
	for _, raw := range []string{"false", "False", "0", "no", "NO", "off", "Off"} {
		b, err := CoerceBool(raw)
		require.NoError(t, err, "input %q", raw)
		assert.False(t, b, "input %q", raw)
	}
}

func TestCoerceBool_Invalid(t *testing.T) {
	_, err := CoerceBool("maybe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot convert")

	_, err = CoerceBool(1)
	assert.Error(t, err)
}

func TestCoerceBool_Passthrough(t *testing.T) {
	b, err := CoerceBool(true)
	require.NoError(t, err)
	assert.True(t, b)
}

// =============================================================================
// List & String Coercion Tests
// =============================================================================

func TestCoerceList_Passthrough(t *testing.T) {
	v, err := CoerceList([]any{"a", 1})
	require.NoError(t, err)
	assert.Len(t, v, 2)
}

func TestCoerceList_StringSlice(t *testing.T) {
	v, err := CoerceList([]string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, v)
}

func TestCoerceList_Scalar(t *testing.T) {
	_, err := CoerceList("not-a-list")
	assert.Error(t, err)
}

func TestCoerceString_Stringifies(t *testing.T) {
	assert.Equal(t, "42", CoerceString(42))
	assert.Equal(t, "true", CoerceString(true))
	assert.Equal(t, "plain", CoerceString("plain"))
}

// =============================================================================
// Mask Tests
// =============================================================================

func TestMaskValue_PreservesEnds(t *testing.T) {
	masked := MaskValue("secret_key_123", '*')
	assert.Equal(t, "se**********23", masked)
	assert.Len(t, masked, len("secret_key_123"))
}

func TestMaskValue_ShortValueFullyMasked(t *testing.T) {
	assert.Equal(t, "****", MaskValue("abcd", '*'))
	assert.Equal(t, "#", MaskValue("x", '#'))
	assert.Equal(t, "", MaskValue("", '*'))
}

func TestMaskValue_CustomChar(t *testing.T) {
	assert.Equal(t, "se##23", MaskValue("secr23", '#'))
}

func TestMaskExport_LongValue(t *testing.T) {
	assert.Equal(t, "se***3", MaskExport("secret_key_123"))
}

func TestMaskExport_ShortValue(t *testing.T) {
	assert.Equal(t, "***", MaskExport("abcd"))
	assert.Equal(t, "***", MaskExport(""))
}
