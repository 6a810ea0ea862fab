package schema

import "strings"

// =============================================================================
// Sensitive Value Masking
// =============================================================================

// MaskValue masks the interior of a sensitive value, preserving the first
// two and last two characters. Values of length four or less are fully
// masked. This is the mask style used by direct reads (GetMasked).
func MaskValue(value string, maskChar byte) string {
	n := len(value)
	if n <= 4 {
		return strings.Repeat(string(maskChar), n)
	}
	return value[:2] + strings.Repeat(string(maskChar), n-4) + value[n-2:]
}

// MaskExport masks a sensitive value for configuration exports: the first
// two characters, a literal "***", and the last character. Values of length
// four or less become "***" entirely. This style is distinct from MaskValue
// and both are part of the observable surface.
func MaskExport(value string) string {
	if len(value) <= 4 {
		return "***"
	}
	return value[:2] + "***" + value[len(value)-1:]
}
