package schema

import "strings"

// =============================================================================
// Field Types
// =============================================================================

// FieldType identifies the declared type of a configuration field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeFloat   FieldType = "float"
	TypeBoolean FieldType = "boolean"
	TypeList    FieldType = "list"
)

// =============================================================================
// Field Rules
// =============================================================================

// FieldRule declares the validation rules for a single configuration field.
// A zero rule means "string, optional, no constraints".
type FieldRule struct {
	// Type is the declared type the value is coerced to. Empty means string.
	Type FieldType

	// Required fails validation when the value is nil or the empty string.
	Required bool

	// Default is filled in when the value is absent. A nil Default means
	// the field simply stays absent.
	Default any

	// Min and Max bound numeric values after coercion.
	Min *float64
	Max *float64

	// Allowed restricts the value to an enumerated set.
	Allowed []any

	// Sensitive marks the field for masking in GetMasked and exports.
	Sensitive bool
}

// Schema maps section name to field name to rule. It is immutable after
// construction; the configuration store never mutates it.
type Schema map[string]map[string]FieldRule

// Rule returns the rule governing a dot-path. Only the first two segments
// (section and field) select the rule; deeper paths inherit the rule of
// their section.field prefix.
func (s Schema) Rule(path string) (FieldRule, bool) {
	segments := strings.SplitN(path, ".", 3)
	if len(segments) < 2 {
		return FieldRule{}, false
	}
	fields, ok := s[segments[0]]
	if !ok {
		return FieldRule{}, false
	}
	rule, ok := fields[segments[1]]
	return rule, ok
}

// IsSensitive reports whether the field addressed by the dot-path is marked
// sensitive. Paths with no schema entry are never sensitive.
func (s Schema) IsSensitive(path string) bool {
	rule, ok := s.Rule(path)
	return ok && rule.Sensitive
}

// Sections returns the section names in the schema, unsorted.
func (s Schema) Sections() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	return out
}

// =============================================================================
// Bound Helpers
// =============================================================================

// Bound returns a pointer to the given bound value, for use in FieldRule
// literals.
func Bound(v float64) *float64 {
	return &v
}
