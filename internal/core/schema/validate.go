package schema

import (
	"fmt"
	"reflect"
	"sort"
)

// =============================================================================
// Section Validation
// =============================================================================

// ValidateSection validates one configuration section against its field
// rules. It returns a copy of the section with coerced values and defaults
// filled in. Fields are checked in name order and the first failure aborts;
// errors are not collected.
//
// Keys present in the section but absent from the rules pass through
// untouched. The schema governs only declared fields.
func ValidateSection(section map[string]any, rules map[string]FieldRule, sectionName string) (map[string]any, error) {
	out := make(map[string]any, len(section))
	for key, value := range section {
		out[key] = value
	}

	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rule := rules[name]
		path := sectionName + "." + name
		value, present := out[name]

		if rule.Required && (value == nil || value == "") {
			return nil, fmt.Errorf("required field missing: %s", path)
		}

		if present && value != nil {
			coerced, err := Coerce(rule, value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}

			if err := checkBounds(rule, coerced, path); err != nil {
				return nil, err
			}
			if err := checkAllowed(rule, coerced, path); err != nil {
				return nil, err
			}

			out[name] = coerced
			continue
		}

		if rule.Default != nil {
			out[name] = rule.Default
		}
	}

	return out, nil
}

// checkBounds applies Min/Max to numeric values. Non-numeric values are
// not bounded.
func checkBounds(rule FieldRule, value any, path string) error {
	if rule.Min == nil && rule.Max == nil {
		return nil
	}

	num, ok := asFloat(value)
	if !ok {
		return nil
	}

	if rule.Min != nil && num < *rule.Min {
		return fmt.Errorf("value %v below minimum %v for %s", value, *rule.Min, path)
	}
	if rule.Max != nil && num > *rule.Max {
		return fmt.Errorf("value %v above maximum %v for %s", value, *rule.Max, path)
	}
	return nil
}

// checkAllowed applies the allowed-value enumeration. Numeric entries
// compare by value so that an int 5 matches a float 5.0.
func checkAllowed(rule FieldRule, value any, path string) error {
	if len(rule.Allowed) == 0 {
		return nil
	}

	for _, allowed := range rule.Allowed {
		if valuesEqual(value, allowed) {
			return nil
		}
	}
	return fmt.Errorf("value %v not in allowed values %v for %s", value, rule.Allowed, path)
}

func valuesEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	return aok && bok && af == bf
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case float32:
		return float64(v), true
	default:
		return 0, false
	}
}
