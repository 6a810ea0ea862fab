package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// Type Coercion
// =============================================================================

// Boolean string forms accepted by CoerceBool, lowercased.
var (
	truthyStrings = map[string]bool{"true": true, "1": true, "yes": true, "on": true}
	falsyStrings  = map[string]bool{"false": true, "0": true, "no": true, "off": true}
)

// Coerce converts a raw value to the rule's declared type. String
// representations of numbers and booleans are parsed; values already of the
// declared type pass through. A value that cannot be converted is an error,
// never a silent zero.
func Coerce(rule FieldRule, value any) (any, error) {
	switch rule.Type {
	case TypeInteger:
		return CoerceInt(value)
	case TypeFloat:
		return CoerceFloat(value)
	case TypeBoolean:
		return CoerceBool(value)
	case TypeList:
		return CoerceList(value)
	case TypeString, "":
		return CoerceString(value), nil
	default:
		return nil, fmt.Errorf("unknown field type %q", rule.Type)
	}
}

// CoerceInt converts a value to int.
func CoerceInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int8:
		return int(v), nil
	case int16:
		return int(v), nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint:
		return int(v), nil
	case uint32:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float32:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to integer", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("cannot convert %v to integer", value)
	}
}

// CoerceFloat converts a value to float64.
func CoerceFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to float", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %v to float", value)
	}
}

// CoerceBool converts a value to bool. String forms "true"/"1"/"yes"/"on"
// and their negations are accepted case-insensitively; anything else fails.
func CoerceBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		lower := strings.ToLower(strings.TrimSpace(v))
		if truthyStrings[lower] {
			return true, nil
		}
		if falsyStrings[lower] {
			return false, nil
		}
		return false, fmt.Errorf("cannot convert %q to boolean", v)
	default:
		return false, fmt.Errorf("cannot convert %v to boolean", value)
	}
}

// CoerceList checks that a value is a list. Lists are passed through
// opaquely; element types are not coerced.
func CoerceList(value any) ([]any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot convert %v to list", value)
	}
}

// CoerceString converts any value to its string form. This never fails.
func CoerceString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}
