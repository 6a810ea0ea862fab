package config

import (
	"fmt"

	"github.com/artpar/rollout/internal/core/keypath"
	"github.com/artpar/rollout/internal/core/schema"
)

// =============================================================================
// Key Access
// =============================================================================

// Get resolves a dot-path, consulting the cache first. Paths with no schema
// entry are permitted; the schema only governs Validate and sensitivity.
func (s *Store) Get(path string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.cache[path]; ok {
		return v, nil
	}

	v, ok := keypath.Get(s.tree, path)
	if !ok {
		return nil, NewConfigError(path, "configuration key not found", ErrKeyNotFound)
	}

	s.cache[path] = v
	return v, nil
}

// GetOr resolves a dot-path, returning (and caching) the default when the
// path is absent.
func (s *Store) GetOr(path string, def any) any {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.cache[path]; ok {
		return v
	}

	v, ok := keypath.Get(s.tree, path)
	if !ok {
		v = def
	}
	s.cache[path] = v
	return v
}

// Set writes a value at a dot-path, creating intermediate nodes as needed.
// Only the written path's cache entry is evicted; this is narrower than the
// whole-cache invalidation done by loads.
func (s *Store) Set(path string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keypath.Set(s.tree, path, value)
	delete(s.cache, path)
}

// Unset removes the value at a dot-path and evicts its cache entry.
// Returns true when a value was removed.
func (s *Store) Unset(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := keypath.Delete(s.tree, path)
	delete(s.cache, path)
	return removed
}

// =============================================================================
// Typed Access
// =============================================================================

// GetString returns the value at path in string form.
func (s *Store) GetString(path string) (string, error) {
	v, err := s.Get(path)
	if err != nil {
		return "", err
	}
	return schema.CoerceString(v), nil
}

// GetStringOr returns the string at path, or the default when absent.
func (s *Store) GetStringOr(path, def string) string {
	v := s.GetOr(path, def)
	return schema.CoerceString(v)
}

// GetInt returns the value at path coerced to int. A value that cannot be
// converted is a validation error, never a silent zero.
func (s *Store) GetInt(path string) (int, error) {
	v, err := s.Get(path)
	if err != nil {
		return 0, err
	}
	n, cerr := schema.CoerceInt(v)
	if cerr != nil {
		return 0, NewConfigError(path, cerr.Error(), ErrValidation)
	}
	return n, nil
}

// GetIntOr returns the int at path, or the default when the path is absent.
// A present but unconvertible value is still a validation error.
func (s *Store) GetIntOr(path string, def int) (int, error) {
	v := s.GetOr(path, def)
	n, cerr := schema.CoerceInt(v)
	if cerr != nil {
		return 0, NewConfigError(path, cerr.Error(), ErrValidation)
	}
	return n, nil
}

// GetFloat returns the value at path coerced to float64.
func (s *Store) GetFloat(path string) (float64, error) {
	v, err := s.Get(path)
	if err != nil {
		return 0, err
	}
	f, cerr := schema.CoerceFloat(v)
	if cerr != nil {
		return 0, NewConfigError(path, cerr.Error(), ErrValidation)
	}
	return f, nil
}

// GetFloatOr returns the float at path, or the default when absent.
func (s *Store) GetFloatOr(path string, def float64) (float64, error) {
	v := s.GetOr(path, def)
	f, cerr := schema.CoerceFloat(v)
	if cerr != nil {
		return 0, NewConfigError(path, cerr.Error(), ErrValidation)
	}
	return f, nil
}

// GetBool returns the value at path coerced to bool.
func (s *Store) GetBool(path string) (bool, error) {
	v, err := s.Get(path)
	if err != nil {
		return false, err
	}
	b, cerr := schema.CoerceBool(v)
	if cerr != nil {
		return false, NewConfigError(path, cerr.Error(), ErrValidation)
	}
	return b, nil
}

// GetBoolOr returns the bool at path, or the default when absent.
func (s *Store) GetBoolOr(path string, def bool) (bool, error) {
	v := s.GetOr(path, def)
	b, cerr := schema.CoerceBool(v)
	if cerr != nil {
		return false, NewConfigError(path, cerr.Error(), ErrValidation)
	}
	return b, nil
}

// GetSection returns the subtree at path as a map, or an empty map when the
// path is absent.
func (s *Store) GetSection(path string) map[string]any {
	v, err := s.Get(path)
	if err != nil {
		return map[string]any{}
	}
	section, ok := v.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return section
}

// =============================================================================
// Masked Access & Export
// =============================================================================

// GetMasked returns the value at path in string form, with the interior
// masked when the schema marks the field sensitive. Non-string values are
// stringified before masking.
func (s *Store) GetMasked(path string, maskChar byte) (string, error) {
	v, err := s.Get(path)
	if err != nil {
		return "", err
	}

	str := schema.CoerceString(v)
	if s.schema.IsSensitive(path) {
		return schema.MaskValue(str, maskChar), nil
	}
	return str, nil
}

// Export returns a deep copy of the configuration tree. With maskSensitive
// set, every schema-flagged sensitive leaf is replaced by its export mask
// form ("ab***z", or "***" for short values).
func (s *Store) Export(maskSensitive bool) map[string]any {
	s.mu.RLock()
	out := keypath.DeepCopy(s.tree)
	s.mu.RUnlock()

	if !maskSensitive {
		return out
	}

	for section, rules := range s.schema {
		for field, rule := range rules {
			if !rule.Sensitive {
				continue
			}
			path := fmt.Sprintf("%s.%s", section, field)
			if v, ok := keypath.Get(out, path); ok {
				keypath.Set(out, path, schema.MaskExport(schema.CoerceString(v)))
			}
		}
	}
	return out
}
