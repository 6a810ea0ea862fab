package domain

import (
	"fmt"
	"sort"
)

// =============================================================================
// Service Specifications
// =============================================================================

// ServiceSpec describes one service in the deployment set: its name, its
// opaque deployment parameters, and the names of services it depends on.
type ServiceSpec struct {
	Name       string
	Parameters map[string]any
	DependsOn  []string
}

// ParseServiceSet builds the service set from a configuration subtree whose
// keys are service names and whose values are parameter maps. The result is
// sorted by name so downstream ordering is deterministic. A service whose
// parameters carry a "depends_on" entry (string or list of strings) declares
// deployment ordering constraints.
func ParseServiceSet(tree map[string]any) ([]ServiceSpec, error) {
	names := make([]string, 0, len(tree))
	for name := range tree {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ServiceSpec, 0, len(names))
	for _, name := range names {
		spec := ServiceSpec{Name: name}

		params, ok := tree[name].(map[string]any)
		if !ok && tree[name] != nil {
			return nil, fmt.Errorf("service %s: parameters must be a map, got %T", name, tree[name])
		}
		spec.Parameters = params

		deps, err := parseDependsOn(name, params)
		if err != nil {
			return nil, err
		}
		spec.DependsOn = deps

		out = append(out, spec)
	}
	return out, nil
}

func parseDependsOn(name string, params map[string]any) ([]string, error) {
	if params == nil {
		return nil, nil
	}
	raw, ok := params["depends_on"]
	if !ok {
		return nil, nil
	}

	switch v := raw.(type) {
	case string:
		return []string{v}, nil
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		deps := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("service %s: depends_on entries must be strings, got %T", name, item)
			}
			deps = append(deps, s)
		}
		return deps, nil
	default:
		return nil, fmt.Errorf("service %s: depends_on must be a string or list, got %T", name, raw)
	}
}

// StringParam reads a string parameter from the spec. Returns the empty
// string when absent or not a string.
func (s ServiceSpec) StringParam(key string) string {
	if s.Parameters == nil {
		return ""
	}
	v, _ := s.Parameters[key].(string)
	return v
}

// ServiceNames returns the names of the given specs, in order.
func ServiceNames(specs []ServiceSpec) []string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}
