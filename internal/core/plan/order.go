// Package plan provides pure functions for planning a deployment attempt.
// It validates the configured service set and decides the order in which
// services are deployed. All functions are pure (no I/O, no side effects);
// the orchestrator shell executes the resulting sequence.
package plan

import (
	"fmt"
	"sort"

	"github.com/artpar/rollout/internal/core/domain"
)

// =============================================================================
// Service Set Validation
// =============================================================================

// ValidateServiceSet checks that every depends_on reference names a service
// in the set and that no service depends on itself.
func ValidateServiceSet(services []domain.ServiceSpec) error {
	known := make(map[string]bool, len(services))
	for _, svc := range services {
		known[svc.Name] = true
	}

	for _, svc := range services {
		for _, dep := range svc.DependsOn {
			if dep == svc.Name {
				return fmt.Errorf("service %s depends on itself", svc.Name)
			}
			if !known[dep] {
				return fmt.Errorf("service %s depends on unknown service %s", svc.Name, dep)
			}
		}
	}
	return nil
}

// =============================================================================
// Service Ordering
// =============================================================================

// OrderServices sorts services by their depends_on constraints using Kahn's
// algorithm. Dependencies come before their dependents; ties break
// lexicographically by name so the result is deterministic.
//
// If a cycle exists (caught earlier by ValidateServiceSet only for unknown
// references, not cycles), the remaining services are appended in name order
// as a fallback rather than dropped.
func OrderServices(services []domain.ServiceSpec) []domain.ServiceSpec {
	if len(services) == 0 {
		return services
	}

	specMap := make(map[string]domain.ServiceSpec, len(services))
	inDegree := make(map[string]int, len(services))
	dependents := make(map[string][]string)

	for _, svc := range services {
		specMap[svc.Name] = svc
		inDegree[svc.Name] = len(svc.DependsOn)
		for _, dep := range svc.DependsOn {
			dependents[dep] = append(dependents[dep], svc.Name)
		}
	}

	var ready []string
	for name, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	result := make([]domain.ServiceSpec, 0, len(services))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]

		if svc, ok := specMap[name]; ok {
			result = append(result, svc)
		}

		var unblocked []string
		for _, dep := range dependents[name] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				unblocked = append(unblocked, dep)
			}
		}
		if len(unblocked) > 0 {
			ready = append(ready, unblocked...)
			sort.Strings(ready)
		}
	}

	// Cycle fallback: append whatever never reached in-degree zero.
	if len(result) < len(services) {
		placed := make(map[string]bool, len(result))
		for _, svc := range result {
			placed[svc.Name] = true
		}
		var rest []string
		for _, svc := range services {
			if !placed[svc.Name] {
				rest = append(rest, svc.Name)
			}
		}
		sort.Strings(rest)
		for _, name := range rest {
			result = append(result, specMap[name])
		}
	}

	return result
}
