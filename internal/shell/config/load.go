package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/artpar/rollout/internal/core/keypath"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Source Loading
// =============================================================================

// LoadFromFile parses a configuration document (YAML or JSON, an object of
// section objects) and merges it into the tree. New values overwrite
// existing same-path values. The whole cache is invalidated on success.
func (s *Store) LoadFromFile(path string) error {
	doc, err := parseFile(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeLocked(doc)

	s.logger.Debug("loaded configuration file", "path", path, "sections", len(doc))
	return nil
}

// LoadFromEnvironment overlays schema-declared fields from environment
// variables named <PREFIX>_<SECTION>_<FIELD>, uppercased. Values are the
// raw strings; Validate coerces them later. Unset variables are skipped and
// loading never fails. The cache is cleared when any write happens.
func (s *Store) LoadFromEnvironment() {
	s.mu.Lock()
	defer s.mu.Unlock()

	sections := s.schema.Sections()
	sort.Strings(sections)

	wrote := 0
	for _, section := range sections {
		for field := range s.schema[section] {
			envKey := fmt.Sprintf("%s_%s_%s",
				s.envPrefix,
				strings.ToUpper(section),
				strings.ToUpper(field),
			)
			raw, ok := os.LookupEnv(envKey)
			if !ok {
				continue
			}
			keypath.Set(s.tree, section+"."+field, raw)
			wrote++
		}
	}

	if wrote > 0 {
		s.invalidateAllLocked()
		s.logger.Debug("loaded environment overrides", "count", wrote)
	}
}

// LoadFromMultipleSources loads each file in order, continuing past
// individual failures, then optionally overlays the environment. Later
// sources win on conflicting keys and the environment wins over all files.
// The returned error joins every per-file failure; a nil error means all
// sources loaded.
func (s *Store) LoadFromMultipleSources(paths []string, useEnv bool) error {
	var errs []error
	for _, path := range paths {
		if err := s.LoadFromFile(path); err != nil {
			s.logger.Warn("skipping configuration source", "path", path, "error", err)
			errs = append(errs, err)
		}
	}

	if useEnv {
		s.LoadFromEnvironment()
	}

	return errors.Join(errs...)
}

// Merge deep-merges a configuration tree into the store, with the incoming
// tree winning on conflicts. The whole cache is invalidated.
func (s *Store) Merge(src map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeLocked(src)
}

// Reload re-reads a configuration file but preserves pre-existing values on
// key conflicts: old values win, the inverse priority of LoadFromFile. If
// the file cannot be read or parsed the tree is left exactly as it was.
func (s *Store) Reload(path string) error {
	doc, err := parseFile(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Merge the old tree over the fresh document so old values win.
	s.tree = keypath.Merge(doc, s.tree)
	s.invalidateAllLocked()

	s.logger.Debug("reloaded configuration file", "path", path)
	return nil
}

// =============================================================================
// Document Parsing
// =============================================================================

// parseFile reads and parses a configuration document without touching the
// store. YAML is a superset of JSON, so both formats are accepted.
func parseFile(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewConfigError(path, "configuration file not found", ErrSourceNotFound)
		}
		return nil, NewConfigError(path, fmt.Sprintf("failed to read configuration file: %v", err), ErrParse)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, NewConfigError(path, fmt.Sprintf("invalid configuration document: %v", err), ErrParse)
	}
	if doc == nil {
		doc = make(map[string]any)
	}
	return doc, nil
}
