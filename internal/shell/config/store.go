package config

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/artpar/rollout/internal/core/keypath"
	"github.com/artpar/rollout/internal/core/schema"
)

// =============================================================================
// Store
// =============================================================================

// DefaultEnvPrefix is the prefix for environment variable overrides:
// ROLLOUT_<SECTION>_<FIELD>.
const DefaultEnvPrefix = "ROLLOUT"

// Options configures a Store.
type Options struct {
	// EnvPrefix is the environment variable prefix for LoadFromEnvironment.
	// Default: ROLLOUT.
	EnvPrefix string
}

// Store is the authoritative, validated, cached configuration store.
// It is safe for concurrent use; every mutation of the tree invalidates the
// affected cache entries (conservatively the whole cache on loads).
type Store struct {
	schema    schema.Schema
	envPrefix string
	logger    *slog.Logger

	mu    sync.RWMutex
	tree  map[string]any
	cache map[string]any
}

// NewStore creates a configuration store governed by the given schema.
// The schema is consulted by Validate, by sensitivity masking, and by
// LoadFromEnvironment; general key access is not restricted to it.
func NewStore(sch schema.Schema, opts Options, logger *slog.Logger) *Store {
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = DefaultEnvPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		schema:    sch,
		envPrefix: opts.EnvPrefix,
		logger:    logger.With("component", "config"),
		tree:      make(map[string]any),
		cache:     make(map[string]any),
	}
}

// Schema returns the schema the store was created with.
func (s *Store) Schema() schema.Schema {
	return s.schema
}

// =============================================================================
// Validation
// =============================================================================

// Validate checks every schema-declared section: required fields, type
// coercion, numeric bounds, and allowed values. Coerced values and defaults
// are written back into the tree, so the first failing section aborts with
// earlier sections already coerced. The whole cache is cleared because
// coercion may change any resolved value.
func (s *Store) Validate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sections := s.schema.Sections()
	sort.Strings(sections)

	for _, name := range sections {
		sectionTree, _ := s.tree[name].(map[string]any)
		if sectionTree == nil {
			sectionTree = make(map[string]any)
		}

		validated, err := schema.ValidateSection(sectionTree, s.schema[name], name)
		if err != nil {
			return NewConfigError(name, err.Error(), ErrValidation)
		}
		s.tree[name] = validated
	}

	s.invalidateAllLocked()
	return nil
}

// =============================================================================
// Health
// =============================================================================

// HealthReport describes the store for liveness probes. There is no failure
// path; the store is healthy whenever it exists.
type HealthReport struct {
	Status        string `json:"status"`
	Sections      int    `json:"config_sections"`
	CacheEntries  int    `json:"cache_entries"`
	SchemaPresent bool   `json:"schema_present"`
}

// Health reports section count, cache size, and schema presence.
func (s *Store) Health() HealthReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return HealthReport{
		Status:        "healthy",
		Sections:      len(s.tree),
		CacheEntries:  len(s.cache),
		SchemaPresent: len(s.schema) > 0,
	}
}

// =============================================================================
// Cache Invalidation
// =============================================================================

// Invalidate evicts a single cache entry.
func (s *Store) Invalidate(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, path)
}

// InvalidateAll clears the whole cache.
func (s *Store) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidateAllLocked()
}

func (s *Store) invalidateAllLocked() {
	s.cache = make(map[string]any)
}

// mergeLocked merges src into the tree with src winning on conflicts, and
// clears the cache. Callers must hold the write lock.
func (s *Store) mergeLocked(src map[string]any) {
	s.tree = keypath.Merge(s.tree, src)
	s.invalidateAllLocked()
}
