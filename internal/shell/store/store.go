package store

import (
	"context"
	"time"

	"github.com/artpar/rollout/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for deployment history.
type Store interface {
	// Record operations
	CreateRecord(ctx context.Context, record *domain.DeploymentRecord) error
	GetRecord(ctx context.Context, id string) (*domain.DeploymentRecord, error)
	UpdateRecord(ctx context.Context, record *domain.DeploymentRecord) error
	DeleteRecord(ctx context.Context, id string) error
	ListRecords(ctx context.Context, opts ListOptions) ([]domain.DeploymentRecord, error)
	ListRecordsByStatus(ctx context.Context, status domain.DeploymentStatus, opts ListOptions) ([]domain.DeploymentRecord, error)

	// Retention
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options. Records are always listed newest
// first.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
