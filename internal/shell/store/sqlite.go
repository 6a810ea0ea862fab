package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/rollout/internal/core/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Row Mapping
// =============================================================================

// recordRow represents a deployment record row in the database.
type recordRow struct {
	ID           string  `db:"id"`
	Status       string  `db:"status"`
	Attempt      int     `db:"attempt"`
	Services     *string `db:"services"`
	ErrorMessage string  `db:"error_message"`
	StartedAt    string  `db:"started_at"`
	FinishedAt   *string `db:"finished_at"`
	UpdatedAt    string  `db:"updated_at"`
}

func toRow(record *domain.DeploymentRecord) (*recordRow, error) {
	row := &recordRow{
		ID:           record.ID,
		Status:       string(record.Status),
		Attempt:      record.Attempt,
		ErrorMessage: record.ErrorMessage,
		StartedAt:    record.StartedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:    time.Now().UTC().Format(time.RFC3339Nano),
	}

	if len(record.Services) > 0 {
		data, err := json.Marshal(record.Services)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
		s := string(data)
		row.Services = &s
	}
	if record.FinishedAt != nil {
		s := record.FinishedAt.UTC().Format(time.RFC3339Nano)
		row.FinishedAt = &s
	}
	return row, nil
}

func (r *recordRow) toDomain() (*domain.DeploymentRecord, error) {
	startedAt, err := time.Parse(time.RFC3339Nano, r.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: started_at: %v", ErrInvalidData, err)
	}

	record := &domain.DeploymentRecord{
		ID:           r.ID,
		Status:       domain.DeploymentStatus(r.Status),
		Attempt:      r.Attempt,
		ErrorMessage: r.ErrorMessage,
		StartedAt:    startedAt,
	}

	if r.Services != nil {
		if err := json.Unmarshal([]byte(*r.Services), &record.Services); err != nil {
			return nil, fmt.Errorf("%w: services: %v", ErrInvalidData, err)
		}
	}
	if r.FinishedAt != nil {
		finishedAt, err := time.Parse(time.RFC3339Nano, *r.FinishedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: finished_at: %v", ErrInvalidData, err)
		}
		record.FinishedAt = &finishedAt
	}
	return record, nil
}

// =============================================================================
// Record Operations
// =============================================================================

func (s *SQLiteStore) CreateRecord(ctx context.Context, record *domain.DeploymentRecord) error {
	row, err := toRow(record)
	if err != nil {
		return NewStoreError("CreateRecord", record.ID, err.Error(), ErrInvalidData)
	}

	query := `
		INSERT INTO deployment_records (
			id, status, attempt, services, error_message,
			started_at, finished_at, updated_at
		) VALUES (
			:id, :status, :attempt, :services, :error_message,
			:started_at, :finished_at, :updated_at
		)`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: deployment_records.id") {
			return NewStoreError("CreateRecord", record.ID, "duplicate record id", ErrDuplicateID)
		}
		return NewStoreError("CreateRecord", record.ID, err.Error(), err)
	}
	return nil
}

func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*domain.DeploymentRecord, error) {
	var row recordRow
	query := `SELECT * FROM deployment_records WHERE id = ?`

	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetRecord", id, "record not found", ErrNotFound)
		}
		return nil, NewStoreError("GetRecord", id, err.Error(), err)
	}
	return row.toDomain()
}

func (s *SQLiteStore) UpdateRecord(ctx context.Context, record *domain.DeploymentRecord) error {
	row, err := toRow(record)
	if err != nil {
		return NewStoreError("UpdateRecord", record.ID, err.Error(), ErrInvalidData)
	}

	query := `
		UPDATE deployment_records SET
			status = :status,
			attempt = :attempt,
			services = :services,
			error_message = :error_message,
			started_at = :started_at,
			finished_at = :finished_at,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := s.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("UpdateRecord", record.ID, err.Error(), err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return NewStoreError("UpdateRecord", record.ID, err.Error(), err)
	}
	if affected == 0 {
		return NewStoreError("UpdateRecord", record.ID, "record not found", ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeleteRecord(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM deployment_records WHERE id = ?`, id)
	if err != nil {
		return NewStoreError("DeleteRecord", id, err.Error(), err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return NewStoreError("DeleteRecord", id, err.Error(), err)
	}
	if affected == 0 {
		return NewStoreError("DeleteRecord", id, "record not found", ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context, opts ListOptions) ([]domain.DeploymentRecord, error) {
	opts = opts.Normalize()

	var rows []recordRow
	query := `
		SELECT * FROM deployment_records
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?`

	if err := s.db.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListRecords", "", err.Error(), err)
	}
	return toDomainList("ListRecords", rows)
}

func (s *SQLiteStore) ListRecordsByStatus(ctx context.Context, status domain.DeploymentStatus, opts ListOptions) ([]domain.DeploymentRecord, error) {
	opts = opts.Normalize()

	var rows []recordRow
	query := `
		SELECT * FROM deployment_records
		WHERE status = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?`

	if err := s.db.SelectContext(ctx, &rows, query, string(status), opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListRecordsByStatus", "", err.Error(), err)
	}
	return toDomainList("ListRecordsByStatus", rows)
}

func toDomainList(op string, rows []recordRow) ([]domain.DeploymentRecord, error) {
	records := make([]domain.DeploymentRecord, 0, len(rows))
	for i := range rows {
		record, err := rows[i].toDomain()
		if err != nil {
			return nil, NewStoreError(op, rows[i].ID, err.Error(), ErrInvalidData)
		}
		records = append(records, *record)
	}
	return records, nil
}

// =============================================================================
// Retention
// =============================================================================

// PruneBefore removes records started before the cutoff and returns how
// many were deleted.
func (s *SQLiteStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM deployment_records WHERE started_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, NewStoreError("PruneBefore", "", err.Error(), err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, NewStoreError("PruneBefore", "", err.Error(), err)
	}
	return affected, nil
}
