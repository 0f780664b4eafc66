// Package postgresql provides the PostgreSQL persistence implementation. Records are
// stored as JSONB documents next to the columns used for filtering and ordering.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/dukex/dealflow/pkg/persistence/sqlbase"
	// Registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	rules       *RuleRepository
	executions  *ExecutionRepository
	templates   *TemplateRepository
	workflows   *WorkflowRepository
	enrollments *EnrollmentRepository
	entities    *EntityRepository
}

// NewPersistence connects to databaseURL and runs pending migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger = logger.With("module", "postgresql")

	if err := sqlbase.NewMigrationManager(logger, database, migrations()).RunMigrations(ctx); err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	base := store{db: database, logger: logger}

	return &Persistence{
		db:          database,
		logger:      logger,
		rules:       &RuleRepository{base},
		executions:  &ExecutionRepository{base},
		templates:   &TemplateRepository{base},
		workflows:   &WorkflowRepository{base},
		enrollments: &EnrollmentRepository{base},
		entities:    &EntityRepository{base},
	}, nil
}

func (p *Persistence) RuleRepository() persistence.RuleRepository           { return p.rules }
func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository { return p.executions }
func (p *Persistence) TemplateRepository() persistence.TemplateRepository   { return p.templates }
func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository   { return p.workflows }
func (p *Persistence) EnrollmentRepository() persistence.EnrollmentRepository {
	return p.enrollments
}
func (p *Persistence) EntityRepository() persistence.EntityRepository { return p.entities }

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// store holds what every repository needs.
type store struct {
	db     *sql.DB
	logger *slog.Logger
}

// queryDocuments runs a query selecting a single JSONB column and decodes every row.
func queryDocuments[T any](ctx context.Context, s store, query string, args ...any) ([]*T, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	items := make([]*T, 0)

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		item := new(T)
		if err := json.Unmarshal(raw, item); err != nil {
			return nil, fmt.Errorf("failed to decode row: %w", err)
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return items, nil
}

// getDocument decodes the single JSONB column of one row. found is false on no rows.
func getDocument[T any](ctx context.Context, s store, query string, args ...any) (*T, bool, error) {
	var raw []byte

	err := s.db.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to query row: %w", err)
	}

	item := new(T)
	if err := json.Unmarshal(raw, item); err != nil {
		return nil, false, fmt.Errorf("failed to decode row: %w", err)
	}

	return item, true, nil
}

// exec runs a statement and reports whether it touched any row.
func exec(ctx context.Context, s store, query string, args ...any) (bool, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

func stamp(createdAt, updatedAt *time.Time) {
	now := time.Now().UTC()

	if createdAt.IsZero() {
		*createdAt = now
	}

	if updatedAt.IsZero() {
		*updatedAt = *createdAt
	}
}

var _ persistence.Persistence = (*Persistence)(nil)
