// Package ledger keeps an audit trail of protection runs in PostgreSQL.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Store handles ledger storage operations with PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Config contains database configuration
type Config struct {
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// NewStore connects to the database, applies migrations and returns a store.
func NewStore(config *Config, logger *zap.Logger) (*Store, error) {
	migrator, err := NewMigrator(config.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		migrator.Close()
		return nil, err
	}
	if err := migrator.Close(); err != nil {
		logger.Warn("Failed to close migrator", zap.Error(err))
	}

	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	store := &Store{
		db:     db,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	logger.Info("Ledger store initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return store, nil
}

// StartRun inserts a new run row. StartedAt is set by the database when zero.
func (s *Store) StartRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO protection_runs (id, source, categories, started_at)
		VALUES ($1, $2, $3, COALESCE($4, NOW()))
		RETURNING started_at`

	var startedAt *time.Time
	if !run.StartedAt.IsZero() {
		startedAt = &run.StartedAt
	}

	err := s.db.QueryRowContext(ctx, query, run.ID, run.Source, run.Categories, startedAt).Scan(&run.StartedAt)
	if err != nil {
		s.logger.Error("Failed to insert run", zap.Error(err), zap.String("run_id", run.ID))
		return fmt.Errorf("failed to insert run: %w", err)
	}

	s.logger.Debug("Run started", zap.String("run_id", run.ID), zap.String("source", run.Source))
	return nil
}

// RecordDocuments adds document rows for a run in one statement.
func (s *Store) RecordDocuments(ctx context.Context, runID string, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	const columns = 8
	valueStrings := make([]string, 0, len(docs))
	valueArgs := make([]interface{}, 0, len(docs)*columns)

	for i, doc := range docs {
		n := i * columns
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8))
		valueArgs = append(valueArgs,
			runID,
			doc.Path,
			doc.Format,
			doc.Status,
			doc.Replacements,
			doc.Findings,
			doc.DurationMs,
			doc.Error,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO protected_documents (run_id, path, format, status, replacements, findings, duration_ms, error)
		VALUES %s`,
		strings.Join(valueStrings, ","))

	start := time.Now()
	if _, err := s.db.ExecContext(ctx, query, valueArgs...); err != nil {
		s.logger.Error("Document insert failed", zap.Error(err), zap.Int("documents", len(docs)))
		return fmt.Errorf("failed to insert documents: %w", err)
	}

	s.logger.Debug("Documents recorded",
		zap.String("run_id", runID),
		zap.Int("documents", len(docs)),
		zap.Duration("duration", time.Since(start)))

	return nil
}

// FinishRun stores the final counters of a run and marks it finished.
func (s *Store) FinishRun(ctx context.Context, runID string, summary RunSummary) error {
	query := `
		UPDATE protection_runs
		SET finished_at = NOW(), documents = $2, succeeded = $3, failed = $4, skipped = $5, replacements = $6
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, runID,
		summary.Documents, summary.Succeeded, summary.Failed, summary.Skipped, summary.Replacements)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	s.logger.Info("Run finished",
		zap.String("run_id", runID),
		zap.Int64("documents", summary.Documents),
		zap.Int64("failed", summary.Failed),
		zap.Int64("replacements", summary.Replacements))

	return nil
}

// GetRun loads a run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run Run
	query := `
		SELECT id, source, categories, started_at, finished_at,
			documents, succeeded, failed, skipped, replacements
		FROM protection_runs
		WHERE id = $1`

	if err := s.db.GetContext(ctx, &run, query, runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ListDocuments returns the document rows of a run in insertion order.
func (s *Store) ListDocuments(ctx context.Context, runID string) ([]*Document, error) {
	var docs []*Document
	query := `
		SELECT id, run_id, path, format, status, replacements, findings, duration_ms, error, created_at
		FROM protected_documents
		WHERE run_id = $1
		ORDER BY id`

	if err := s.db.SelectContext(ctx, &docs, query, runID); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// GetStats returns totals across all runs
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	query := `
		SELECT
			(SELECT COUNT(*) FROM protection_runs) AS runs,
			COUNT(*) AS documents,
			COUNT(CASE WHEN status = 'failed' THEN 1 END) AS failed,
			COALESCE(SUM(replacements), 0) AS replacements
		FROM protected_documents`

	if err := s.db.GetContext(ctx, stats, query); err != nil {
		return nil, fmt.Errorf("failed to get ledger stats: %w", err)
	}
	return stats, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL masks sensitive information in database URL for logging
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	scheme := strings.Index(userPart, "://")
	colon := strings.LastIndex(userPart, ":")
	if colon <= scheme+2 {
		return url
	}
	return userPart[:colon] + ":***" + url[at:]
}
