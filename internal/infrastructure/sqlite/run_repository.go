package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zjrosen/layerforge/internal/ledger"
)

const runColumns = `id, collection, network, seed, target, status, editions, duplicates, error, started_at, completed_at`

const editionColumns = `run_id, edition, configuration, dna, hash, created_at`

// runRepository implements ledger.Repository using SQLite.
type runRepository struct {
	db *sql.DB
}

func newRunRepository(db *sql.DB) *runRepository {
	return &runRepository{db: db}
}

var _ ledger.Repository = (*runRepository)(nil)

func scanRun(scanner interface{ Scan(...any) error }) (*runModel, error) {
	var m runModel
	err := scanner.Scan(
		&m.ID, &m.Collection, &m.Network, &m.Seed, &m.Target, &m.Status,
		&m.Editions, &m.Duplicates, &m.Error, &m.StartedAt, &m.CompletedAt,
	)
	return &m, err
}

func scanEdition(scanner interface{ Scan(...any) error }) (*editionModel, error) {
	var m editionModel
	err := scanner.Scan(&m.RunID, &m.Edition, &m.Configuration, &m.DNA, &m.Hash, &m.CreatedAt)
	return &m, err
}

// CreateRun inserts a new run row.
func (r *runRepository) CreateRun(ctx context.Context, run *ledger.Run) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	if !run.Status.IsValid() {
		return fmt.Errorf("invalid run status %q", run.Status)
	}
	m := toRunModel(run)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Collection, m.Network, m.Seed, m.Target, m.Status,
		m.Editions, m.Duplicates, m.Error, m.StartedAt, m.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun stores the terminal state of a run.
func (r *runRepository) FinishRun(ctx context.Context, id string, status ledger.RunStatus, editions, duplicates int, runErr error, at time.Time) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid run status %q", status)
	}
	var msg *string
	if runErr != nil {
		s := runErr.Error()
		msg = &s
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, editions = ?, duplicates = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(status), editions, duplicates, msg, at.UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return &ledger.RunNotFoundError{ID: id}
	}
	return nil
}

// RecordEdition appends an edition. The run must exist.
func (r *runRepository) RecordEdition(ctx context.Context, e *ledger.Edition) error {
	m := toEditionModel(e)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO editions (`+editionColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		m.RunID, m.Edition, m.Configuration, m.DNA, m.Hash, m.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return &ledger.RunNotFoundError{ID: e.RunID}
		}
		return fmt.Errorf("failed to insert edition: %w", err)
	}
	return nil
}

// FindRun returns a run by id.
func (r *runRepository) FindRun(ctx context.Context, id string) (*ledger.Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	m, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ledger.RunNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find run: %w", err)
	}
	return m.toDomain(), nil
}

// ListRuns returns runs newest first.
func (r *runRepository) ListRuns(ctx context.Context, filter ledger.ListFilter) ([]*ledger.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC, rowid DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*ledger.Run
	for rows.Next() {
		m, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, m.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// ListEditions returns the editions of a run in acceptance order.
func (r *runRepository) ListEditions(ctx context.Context, runID string) ([]*ledger.Edition, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+editionColumns+` FROM editions WHERE run_id = ? ORDER BY seq`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list editions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var editions []*ledger.Edition
	for rows.Next() {
		m, err := scanEdition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edition: %w", err)
		}
		editions = append(editions, m.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate editions: %w", err)
	}
	return editions, nil
}

// Close is a no-op; the connection belongs to DB.
func (r *runRepository) Close() error {
	return nil
}
