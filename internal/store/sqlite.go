package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nvandessel/simreplay/internal/replay"
	_ "modernc.org/sqlite" // SQLite driver
)

// timeLayout is fixed-width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteRunStore implements RunStore using SQLite for persistence.
type SQLiteRunStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteRunStore opens (creating if needed) the database at dbPath.
func NewSQLiteRunStore(dbPath string) (*SQLiteRunStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteRunStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteRunStore) Path() string { return s.dbPath }

// SaveRun inserts or replaces a report and its step records.
func (s *SQLiteRunStore) SaveRun(ctx context.Context, r *RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		return fmt.Errorf("run ID is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, scenario, world, agent, horizon, steps, status, error,
			max_position_x, max_position_y, max_heading, max_speed,
			started_at, duration_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			scenario = excluded.scenario,
			world = excluded.world,
			agent = excluded.agent,
			horizon = excluded.horizon,
			steps = excluded.steps,
			status = excluded.status,
			error = excluded.error,
			max_position_x = excluded.max_position_x,
			max_position_y = excluded.max_position_y,
			max_heading = excluded.max_heading,
			max_speed = excluded.max_speed,
			started_at = excluded.started_at,
			duration_ns = excluded.duration_ns`,
		r.ID, r.Scenario, r.World, r.Agent, r.Horizon, r.Steps, string(r.Status), nullString(r.Error),
		r.Max.Position[0], r.Max.Position[1], r.Max.Heading, r.Max.Speed,
		r.StartedAt.UTC().Format(timeLayout), int64(r.Duration),
	); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_steps WHERE run_id = ?`, r.ID); err != nil {
		return fmt.Errorf("failed to clear run steps: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_steps (
			run_id, idx, action_dx, action_dy, action_dyaw,
			position_x, position_y, expected_x, expected_y,
			heading, expected_heading, speed, expected_speed,
			dev_x, dev_y, dev_heading, dev_speed, consistent
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare step insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range r.Records {
		if _, err := stmt.ExecContext(ctx,
			r.ID, rec.Index, rec.Action[0], rec.Action[1], rec.Action[2],
			rec.Position[0], rec.Position[1], rec.ExpectedPosition[0], rec.ExpectedPosition[1],
			rec.Heading, rec.ExpectedHeading, rec.Speed, rec.ExpectedSpeed,
			rec.Deviation.Position[0], rec.Deviation.Position[1], rec.Deviation.Heading, rec.Deviation.Speed,
			boolToInt(rec.Consistent),
		); err != nil {
			return fmt.Errorf("failed to save step %d: %w", rec.Index, err)
		}
	}

	return tx.Commit()
}

const runColumns = `id, scenario, world, agent, horizon, steps, status, error,
	max_position_x, max_position_y, max_heading, max_speed, started_at, duration_ns`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunReport, error) {
	var (
		r        RunReport
		status   string
		errText  sql.NullString
		started  string
		duration int64
	)
	if err := row.Scan(&r.ID, &r.Scenario, &r.World, &r.Agent, &r.Horizon, &r.Steps, &status, &errText,
		&r.Max.Position[0], &r.Max.Position[1], &r.Max.Heading, &r.Max.Speed, &started, &duration); err != nil {
		return nil, err
	}
	r.Status = Status(status)
	r.Error = errText.String
	t, err := time.Parse(timeLayout, started)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at %q: %w", started, err)
	}
	r.StartedAt = t
	r.Duration = time.Duration(duration)
	return &r, nil
}

// GetRun retrieves a report with its records. Returns nil if not found.
func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, action_dx, action_dy, action_dyaw,
			position_x, position_y, expected_x, expected_y,
			heading, expected_heading, speed, expected_speed,
			dev_x, dev_y, dev_heading, dev_speed, consistent
		FROM run_steps WHERE run_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query run steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec replay.StepRecord
		var consistent int
		if err := rows.Scan(&rec.Index, &rec.Action[0], &rec.Action[1], &rec.Action[2],
			&rec.Position[0], &rec.Position[1], &rec.ExpectedPosition[0], &rec.ExpectedPosition[1],
			&rec.Heading, &rec.ExpectedHeading, &rec.Speed, &rec.ExpectedSpeed,
			&rec.Deviation.Position[0], &rec.Deviation.Position[1], &rec.Deviation.Heading, &rec.Deviation.Speed,
			&consistent); err != nil {
			return nil, fmt.Errorf("failed to scan run step: %w", err)
		}
		rec.Consistent = consistent != 0
		r.Records = append(r.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read run steps: %w", err)
	}
	return r, nil
}

// ListRuns returns matching reports, newest first, without records.
func (s *SQLiteRunStore) ListRuns(ctx context.Context, f RunFilter) ([]RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if f.Scenario != "" {
		where = append(where, "scenario = ?")
		args = append(args, f.Scenario)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunReport
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// DeleteRun removes a report and, by cascade, its step records.
func (s *SQLiteRunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteRunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
