package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/nvandessel/timedilation/internal/event"
)

// DBFileName is the database file inside the output directory.
const DBFileName = "tdsim.db"

// ErrRunNotFound is returned by LoadRun for a run that was never stored.
var ErrRunNotFound = errors.New("run not found")

// SQLiteStore keeps every run of an output directory in one database.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens or creates dir/tdsim.db.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return openSQLite(filepath.Join(dir, DBFileName))
}

// OpenSQLiteStore opens an existing dir/tdsim.db. Unlike NewSQLiteStore it
// never creates the directory or the database file.
func OpenSQLiteStore(dir string) (*SQLiteStore, error) {
	dbPath := filepath.Join(dir, DBFileName)
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("no database in %s: %w", dir, err)
	}
	return openSQLite(dbPath)
}

func openSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.dbPath }

var (
	insertEvent = fmt.Sprintf("INSERT INTO events (%s) VALUES (%s)",
		strings.Join(event.Columns(), ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(event.Columns())), ", "))
	selectEvents = fmt.Sprintf("SELECT %s FROM events WHERE %s = ? ORDER BY %s",
		strings.Join(event.Columns(), ", "), event.ColRunNumber, event.ColEventID)
)

// WriteRun replaces every row of t's run in a single transaction.
func (s *SQLiteStore) WriteRun(ctx context.Context, t *event.Table) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("run %d: %w", t.Run.Number, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE `+event.ColRunNumber+` = ?`, t.Run.Number); err != nil {
		return fmt.Errorf("failed to clear run %d: %w", t.Run.Number, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertEvent)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < t.Len(); i++ {
		if _, err := stmt.ExecContext(ctx, t.Row(i)...); err != nil {
			return fmt.Errorf("failed to insert event %d of run %d: %w", i, t.Run.Number, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (run, distance_m, events, written_at) VALUES (?, ?, ?, datetime('now'))`,
		t.Run.Number, t.Run.DistanceM, t.Len()); err != nil {
		return fmt.Errorf("failed to record run %d: %w", t.Run.Number, err)
	}

	return tx.Commit()
}

// RemoveRun deletes run n and its events in one transaction.
func (s *SQLiteStore) RemoveRun(ctx context.Context, n int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE `+event.ColRunNumber+` = ?`, n); err != nil {
		return fmt.Errorf("failed to delete events of run %d: %w", n, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run = ?`, n); err != nil {
		return fmt.Errorf("failed to delete run %d: %w", n, err)
	}
	return tx.Commit()
}

// Runs lists the stored runs ordered by run number.
func (s *SQLiteStore) Runs(ctx context.Context) ([]event.RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run, distance_m FROM runs ORDER BY run`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []event.RunInfo
	for rows.Next() {
		var r event.RunInfo
		if err := rows.Scan(&r.Number, &r.DistanceM); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LoadRun reads the table of run n.
func (s *SQLiteStore) LoadRun(ctx context.Context, n int) (*event.Table, error) {
	var info event.RunInfo
	err := s.db.QueryRowContext(ctx, `SELECT run, distance_m FROM runs WHERE run = ?`, n).
		Scan(&info.Number, &info.DistanceM)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, n)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run %d: %w", n, err)
	}

	rows, err := s.db.QueryContext(ctx, selectEvents, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	cols := event.Columns()
	ints := make([]int64, len(cols))
	floats := make([]float64, len(cols))
	dest := make([]any, len(cols))
	for i := range cols {
		if event.ColumnKind(i) == "float" {
			dest[i] = &floats[i]
		} else {
			dest[i] = &ints[i]
		}
	}

	t := event.NewTable(info, 0)
	vals := make([]any, len(cols))
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		for i := range cols {
			if event.ColumnKind(i) == "float" {
				vals[i] = floats[i]
			} else {
				vals[i] = ints[i]
			}
		}
		if err := t.AppendRow(vals); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
