package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)

	"github.com/kubilitics/kubilitics-investigator/internal/models"
)

const sqliteBackend = "sqlite"

// timeLayout is fixed-width so that lexical order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// migrations are applied in order; applied versions are tracked in schema_versions.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS cases (
    id            TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL,
    title         TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL,
    current_turn  INTEGER NOT NULL DEFAULT 0,
    degraded_mode TEXT NOT NULL DEFAULT '',
    data          TEXT NOT NULL,
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cases_user ON cases(user_id, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_cases_status ON cases(status);
CREATE INDEX IF NOT EXISTS idx_cases_updated_at ON cases(updated_at DESC);

CREATE TABLE IF NOT EXISTS case_turns (
    case_id       TEXT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
    turn_number   INTEGER NOT NULL,
    status        TEXT NOT NULL,
    outcome       TEXT NOT NULL,
    progress_made INTEGER NOT NULL DEFAULT 0,
    data          TEXT NOT NULL,
    timestamp     TEXT NOT NULL,
    PRIMARY KEY (case_id, turn_number)
);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_case_turns_outcome ON case_turns(outcome);
`,
	},
}

// sqliteStore is the SQLite-backed CaseStore. Turn history lives in its own
// table; the case row stores everything else as JSON.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations. Pass ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (CaseStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if path == ":memory:" {
		// each pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// sqliteDSN adds the per-connection pragmas to path. The driver applies
// _pragma parameters on every new connection, so each pooled connection
// enforces foreign keys.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

// migrate applies any unapplied migrations in order.
func (s *sqliteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Cases ────────────────────────────────────────────────────────────────────

func (s *sqliteStore) SaveCase(ctx context.Context, c *models.Case) (err error) {
	defer func() { observe(sqliteBackend, "save", err) }()

	row := *c
	row.TurnHistory = nil
	data, err := encodeCase(&row)
	if err != nil {
		return err
	}

	var degraded string
	if c.DegradedMode != nil {
		degraded = string(c.DegradedMode.ModeType)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO cases(id, user_id, title, status, current_turn, degraded_mode, data, created_at, updated_at)
        VALUES(?,?,?,?,?,?,?,?,?)
        ON CONFLICT(id) DO UPDATE SET
            title         = excluded.title,
            status        = excluded.status,
            current_turn  = excluded.current_turn,
            degraded_mode = excluded.degraded_mode,
            data          = excluded.data,
            updated_at    = excluded.updated_at
    `,
		c.ID, c.UserID, c.Title, string(c.Status), c.CurrentTurn, degraded, string(data),
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert case: %w", err)
	}

	// turn history is append-only, so existing rows are left in place
	for _, t := range c.TurnHistory {
		turnData, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode turn %d: %w", t.TurnNumber, err)
		}
		_, err = tx.ExecContext(ctx, `
            INSERT INTO case_turns(case_id, turn_number, status, outcome, progress_made, data, timestamp)
            VALUES(?,?,?,?,?,?,?)
            ON CONFLICT(case_id, turn_number) DO NOTHING
        `, c.ID, t.TurnNumber, string(t.Status), string(t.Outcome), t.ProgressMade, string(turnData), formatTime(t.Timestamp))
		if err != nil {
			return fmt.Errorf("insert turn %d: %w", t.TurnNumber, err)
		}
	}

	return tx.Commit()
}

func (s *sqliteStore) GetCase(ctx context.Context, id string) (c *models.Case, err error) {
	defer func() { observe(sqliteBackend, "get", err) }()

	var data string
	err = s.db.QueryRowContext(ctx, `SELECT data FROM cases WHERE id=?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query case: %w", err)
	}

	c, err = decodeCase([]byte(data))
	if err != nil {
		return nil, err
	}
	c.TurnHistory, err = s.queryTurns(ctx, id)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *sqliteStore) ListCases(ctx context.Context, f CaseFilter) (out []CaseSummary, err error) {
	defer func() { observe(sqliteBackend, "list", err) }()

	query := `SELECT id, user_id, title, status, current_turn, degraded_mode, created_at, updated_at FROM cases WHERE 1=1`
	var args []any
	if f.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY updated_at DESC, id ASC LIMIT ? OFFSET ?`
	args = append(args, f.limit(), f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	out = make([]CaseSummary, 0)
	for rows.Next() {
		var (
			sum                  CaseSummary
			status, degraded     string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&sum.ID, &sum.UserID, &sum.Title, &status, &sum.CurrentTurn, &degraded, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		sum.Status = models.CaseStatus(status)
		sum.DegradedMode = models.DegradedModeType(degraded)
		sum.CreatedAt, _ = parseTime(createdAt)
		sum.UpdatedAt, _ = parseTime(updatedAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ListTurns(ctx context.Context, caseID string) (turns []models.TurnProgress, err error) {
	defer func() { observe(sqliteBackend, "list_turns", err) }()

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cases WHERE id=?`, caseID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check case: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, caseID)
	}
	return s.queryTurns(ctx, caseID)
}

func (s *sqliteStore) queryTurns(ctx context.Context, caseID string) ([]models.TurnProgress, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM case_turns WHERE case_id=? ORDER BY turn_number ASC`, caseID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	turns := make([]models.TurnProgress, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var t models.TurnProgress
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, fmt.Errorf("decode turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime handles the stored layout plus common SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	layouts := []string{
		timeLayout,
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
