package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/metrics-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite through sqlx.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Concurrent batch sources share one writer.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	source_id  TEXT NOT NULL,
	input_path TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'queued',
	summary    TEXT,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS decisions (
	run_id         TEXT NOT NULL REFERENCES runs(id),
	seq            INTEGER NOT NULL,
	original_id    TEXT NOT NULL,
	source_id      TEXT NOT NULL,
	action         TEXT NOT NULL,
	rule           TEXT NOT NULL,
	reason         TEXT NOT NULL,
	confidence     REAL NOT NULL,
	kept_record_id TEXT NOT NULL DEFAULT '',
	group_key      TEXT NOT NULL DEFAULT '',
	protected      INTEGER NOT NULL DEFAULT 0,
	changes        TEXT,
	PRIMARY KEY (run_id, original_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source_id);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_decisions_run_action ON decisions(run_id, action);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, sourceID, inputPath string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source_id, input_path, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, sourceID, inputPath, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		SourceID:  sourceID,
		InputPath: inputPath,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, summary *model.Summary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET summary = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(summaryJSON), string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET error = ?, status = ?, updated_at = ? WHERE id = ?`,
		message, string(model.RunStatusFailed), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

// runRow is the runs table as sqlx scans it.
type runRow struct {
	ID        string         `db:"id"`
	SourceID  string         `db:"source_id"`
	InputPath string         `db:"input_path"`
	Status    string         `db:"status"`
	Summary   sql.NullString `db:"summary"`
	Error     sql.NullString `db:"error"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r runRow) toModel() (*model.Run, error) {
	run := &model.Run{
		ID:        r.ID,
		SourceID:  r.SourceID,
		InputPath: r.InputPath,
		Status:    model.RunStatus(r.Status),
		Error:     r.Error.String,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Summary.Valid {
		run.Summary = &model.Summary{}
		if err := json.Unmarshal([]byte(r.Summary.String), run.Summary); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal summary for run %s", r.ID)
		}
	}
	return run, nil
}

const runColumns = `id, source_id, input_path, status, summary, error, created_at, updated_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return row.toModel()
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.SourceID != "" {
		query += ` AND source_id = ?`
		args = append(args, filter.SourceID)
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}

	runs := make([]model.Run, 0, len(rows))
	for _, r := range rows {
		run, err := r.toModel()
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

// decisionRow is the decisions table as sqlx binds and scans it.
type decisionRow struct {
	RunID      string         `db:"run_id"`
	Seq        int            `db:"seq"`
	OriginalID string         `db:"original_id"`
	SourceID   string         `db:"source_id"`
	Action     string         `db:"action"`
	Rule       string         `db:"rule"`
	Reason     string         `db:"reason"`
	Confidence float64        `db:"confidence"`
	KeptID     string         `db:"kept_record_id"`
	GroupKey   string         `db:"group_key"`
	Protected  bool           `db:"protected"`
	Changes    sql.NullString `db:"changes"`
}

func (s *SQLiteStore) SaveDecisions(ctx context.Context, runID string, decisions []model.Decision) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM decisions WHERE run_id = ?`, runID); err != nil {
		return eris.Wrapf(err, "sqlite: clear decisions for run %s", runID)
	}

	stmt, err := tx.PrepareNamedContext(ctx, `INSERT INTO decisions
		(run_id, seq, original_id, source_id, action, rule, reason, confidence, kept_record_id, group_key, protected, changes)
		VALUES (:run_id, :seq, :original_id, :source_id, :action, :rule, :reason, :confidence, :kept_record_id, :group_key, :protected, :changes)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert decision")
	}
	defer stmt.Close() //nolint:errcheck

	for i, d := range decisions {
		row := decisionRow{
			RunID:      runID,
			Seq:        i,
			OriginalID: d.OriginalID,
			SourceID:   d.SourceID,
			Action:     string(d.Action),
			Rule:       d.Rule,
			Reason:     d.Reason,
			Confidence: d.Confidence,
			KeptID:     d.KeptID,
			GroupKey:   d.GroupKey,
			Protected:  d.Protected,
		}
		if len(d.Changes) > 0 {
			changes, err := json.Marshal(d.Changes)
			if err != nil {
				return eris.Wrap(err, "sqlite: marshal changes")
			}
			row.Changes = sql.NullString{String: string(changes), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			return eris.Wrapf(err, "sqlite: insert decision %s", d.OriginalID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit decisions")
}

func (s *SQLiteStore) ListDecisions(ctx context.Context, runID string, action model.Action) ([]model.Decision, error) {
	query := `SELECT * FROM decisions WHERE run_id = ?`
	args := []any{runID}
	if action != "" {
		query += ` AND action = ?`
		args = append(args, string(action))
	}
	query += ` ORDER BY seq`

	var rows []decisionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, eris.Wrapf(err, "sqlite: list decisions for run %s", runID)
	}

	out := make([]model.Decision, 0, len(rows))
	for _, r := range rows {
		d := model.Decision{
			OriginalID: r.OriginalID,
			SourceID:   r.SourceID,
			Action:     model.Action(r.Action),
			Rule:       r.Rule,
			Reason:     r.Reason,
			Confidence: r.Confidence,
			KeptID:     r.KeptID,
			GroupKey:   r.GroupKey,
			Protected:  r.Protected,
		}
		if r.Changes.Valid {
			if err := json.Unmarshal([]byte(r.Changes.String), &d.Changes); err != nil {
				return nil, eris.Wrapf(err, "sqlite: unmarshal changes for %s", r.OriginalID)
			}
		}
		out = append(out, d)
	}
	return out, nil
}

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}
