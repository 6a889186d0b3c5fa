package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/metrics-cli/internal/db"
	"github.com/sells-group/metrics-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	source_id  TEXT NOT NULL,
	input_path TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'queued',
	summary    JSONB,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS decisions (
	run_id         TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq            INTEGER NOT NULL,
	original_id    TEXT NOT NULL,
	source_id      TEXT NOT NULL,
	action         TEXT NOT NULL,
	rule           TEXT NOT NULL,
	reason         TEXT NOT NULL,
	confidence     DOUBLE PRECISION NOT NULL,
	kept_record_id TEXT NOT NULL DEFAULT '',
	group_key      TEXT NOT NULL DEFAULT '',
	protected      BOOLEAN NOT NULL DEFAULT false,
	changes        JSONB,
	PRIMARY KEY (run_id, original_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source_id);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_decisions_run_action ON decisions(run_id, action);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, sourceID, inputPath string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, source_id, input_path, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, sourceID, inputPath, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
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

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, summary *model.Summary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET summary = $1, status = $2, updated_at = $3 WHERE id = $4`,
		summaryJSON, string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET error = $1, status = $2, updated_at = $3 WHERE id = $4`,
		message, string(model.RunStatusFailed), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

const pgRunColumns = `id, source_id, input_path, status, summary, COALESCE(error, ''), created_at, updated_at`

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var status string
	var summaryJSON []byte

	if err := row.Scan(&r.ID, &r.SourceID, &r.InputPath, &status, &summaryJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if len(summaryJSON) > 0 {
		r.Summary = &model.Summary{}
		if err := json.Unmarshal(summaryJSON, r.Summary); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal summary for run %s", r.ID)
		}
	}
	return &r, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPgRun(s.pool.QueryRow(ctx, `SELECT `+pgRunColumns+` FROM runs WHERE id = $1`, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + pgRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.SourceID != "" {
		query += fmt.Sprintf(` AND source_id = $%d`, argIdx)
		args = append(args, filter.SourceID)
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.CreatedAfter)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

var decisionColumns = []string{
	"run_id", "seq", "original_id", "source_id", "action", "rule", "reason",
	"confidence", "kept_record_id", "group_key", "protected", "changes",
}

// SaveDecisions replaces the decisions of a run in one transaction. The
// first save of a run is a plain COPY; a later save upserts on
// (run_id, original_id) and drops rows absent from the new set.
func (s *PostgresStore) SaveDecisions(ctx context.Context, runID string, decisions []model.Decision) error {
	rows := make([][]any, len(decisions))
	ids := make([]string, len(decisions))
	for i, d := range decisions {
		var changes []byte
		if len(d.Changes) > 0 {
			var err error
			if changes, err = json.Marshal(d.Changes); err != nil {
				return eris.Wrap(err, "postgres: marshal changes")
			}
		}
		rows[i] = []any{
			runID, i, d.OriginalID, d.SourceID, string(d.Action), d.Rule, d.Reason,
			d.Confidence, d.KeptID, d.GroupKey, d.Protected, changes,
		}
		ids[i] = d.OriginalID
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save decisions")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var existing bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM decisions WHERE run_id = $1)`, runID).Scan(&existing); err != nil {
		return eris.Wrapf(err, "postgres: check decisions for run %s", runID)
	}

	if !existing {
		if _, err := db.CopyFrom(ctx, tx, "decisions", decisionColumns, rows); err != nil {
			return eris.Wrapf(err, "postgres: save decisions for run %s", runID)
		}
	} else {
		if _, err := db.UpsertTx(ctx, tx, db.UpsertConfig{
			Table:        "decisions",
			Columns:      decisionColumns,
			ConflictKeys: []string{"run_id", "original_id"},
		}, rows); err != nil {
			return eris.Wrapf(err, "postgres: save decisions for run %s", runID)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM decisions WHERE run_id = $1 AND original_id <> ALL($2)`, runID, ids); err != nil {
			return eris.Wrapf(err, "postgres: prune decisions for run %s", runID)
		}
	}

	return eris.Wrapf(tx.Commit(ctx), "postgres: commit decisions for run %s", runID)
}

func (s *PostgresStore) ListDecisions(ctx context.Context, runID string, action model.Action) ([]model.Decision, error) {
	query := `SELECT original_id, source_id, action, rule, reason, confidence, kept_record_id, group_key, protected, changes
		FROM decisions WHERE run_id = $1`
	args := []any{runID}
	if action != "" {
		query += ` AND action = $2`
		args = append(args, string(action))
	}
	query += ` ORDER BY seq`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list decisions for run %s", runID)
	}
	defer rows.Close()

	var out []model.Decision
	for rows.Next() {
		var d model.Decision
		var act string
		var changes []byte
		if err := rows.Scan(&d.OriginalID, &d.SourceID, &act, &d.Rule, &d.Reason, &d.Confidence,
			&d.KeptID, &d.GroupKey, &d.Protected, &changes); err != nil {
			return nil, eris.Wrap(err, "postgres: scan decision")
		}
		d.Action = model.Action(act)
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &d.Changes); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal changes for %s", d.OriginalID)
			}
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list decisions iterate")
}
