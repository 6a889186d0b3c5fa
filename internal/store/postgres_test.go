package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/metrics-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var runCols = []string{"id", "source_id", "input_path", "status", "summary", "error", "created_at", "updated_at"}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runs`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "src", "src.csv", "queued", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), "src", "src.csv")
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)
	assert.Equal(t, model.RunStatusQueued, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, source_id, input_path, status, summary, COALESCE\(error, ''\), created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(runCols).
			AddRow("run-1", "src", "src.csv", "complete", []byte(`{"source_id":"src","total":4,"removed":1}`), "", now, now))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 4, run.Summary.Total)
	assert.Equal(t, 1, run.Summary.Removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("running", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRunStatus(context.Background(), "missing", model.RunStatusRunning)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET summary`).
		WithArgs(pgxmock.AnyArg(), "complete", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.CompleteRun(context.Background(), "run-1", &model.Summary{SourceID: "src"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FailRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET error`).
		WithArgs("boom", "failed", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.FailRun(context.Background(), "run-1", "boom"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	after := now.Add(-24 * time.Hour)

	mock.ExpectQuery(`AND status = \$1 AND source_id = \$2 AND created_at >= \$3 ORDER BY created_at DESC, id LIMIT \$4 OFFSET \$5`).
		WithArgs("failed", "src", after, 10, 5).
		WillReturnRows(pgxmock.NewRows(runCols).
			AddRow("run-2", "src", "src.csv", "failed", []byte(nil), "boom", now, now))

	runs, err := s.ListRuns(context.Background(), RunFilter{
		Status:       model.RunStatusFailed,
		SourceID:     "src",
		CreatedAfter: after,
		Limit:        10,
		Offset:       5,
	})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "boom", runs[0].Error)
	assert.Nil(t, runs[0].Summary)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveDecisions_FirstSaveCopies(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM decisions WHERE run_id = \$1\)`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectCopyFrom(pgx.Identifier{"decisions"}, decisionColumns).WillReturnResult(3)
	mock.ExpectCommit()

	require.NoError(t, s.SaveDecisions(context.Background(), "run-1", sampleDecisions()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveDecisions_ResaveReplaces(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	decisions := sampleDecisions()[:2]

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_decisions"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_decisions"}, decisionColumns).WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("run_id", "original_id"\) DO UPDATE`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectExec(`DELETE FROM decisions WHERE run_id = \$1 AND original_id <> ALL\(\$2\)`).
		WithArgs("run-1", []string{decisions[0].OriginalID, decisions[1].OriginalID}).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveDecisions(context.Background(), "run-1", decisions))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveDecisions_EmptyResaveClears(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(`DELETE FROM decisions`).
		WithArgs("run-1", []string{}).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectCommit()

	require.NoError(t, s.SaveDecisions(context.Background(), "run-1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveDecisions_CopyError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectCopyFrom(pgx.Identifier{"decisions"}, decisionColumns).WillReturnError(errors.New("conn reset"))
	mock.ExpectRollback()

	err := s.SaveDecisions(context.Background(), "run-1", sampleDecisions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save decisions for run run-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListDecisions(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	cols := []string{"original_id", "source_id", "action", "rule", "reason", "confidence", "kept_record_id", "group_key", "protected", "changes"}
	mock.ExpectQuery(`FROM decisions WHERE run_id = \$1 AND action = \$2 ORDER BY seq`).
		WithArgs("run-1", "modify").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("c", "src", "modify", "unit_consistency", "reclassified", 0.75, "", "", true, []byte(`{"metric_type":"growth"}`)))

	got, err := s.ListDecisions(context.Background(), "run-1", model.ActionModify)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, sampleDecisions()[2], got[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}
