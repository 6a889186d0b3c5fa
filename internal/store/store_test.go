package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/metrics-cli/internal/config"
)

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	st, err := Open(ctx, config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "runs.db")})
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	assert.IsType(t, &SQLiteStore{}, st)
	run, err := st.CreateRun(ctx, "src", "src.csv")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported driver "mysql"`)
}

func TestOpen_PostgresBadURL(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "postgres", DatabaseURL: "://bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: parse config")
}

func TestListLimit(t *testing.T) {
	assert.Equal(t, 100, listLimit(0))
	assert.Equal(t, 100, listLimit(-1))
	assert.Equal(t, 7, listLimit(7))
}
