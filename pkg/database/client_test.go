package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/config"
)

func TestSqliteDSN(t *testing.T) {
	assert.Equal(t, "/tmp/a.db?_foreign_keys=on", sqliteDSN("/tmp/a.db"))
	assert.Equal(t, "file:a.db?cache=shared&_foreign_keys=on", sqliteDSN("file:a.db?cache=shared"))
	assert.Equal(t, "a.db?_fk=1", sqliteDSN("a.db?_fk=1"))
}

func TestSqliteForeignKeysSurviveConnectionRecycling(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "search.db")
	c, err := New("sqlite3", dsn, config.StorageConfig{ConnMaxLifetime: time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		time.Sleep(5 * time.Millisecond)
		var on int
		require.NoError(t, c.DB.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&on))
		assert.Equal(t, 1, on, "connection %d", i)
	}
}
