package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/storage/storagetest"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/database"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "search.db")
	client, err := database.New("sqlite3", dsn, config.StorageConfig{})
	require.NoError(t, err)
	store, err := New(context.Background(), client)
	require.NoError(t, err)
	return store
}

func TestSQLiteStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return openSQLite(t) })
}

func TestSchemaIsReentrant(t *testing.T) {
	store := openSQLite(t)
	defer store.Close()
	_, err := New(context.Background(), store.client)
	assert.NoError(t, err)
}

func TestRebind(t *testing.T) {
	pg := &Store{client: &database.Client{Driver: "postgres"}}
	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b IN ($2, $3)", pg.q("SELECT 1 WHERE a = ? AND b IN (?, ?)"))

	lite := &Store{client: &database.Client{Driver: "sqlite3"}}
	assert.Equal(t, "a = ?", lite.q("a = ?"))
}

func TestFindLemmasByTextEmpty(t *testing.T) {
	store := openSQLite(t)
	defer store.Close()
	lemmas, err := store.FindLemmasByText(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Empty(t, lemmas)
}
