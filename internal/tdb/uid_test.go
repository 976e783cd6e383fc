package tdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/tdbkit/internal/hashstore"
)

func openHashStore(t *testing.T) *hashstore.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records")
	store, err := hashstore.Open(path, hashstore.Options{Writable: true, Create: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGenUIDStartsAtOneAndIncrements(t *testing.T) {
	store := openHashStore(t)
	first, err := genUID(store)
	require.NoError(t, err)
	assert.EqualValues(t, 1, first)

	second, err := genUID(store)
	require.NoError(t, err)
	assert.EqualValues(t, 2, second)
}

func TestGenUIDSurvivesExplicitSeed(t *testing.T) {
	store := openHashStore(t)
	require.NoError(t, store.SetUIDSeed(99))
	next, err := genUID(store)
	require.NoError(t, err)
	assert.EqualValues(t, 100, next)
}
