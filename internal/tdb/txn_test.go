package tdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/tdbkit/internal/columnmap"
	"github.com/dreamware/tdbkit/internal/hashstore"
	"github.com/dreamware/tdbkit/internal/index"
)

func newTxnFixture(t *testing.T) (*hashstore.Store, *index.Manager) {
	t.Helper()
	base := filepath.Join(t.TempDir(), "records")
	store, err := hashstore.Open(base, hashstore.Options{Writable: true, Create: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	mgr := index.NewManager(base, 1<<20)
	t.Cleanup(func() { _ = mgr.Close() })
	require.NoError(t, mgr.SetIndex("name", index.Lexical, false, false, true))
	return store, mgr
}

func TestTxnAbortRestoresOverwrittenRecord(t *testing.T) {
	store, mgr := newTxnFixture(t)

	oldCols := columnmap.New()
	require.NoError(t, oldCols.Set("name", []byte("Alice")))
	require.NoError(t, store.Put([]byte("k1"), columnmap.Dump(oldCols), true))
	require.NoError(t, mgr.PutIndices([]byte("k1"), oldCols.Entries()))

	tr := newTxn()
	oldRaw, err := store.Get([]byte("k1"))
	require.NoError(t, err)
	tr.record([]byte("k1"), true, oldRaw)

	newCols := columnmap.New()
	require.NoError(t, newCols.Set("name", []byte("Bob")))
	require.NoError(t, mgr.ApplyDelta([]byte("k1"), oldCols, newCols))
	require.NoError(t, store.Put([]byte("k1"), columnmap.Dump(newCols), true))

	require.NoError(t, tr.abort(store, mgr))

	raw, err := store.Get([]byte("k1"))
	require.NoError(t, err)
	restored, err := columnmap.Load(raw)
	require.NoError(t, err)
	v, _ := restored.Get("name")
	assert.Equal(t, "Alice", string(v))
}

func TestTxnAbortRemovesNewRecord(t *testing.T) {
	store, mgr := newTxnFixture(t)

	tr := newTxn()
	tr.record([]byte("new"), false, nil)

	cols := columnmap.New()
	require.NoError(t, cols.Set("name", []byte("Carol")))
	require.NoError(t, mgr.ApplyDelta([]byte("new"), nil, cols))
	require.NoError(t, store.Put([]byte("new"), columnmap.Dump(cols), true))

	require.NoError(t, tr.abort(store, mgr))

	_, err := store.Get([]byte("new"))
	require.Error(t, err)
}

func TestTxnRecordOnlySnapshotsFirstTouch(t *testing.T) {
	tr := newTxn()
	tr.record([]byte("k1"), true, []byte("first"))
	tr.record([]byte("k1"), true, []byte("second"))
	assert.Equal(t, []byte("first"), tr.entries["k1"].oldValue)
}
