package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/tdbkit/internal/columnmap"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	base := filepath.Join(t.TempDir(), "records")
	return NewManager(base, 1<<20)
}

func TestSetIndexKeepRejectsDuplicate(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.SetIndex("name", Lexical, false, false, true))
	err := m.SetIndex("name", Lexical, true, false, true)
	require.Error(t, err)
}

func TestLexicalIndexPutAndOut(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.SetIndex("name", Lexical, false, false, true))
	cols := []columnmap.Entry{{Name: "name", Value: []byte("Alice")}}

	require.NoError(t, m.PutIndices([]byte("pk1"), cols))

	d := m.byColumn("name")[0]
	ck := buildCompositeKey([]byte("Alice"), []byte("pk1"), false)
	v, ok, err := d.Tree.Get(ck)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "pk1", string(v))

	require.NoError(t, m.OutIndices([]byte("pk1"), cols))
	_, ok, err = d.Tree.Get(ck)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLexicalIndexOutLeavesOtherPksWithSameValue(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.SetIndex("name", Lexical, false, false, true))
	d := m.byColumn("name")[0]

	// Two different pks sharing the same indexed value: both composite keys
	// share the "Alice\x00" prefix. hash16(pk1) != hash16(pk2) here, so the
	// out algorithm's direct composite-key lookup finds pk2's entry and the
	// forward scan is not reached.
	require.NoError(t, m.PutIndices([]byte("pk1"), []columnmap.Entry{{Name: "name", Value: []byte("Alice")}}))
	require.NoError(t, m.PutIndices([]byte("pk2"), []columnmap.Entry{{Name: "name", Value: []byte("Alice")}}))

	require.NoError(t, m.OutIndices([]byte("pk2"), []columnmap.Entry{{Name: "name", Value: []byte("Alice")}}))

	ck1 := buildCompositeKey([]byte("Alice"), []byte("pk1"), false)
	_, ok, err := d.Tree.Get(ck1)
	require.NoError(t, err)
	assert.True(t, ok, "pk1's entry must survive deleting pk2's")
}

func TestApplyDeltaOnlyTouchesChangedColumns(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.SetIndex("name", Lexical, false, false, true))
	require.NoError(t, m.SetIndex("age", Lexical, false, false, true))

	oldCols := columnmap.New()
	require.NoError(t, oldCols.Set("name", []byte("Alice")))
	require.NoError(t, oldCols.Set("age", []byte("30")))

	newCols := columnmap.New()
	require.NoError(t, newCols.Set("name", []byte("Alice")))
	require.NoError(t, newCols.Set("age", []byte("31")))

	require.NoError(t, m.PutIndices([]byte("pk1"), oldCols.Entries()))
	require.NoError(t, m.ApplyDelta([]byte("pk1"), oldCols, newCols))

	nameIdx := m.byColumn("name")[0]
	_, ok, err := nameIdx.Tree.Get(buildCompositeKey([]byte("Alice"), []byte("pk1"), false))
	require.NoError(t, err)
	assert.True(t, ok, "unchanged name entry must remain")

	ageIdx := m.byColumn("age")[0]
	_, ok, err = ageIdx.Tree.Get(buildCompositeKey([]byte("30"), []byte("pk1"), false))
	require.NoError(t, err)
	assert.False(t, ok, "stale age=30 entry must be removed")
	_, ok, err = ageIdx.Tree.Get(buildCompositeKey([]byte("31"), []byte("pk1"), false))
	require.NoError(t, err)
	assert.True(t, ok, "new age=31 entry must be present")
}

func TestTokenIndexPutFlushAndRead(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.SetIndex("tags", Token, false, false, true))
	d := m.byColumn("tags")[0]

	require.NoError(t, m.PutIndices([]byte("x"), []columnmap.Entry{{Name: "tags", Value: []byte("red blue green")}}))
	require.NoError(t, m.PutIndices([]byte("z"), []columnmap.Entry{{Name: "tags", Value: []byte("blue green red")}}))

	postings, err := m.ReadTokenPostings(d, "red")
	require.NoError(t, err)
	assert.ElementsMatch(t, [][]byte{[]byte("x"), []byte("z")}, postings)

	require.NoError(t, m.FlushAll())
	postings, err = m.ReadTokenPostings(d, "red")
	require.NoError(t, err)
	assert.ElementsMatch(t, [][]byte{[]byte("x"), []byte("z")}, postings)
}

func TestTokenIndexDeleteAbsorbsIntoBuffer(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.SetIndex("tags", Token, false, false, true))
	d := m.byColumn("tags")[0]

	require.NoError(t, m.PutIndices([]byte("x"), []columnmap.Entry{{Name: "tags", Value: []byte("red blue")}}))
	require.NoError(t, m.FlushAll())
	require.NoError(t, m.PutIndices([]byte("y"), []columnmap.Entry{{Name: "tags", Value: []byte("red")}}))

	require.NoError(t, m.OutIndices([]byte("x"), []columnmap.Entry{{Name: "tags", Value: []byte("red blue")}}))

	postings, err := m.ReadTokenPostings(d, "red")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("y")}, postings)

	postings, err = m.ReadTokenPostings(d, "blue")
	require.NoError(t, err)
	assert.Empty(t, postings)
}

func TestDropIndexRemovesRegistration(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.SetIndex("name", Lexical, false, false, true))
	require.NoError(t, m.DropIndex("name", Lexical))
	assert.Empty(t, m.byColumn("name"))
}
