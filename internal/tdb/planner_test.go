package tdb

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/tdbkit/internal/columnmap"
	"github.com/dreamware/tdbkit/internal/index"
)

// fakeTable is a minimal in-memory record store used to exercise Engine
// without a real hash store, per planner.go's storage-agnostic design.
type fakeTable struct {
	mgr     *index.Manager
	records map[string]*columnmap.Map
	order   []string
}

func newFakeTable(t *testing.T) *fakeTable {
	t.Helper()
	base := filepath.Join(t.TempDir(), "records")
	mgr := index.NewManager(base, 1<<20)
	t.Cleanup(func() { _ = mgr.Close() })
	return &fakeTable{mgr: mgr, records: make(map[string]*columnmap.Map)}
}

func (f *fakeTable) put(t *testing.T, pk string, m *columnmap.Map) {
	t.Helper()
	old := f.records[pk]
	if _, exists := f.records[pk]; !exists {
		f.order = append(f.order, pk)
	}
	require.NoError(t, f.mgr.ApplyDelta([]byte(pk), old, m))
	f.records[pk] = m
}

func (f *fakeTable) engine() *Engine {
	return NewEngine(f.mgr,
		func(pk []byte) (*columnmap.Map, bool, error) {
			m, ok := f.records[string(pk)]
			return m, ok, nil
		},
		func(pk []byte, column string) ([]byte, bool, error) {
			m, ok := f.records[string(pk)]
			if !ok {
				return nil, false, nil
			}
			v, ok := m.Get(column)
			return v, ok, nil
		},
		func(yield func(pk []byte) (bool, error)) error {
			keys := append([]string{}, f.order...)
			sort.Strings(keys)
			for _, pk := range keys {
				cont, err := yield([]byte(pk))
				if err != nil {
					return err
				}
				if !cont {
					return nil
				}
			}
			return nil
		},
		func() (int64, error) { return int64(len(f.records)), nil },
	)
}

func rec(t *testing.T, pairs ...string) *columnmap.Map {
	t.Helper()
	m := columnmap.New()
	for i := 0; i < len(pairs); i += 2 {
		require.NoError(t, m.Set(pairs[i], []byte(pairs[i+1])))
	}
	return m
}

func TestSearchFullScanWithoutIndex(t *testing.T) {
	f := newFakeTable(t)
	f.put(t, "k1", rec(t, "name", "Alice"))
	f.put(t, "k2", rec(t, "name", "Bob"))

	q := NewQuery()
	q.AddCondition("name", STREQ, "Alice", false, false)
	pks, err := f.engine().Search(q)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1"}, pkStrings(pks))
}

func TestSearchUsesLexicalIndexWhenEligible(t *testing.T) {
	f := newFakeTable(t)
	require.NoError(t, f.mgr.SetIndex("name", index.Lexical, false, false, true))
	f.put(t, "k1", rec(t, "name", "Alice"))
	f.put(t, "k2", rec(t, "name", "Bob"))
	f.put(t, "k3", rec(t, "name", "Alice"))

	q := NewQuery()
	q.AddCondition("name", STREQ, "Alice", false, false)
	pks, err := f.engine().Search(q)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"k1", "k3"}, pkStrings(pks))
	assert.Contains(t, q.Hint(), `using an index: "name" asc (STREQ)`)
}

func TestSearchNegatedConditionSkipsIndex(t *testing.T) {
	f := newFakeTable(t)
	require.NoError(t, f.mgr.SetIndex("name", index.Lexical, false, false, true))
	f.put(t, "k1", rec(t, "name", "Alice"))
	f.put(t, "k2", rec(t, "name", "Bob"))

	q := NewQuery()
	q.AddCondition("name", STREQ, "Alice", true, false)
	pks, err := f.engine().Search(q)
	require.NoError(t, err)
	assert.Equal(t, []string{"k2"}, pkStrings(pks))
	assert.Contains(t, q.Hint(), "leaving the natural order")
}

func TestSearchNoIndexFlagForcesScan(t *testing.T) {
	f := newFakeTable(t)
	require.NoError(t, f.mgr.SetIndex("name", index.Lexical, false, false, true))
	f.put(t, "k1", rec(t, "name", "Alice"))

	q := NewQuery()
	q.AddCondition("name", STREQ, "Alice", false, true)
	pks, err := f.engine().Search(q)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1"}, pkStrings(pks))
	assert.Contains(t, q.Hint(), "leaving the natural order")
}

func TestSearchDecimalRangeAndOrder(t *testing.T) {
	f := newFakeTable(t)
	require.NoError(t, f.mgr.SetIndex("age", index.Decimal, false, false, true))
	f.put(t, "a", rec(t, "age", "10"))
	f.put(t, "b", rec(t, "age", "25"))
	f.put(t, "c", rec(t, "age", "7"))
	f.put(t, "d", rec(t, "age", "100"))

	q := NewQuery()
	q.AddCondition("age", NUMGE, "10", false, false)
	q.SetOrder("age", NumAsc)
	q.SetLimit(2, 0)
	pks, err := f.engine().Search(q)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, pkStrings(pks))
}

func TestSearchDecimalBetween(t *testing.T) {
	f := newFakeTable(t)
	require.NoError(t, f.mgr.SetIndex("age", index.Decimal, false, false, true))
	f.put(t, "a", rec(t, "age", "10"))
	f.put(t, "b", rec(t, "age", "25"))
	f.put(t, "c", rec(t, "age", "7"))

	q := NewQuery()
	q.AddCondition("age", NUMBT, "8,30", false, false)
	pks, err := f.engine().Search(q)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, pkStrings(pks))
}

func TestSearchDecimalNegativeFractionalLowerBound(t *testing.T) {
	f := newFakeTable(t)
	require.NoError(t, f.mgr.SetIndex("balance", index.Decimal, false, false, true))
	f.put(t, "a", rec(t, "balance", "-5.5"))
	f.put(t, "b", rec(t, "balance", "-5.2"))
	f.put(t, "c", rec(t, "balance", "-6.0"))
	f.put(t, "d", rec(t, "balance", "3.25"))

	q := NewQuery()
	q.AddCondition("balance", NUMGE, "-5.5", false, false)
	pks, err := f.engine().Search(q)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "d"}, pkStrings(pks))
}

func TestSearchDecimalFractionalUpperBound(t *testing.T) {
	f := newFakeTable(t)
	require.NoError(t, f.mgr.SetIndex("score", index.Decimal, false, false, true))
	f.put(t, "a", rec(t, "score", "10.2"))
	f.put(t, "b", rec(t, "score", "10.7"))
	f.put(t, "c", rec(t, "score", "11.0"))
	f.put(t, "d", rec(t, "score", "5.0"))

	q := NewQuery()
	q.AddCondition("score", NUMLT, "10.7", false, false)
	pks, err := f.engine().Search(q)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "d"}, pkStrings(pks))
}

func TestSearchTokenAnd(t *testing.T) {
	f := newFakeTable(t)
	require.NoError(t, f.mgr.SetIndex("tags", index.Token, false, false, true))
	f.put(t, "x", rec(t, "tags", "red blue green"))
	f.put(t, "y", rec(t, "tags", "red yellow"))
	f.put(t, "z", rec(t, "tags", "blue green red"))

	q := NewQuery()
	q.AddCondition("tags", STRAND, "red green", false, false)
	pks, err := f.engine().Search(q)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"x", "z"}, pkStrings(pks))
}

func TestSearchTokenOr(t *testing.T) {
	f := newFakeTable(t)
	require.NoError(t, f.mgr.SetIndex("tags", index.Token, false, false, true))
	f.put(t, "x", rec(t, "tags", "red"))
	f.put(t, "y", rec(t, "tags", "yellow"))
	f.put(t, "z", rec(t, "tags", "green"))

	q := NewQuery()
	q.AddCondition("tags", STROR, "red green", false, false)
	pks, err := f.engine().Search(q)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"x", "z"}, pkStrings(pks))
}

func TestSearchMainAndNarrowingConditions(t *testing.T) {
	f := newFakeTable(t)
	require.NoError(t, f.mgr.SetIndex("name", index.Lexical, false, false, true))
	require.NoError(t, f.mgr.SetIndex("age", index.Decimal, false, false, true))
	f.put(t, "k1", rec(t, "name", "Alice", "age", "30"))
	f.put(t, "k2", rec(t, "name", "Alice", "age", "12"))
	f.put(t, "k3", rec(t, "name", "Bob", "age", "30"))

	q := NewQuery()
	q.AddCondition("name", STREQ, "Alice", false, false)
	q.AddCondition("age", NUMGE, "18", false, false)
	pks, err := f.engine().Search(q)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1"}, pkStrings(pks))
}

func TestSearchTopKHeapPathForSmallLimit(t *testing.T) {
	f := newFakeTable(t)
	for i := 0; i < 64; i++ {
		pk := string(rune('a' + i%26))
		if i >= 26 {
			pk = pk + string(rune('a'+i/26))
		}
		f.put(t, pk, rec(t, "n", string(rune('0'+i%10))))
	}

	q := NewQuery()
	q.SetOrder("n", NumDesc)
	q.SetLimit(2, 0)
	pks, err := f.engine().Search(q)
	require.NoError(t, err)
	assert.Len(t, pks, 2)
}

func TestSearchApplyDeltaKeepsIndexConsistentAcrossOverwrite(t *testing.T) {
	f := newFakeTable(t)
	require.NoError(t, f.mgr.SetIndex("name", index.Lexical, false, false, true))
	f.put(t, "k1", rec(t, "name", "Alice"))
	f.put(t, "k1", rec(t, "name", "Bob"))

	q := NewQuery()
	q.AddCondition("name", STREQ, "Alice", false, false)
	pks, err := f.engine().Search(q)
	require.NoError(t, err)
	assert.Empty(t, pks)

	q2 := NewQuery()
	q2.AddCondition("name", STREQ, "Bob", false, false)
	pks, err = f.engine().Search(q2)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1"}, pkStrings(pks))
}
