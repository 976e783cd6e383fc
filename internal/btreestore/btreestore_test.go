package btreestore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T, cmp Comparator) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index")
	s, err := Open(path, Options{Writable: true, Create: true, Truncate: true, Comparator: cmp})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetDelete(t *testing.T) {
	s := openTemp(t, Lexical)

	require.NoError(t, s.Put([]byte("alpha"), []byte("1")))
	v, ok, err := s.Get([]byte("alpha"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", string(v))

	require.NoError(t, s.Delete([]byte("alpha")))
	_, ok, err = s.Get([]byte("alpha"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAppendConcatenates(t *testing.T) {
	s := openTemp(t, Lexical)

	require.NoError(t, s.Append([]byte("tok"), []byte("AAA")))
	require.NoError(t, s.Append([]byte("tok"), []byte("BBB")))

	v, ok, err := s.Get([]byte("tok"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "AAABBB", string(v))
}

func TestForwardOrderLexical(t *testing.T) {
	s := openTemp(t, Lexical)
	for _, k := range []string{"banana", "apple", "cherry"} {
		require.NoError(t, s.Put([]byte(k), []byte(k)))
	}

	cur, err := s.First()
	require.NoError(t, err)
	defer cur.Close()

	var got []string
	for {
		k, _, ok, err := cur.Get()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, string(k))
		require.NoError(t, cur.Next())
	}
	assert.Equal(t, []string{"apple", "banana", "cherry"}, got)
}

func TestJumpToSeeksForward(t *testing.T) {
	s := openTemp(t, Lexical)
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.Put([]byte(k), []byte(k)))
	}

	cur, err := s.JumpTo([]byte("b"))
	require.NoError(t, err)
	defer cur.Close()

	k, _, ok, err := cur.Get()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", string(k))
}

func TestDeleteMissingIsNoRecord(t *testing.T) {
	s := openTemp(t, Lexical)
	err := s.Delete([]byte("missing"))
	require.Error(t, err)
}

func TestDecimalComparatorOpens(t *testing.T) {
	s := openTemp(t, Decimal)
	require.NoError(t, s.Put([]byte("10"), []byte("ten")))
	v, ok, err := s.Get([]byte("10"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ten", string(v))
}
