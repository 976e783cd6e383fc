package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodePostingsCompact(t *testing.T) {
	data := append(encodePosting([]byte("42")), encodePosting([]byte("7"))...)
	got := decodePostings(data)
	assert.Equal(t, [][]byte{[]byte("42"), []byte("7")}, got)
}

func TestEncodeDecodePostingsFallback(t *testing.T) {
	data := encodePosting([]byte("user-abc"))
	got := decodePostings(data)
	assert.Equal(t, [][]byte{[]byte("user-abc")}, got)
}

func TestEncodeDecodePostingsZeroDoesNotCollideWithFallbackTag(t *testing.T) {
	data := append(encodePosting([]byte("0")), encodePosting([]byte("x"))...)
	got := decodePostings(data)
	assert.Equal(t, [][]byte{[]byte("0"), []byte("x")}, got)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"red", "blue", "green"}, tokensOf(tokenize([]byte("red, blue  green"))))
	assert.Empty(t, tokenize([]byte("   ,, ")))
}

func tokensOf(toks [][]byte) []string {
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = string(t)
	}
	return out
}
