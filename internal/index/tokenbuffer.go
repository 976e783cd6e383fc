package index

import (
	"sync"

	"github.com/google/btree"
)

// DefaultFlushThreshold is the approximate accumulated-byte size spec.md
// §4.3 uses to decide when a token buffer should flush to its backing
// tree (~64 MiB), before any build-time override.
const DefaultFlushThreshold = 64 * 1024 * 1024

// tokenEntry is one token's accumulated, not-yet-flushed postings, stored
// in Buffer's btree so tokens enumerate in sorted order at flush time —
// matching the ordering the backing B+-tree itself would produce, which
// keeps flush a simple walk rather than a resort.
type tokenEntry struct {
	token    string
	postings []byte
}

func (e *tokenEntry) Less(than btree.Item) bool {
	return e.token < than.(*tokenEntry).token
}

// Buffer is the in-memory write-absorption layer component C5 sits in
// front of every token index's backing tree: writes accumulate here and
// are only appended to the tree once the buffer's total size crosses
// threshold, so a burst of writes to the same token costs one tree append
// instead of many.
type Buffer struct {
	mu        sync.Mutex
	tree      *btree.BTree
	size      int
	threshold int
}

// NewBuffer returns an empty token buffer that flushes once its
// accumulated size exceeds threshold bytes. threshold <= 0 means
// DefaultFlushThreshold.
func NewBuffer(threshold int) *Buffer {
	if threshold <= 0 {
		threshold = DefaultFlushThreshold
	}
	return &Buffer{tree: btree.New(32), threshold: threshold}
}

// Append concatenates posting onto token's buffered entry, creating it if
// absent, and reports whether the buffer has now crossed its flush
// threshold.
func (b *Buffer) Append(token string, posting []byte) (shouldFlush bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	item := b.tree.Get(&tokenEntry{token: token})
	if item == nil {
		b.tree.ReplaceOrInsert(&tokenEntry{token: token, postings: append([]byte{}, posting...)})
	} else {
		e := item.(*tokenEntry)
		e.postings = append(e.postings, posting...)
	}
	b.size += len(posting)
	return b.size > b.threshold
}

// Get returns the buffered postings for token, if any.
func (b *Buffer) Get(token string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	item := b.tree.Get(&tokenEntry{token: token})
	if item == nil {
		return nil, false
	}
	return item.(*tokenEntry).postings, true
}

// Set replaces token's buffered entry wholesale (or removes it, if
// postings is empty), used by the token index's delete path to write back
// a filtered posting list (spec.md §4.3).
func (b *Buffer) Set(token string, postings []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	old := b.tree.Get(&tokenEntry{token: token})
	if old != nil {
		b.size -= len(old.(*tokenEntry).postings)
	}
	if len(postings) == 0 {
		b.tree.Delete(&tokenEntry{token: token})
		return
	}
	b.tree.ReplaceOrInsert(&tokenEntry{token: token, postings: postings})
	b.size += len(postings)
}

// Tokens returns every buffered token in sorted order, for Flush to walk.
func (b *Buffer) Tokens() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	tokens := make([]string, 0, b.tree.Len())
	b.tree.Ascend(func(item btree.Item) bool {
		tokens = append(tokens, item.(*tokenEntry).token)
		return true
	})
	return tokens
}

// Clear empties the buffer; it runs after a successful flush, on Vanish,
// and from Manager.ClearAllBuffers. Transaction abort does not clear it.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tree = btree.New(32)
	b.size = 0
}

// Size returns the buffer's current approximate accumulated byte count.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}
