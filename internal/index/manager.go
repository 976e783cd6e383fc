package index

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/dreamware/tdbkit/internal/btreestore"
	"github.com/dreamware/tdbkit/internal/columnmap"
	"github.com/dreamware/tdbkit/internal/tdberr"
	"github.com/dreamware/tdbkit/internal/tlog"
)

// key identifies a descriptor by column and kind — a column may carry both
// a lexical and a decimal index simultaneously, so Column alone isn't
// enough to address one.
type key struct {
	column string
	kind   Kind
}

// Manager is the index manager (spec.md component C4): the registry of a
// table database's open secondary indices, responsible for creating,
// dropping, and keeping them in sync with every record write.
//
// Adapted from coordinator.ShardRegistry: Manager plays the same
// "authoritative map guarded by one RWMutex, returns nothing callers can
// corrupt the map through" role that ShardRegistry played for shard
// assignments.
type Manager struct {
	mu          sync.RWMutex
	basePath    string
	descriptors map[key]*Descriptor
	threshold   int
}

// NewManager returns an index manager rooted at basePath (the same path
// prefix the hash store file uses), with token buffers that flush at
// flushThreshold bytes (<=0 for DefaultFlushThreshold).
func NewManager(basePath string, flushThreshold int) *Manager {
	return &Manager{
		basePath:    basePath,
		descriptors: make(map[key]*Descriptor),
		threshold:   flushThreshold,
	}
}

func (m *Manager) path(column string, kind Kind) string {
	return fmt.Sprintf("%s.idx.%s.%s", m.basePath, url.QueryEscape(column), kind)
}

// SetIndex opens or creates the backing tree for (column, kind) and
// registers it. keep rejects an already-registered index outright; opt
// optimizes an existing index's tree in place instead of reopening it.
// Fails (spec.md §4.2) if called while writable is false.
func (m *Manager) SetIndex(column string, kind Kind, keep, opt bool, writable bool) error {
	if !writable {
		return tdberr.New(tdberr.KindInvalidArgument, "set_index requires writer mode")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{column: column, kind: kind}
	if existing, ok := m.descriptors[k]; ok {
		if keep {
			return tdberr.New(tdberr.KindKeepViolation, fmt.Sprintf("index on %q (%s) already exists", column, kind))
		}
		if opt {
			return existing.Tree.Rebuild()
		}
		return nil
	}

	cmp := btreestore.Lexical
	if kind == Decimal {
		cmp = btreestore.Decimal
	}
	tree, err := btreestore.Open(m.path(column, kind), btreestore.Options{
		Writable: true, Create: true, Comparator: cmp,
	})
	if err != nil {
		return err
	}

	d := &Descriptor{Column: column, Kind: kind, Tree: tree}
	if kind == Token {
		d.Buffer = NewBuffer(m.threshold)
	}
	m.descriptors[k] = d
	tlog.L().Infow("index opened", "column", column, "kind", kind)
	return nil
}

// DropIndex removes an index's registration, closes its tree, and deletes
// its backing file (spec.md's VOID modifier).
func (m *Manager) DropIndex(column string, kind Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{column: column, kind: kind}
	d, ok := m.descriptors[k]
	if !ok {
		return tdberr.New(tdberr.KindNoRecord, fmt.Sprintf("no index on %q (%s)", column, kind))
	}
	if err := d.Tree.Close(); err != nil {
		return err
	}
	if err := btreestore.Remove(m.path(column, kind)); err != nil {
		return err
	}
	delete(m.descriptors, k)
	return nil
}

// Register adds an already-open descriptor without creating a new tree
// file. Opening a TDB handle does not use it: the index files found on
// disk are attached through SetIndex, which opens each tree itself.
func (m *Manager) Register(d *Descriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.descriptors[key{column: d.Column, kind: d.Kind}] = d
}

// All returns every open descriptor, in no particular order.
func (m *Manager) All() []*Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Descriptor, 0, len(m.descriptors))
	for _, d := range m.descriptors {
		out = append(out, d)
	}
	return out
}

func (m *Manager) byColumn(column string) []*Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Descriptor
	for k, d := range m.descriptors {
		if k.column == column {
			out = append(out, d)
		}
	}
	return out
}

// PutIndices adds one entry per declared index to reflect pk's cols
// (spec.md §4.2's put_indices), called after the delta between a record's
// old and new column maps has been computed.
func (m *Manager) PutIndices(pk []byte, cols []columnmap.Entry) error {
	for _, e := range cols {
		for _, d := range m.byColumn(e.Name) {
			if err := m.putOne(d, pk, e.Value); err != nil {
				return err
			}
		}
	}
	return nil
}

// OutIndices removes the index entries derivable from cols (spec.md
// §4.2's out_indices).
func (m *Manager) OutIndices(pk []byte, cols []columnmap.Entry) error {
	for _, e := range cols {
		for _, d := range m.byColumn(e.Name) {
			if err := m.outOne(d, pk, e.Value); err != nil {
				return err
			}
		}
	}
	return nil
}

// ApplyDelta implements spec.md §4.2's record-delta-on-overwrite algorithm:
// it removes index entries for (name, value) pairs present in oldCols but
// not identically in newCols, then adds entries for pairs present in
// newCols but not identically in oldCols. This keeps index churn minimal
// on partial updates, rather than naively dropping and re-adding every
// column.
func (m *Manager) ApplyDelta(pk []byte, oldCols, newCols *columnmap.Map) error {
	var toRemove, toAdd []columnmap.Entry
	if oldCols != nil {
		for _, e := range oldCols.Entries() {
			if nv, ok := newCols.Get(e.Name); !ok || string(nv) != string(e.Value) {
				toRemove = append(toRemove, e)
			}
		}
	}
	for _, e := range newCols.Entries() {
		if oldCols == nil {
			toAdd = append(toAdd, e)
			continue
		}
		if ov, ok := oldCols.Get(e.Name); !ok || string(ov) != string(e.Value) {
			toAdd = append(toAdd, e)
		}
	}
	if err := m.OutIndices(pk, toRemove); err != nil {
		return err
	}
	return m.PutIndices(pk, toAdd)
}

// putOne applies one index's put algorithm for a single (pk, value) pair.
func (m *Manager) putOne(d *Descriptor, pk, value []byte) error {
	if d.Kind == Token {
		return m.putToken(d, pk, value)
	}
	ck := buildCompositeKey(value, pk, d.onPrimaryKey())
	return d.Tree.Put(ck, pk)
}

// outOne applies one index's out algorithm for a single (pk, value) pair.
func (m *Manager) outOne(d *Descriptor, pk, value []byte) error {
	if d.Kind == Token {
		return m.outToken(d, pk, value)
	}
	ck := buildCompositeKey(value, pk, d.onPrimaryKey())
	if stored, ok, err := d.Tree.Get(ck); err == nil && ok && string(stored) == string(pk) {
		return d.Tree.Delete(ck)
	}

	// Hash collision: another pk shares this composite key's disambiguator.
	// Scan forward from the composite key's value prefix for the first
	// posting that actually matches pk (spec.md §4.2).
	prefix := splitCompositePrefix(ck)
	cur, err := d.Tree.JumpTo(append(append([]byte{}, prefix...), 0x00))
	if err != nil {
		return err
	}
	defer cur.Close()
	for {
		k, v, ok, err := cur.Get()
		if err != nil {
			return err
		}
		if !ok || !samePrefix(k, prefix) {
			break
		}
		if string(v) == string(pk) {
			return d.Tree.Delete(k)
		}
		if err := cur.Next(); err != nil {
			return err
		}
	}
	return nil
}

func samePrefix(key, prefix []byte) bool {
	if len(key) < len(prefix) {
		return false
	}
	for i := range prefix {
		if key[i] != prefix[i] {
			return false
		}
	}
	return true
}

// putToken appends one posting per token extracted from value into the
// descriptor's flush buffer, flushing when the buffer crosses its
// threshold (spec.md §4.3).
func (m *Manager) putToken(d *Descriptor, pk, value []byte) error {
	for _, tok := range tokenize(value) {
		if d.Buffer.Append(string(tok), encodePosting(pk)) {
			if err := m.flushToken(d); err != nil {
				return err
			}
		}
	}
	return nil
}

// outToken implements the token index's delete path: for every token
// extracted from value, read both the buffer's and the tree's entry,
// filter out postings equal to pk, write the filtered result back to the
// buffer, and clear the tree's entry (spec.md §4.3 — "buffer absorbs
// deletions").
func (m *Manager) outToken(d *Descriptor, pk, value []byte) error {
	for _, tok := range tokenize(value) {
		token := string(tok)
		var combined []byte
		if buffered, ok := d.Buffer.Get(token); ok {
			combined = append(combined, buffered...)
		}
		treeVal, ok, err := d.Tree.Get(tok)
		if err != nil {
			return err
		}
		if ok {
			combined = append(combined, treeVal...)
			if err := d.Tree.Delete(tok); err != nil {
				return err
			}
		}
		filtered := filterPostings(combined, pk)
		d.Buffer.Set(token, filtered)
	}
	return nil
}

func filterPostings(data, pk []byte) []byte {
	var out []byte
	for _, posting := range decodePostings(data) {
		if string(posting) == string(pk) {
			continue
		}
		out = append(out, encodePosting(posting)...)
	}
	return out
}

// flushToken appends the buffer's accumulated postings onto the backing
// tree and clears it (spec.md §4.3 flush).
func (m *Manager) flushToken(d *Descriptor) error {
	for _, token := range d.Buffer.Tokens() {
		postings, ok := d.Buffer.Get(token)
		if !ok || len(postings) == 0 {
			continue
		}
		if err := d.Tree.Append([]byte(token), postings); err != nil {
			return err
		}
	}
	d.Buffer.Clear()
	return nil
}

// FlushAll flushes every registered token index's buffer, used by sync and
// by the transaction coordinator's begin/commit sequencing (spec.md §4.4).
func (m *Manager) FlushAll() error {
	for _, d := range m.All() {
		if d.Kind == Token {
			if err := m.flushToken(d); err != nil {
				return err
			}
		}
	}
	return nil
}

// ClearAllBuffers discards every token index's in-memory buffer without
// persisting it. Transaction abort does not call it: the undo log restores
// buffer contents per touched record instead.
func (m *Manager) ClearAllBuffers() {
	for _, d := range m.All() {
		if d.Kind == Token {
			d.Buffer.Clear()
		}
	}
}

// ReadTokenPostings returns the union of buffered and persisted postings
// for token on the given index, decoded to primary keys (spec.md §4.3 read
// path, §4.5 token query evaluation).
func (m *Manager) ReadTokenPostings(d *Descriptor, token string) ([][]byte, error) {
	var combined []byte
	if buffered, ok := d.Buffer.Get(token); ok {
		combined = append(combined, buffered...)
	}
	treeVal, ok, err := d.Tree.Get([]byte(token))
	if err != nil {
		return nil, err
	}
	if ok {
		combined = append(combined, treeVal...)
	}
	return decodePostings(combined), nil
}

// Close flushes every token buffer and closes every index's backing tree
// (spec.md close: "flush token buffers, close indices, then close the hash
// store").
func (m *Manager) Close() error {
	if err := m.FlushAll(); err != nil {
		return err
	}
	for _, d := range m.All() {
		if err := d.Tree.Close(); err != nil {
			return err
		}
	}
	return nil
}
