// Package hashstore adapts github.com/estraier/tkrzw-go's hash database
// (tkrzw.DBM opened against a ".tkh" file) to the Hash Store contract spec.md
// §6 assigns to component C1: a persistent unordered primary-key → byte-string
// map with put/get/out/iterate/sync/copy and an inline opaque header region.
//
// The wrapping idiom — a thin struct embedding *tkrzw.DBM behind Go method
// names, status codes translated to errors at the call site — is grounded on
// the corpus's own Tkrzw wrapper (the Hash type in
// _examples/other_examples/...zond-juicemud__storage-dbm-dbm.go.go), adapted
// here from that file's hierarchical "LiveTypeHash" cache to the plain
// byte-string hash store the table database needs directly.
package hashstore

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/estraier/tkrzw-go"

	"github.com/dreamware/tdbkit/internal/tdberr"
)

// HeaderSize is the size in bytes of the opaque header region spec.md §6.1
// reserves at the front of the hash store's user area.
const HeaderSize = 64

// headerKey is the reserved primary key backing the opaque header region.
//
// tkrzw-go's DBM binding doesn't expose Tokyo Cabinet's native opaque user
// header (tchdbopaque()), so tdbkit stores the header as an ordinary record
// under a key no caller can ever supply: it starts with a NUL byte, and
// IsReservedKey rejects any caller-supplied primary key that does, at the
// TDB public-API boundary, before it ever reaches the hash store.
const headerKey = "\x00tdbkit:header\x00"

// IsReservedKey reports whether pk collides with hashstore's internal
// bookkeeping keys and must therefore be rejected as a record primary key.
func IsReservedKey(pk []byte) bool {
	return len(pk) > 0 && pk[0] == 0
}

// Options configures how Open behaves. It is the hash-store-specific
// projection of the TDB's public OpenMode/TuningFlags (spec.md §6.2/§6.3);
// the tdb package is responsible for translating its own flag bits into an
// Options value.
type Options struct {
	// Writable opens the store for writing; false opens it read-only.
	Writable bool
	// Create creates the file if it doesn't already exist.
	Create bool
	// Truncate empties an existing file on open.
	Truncate bool
	// NoLock skips the underlying file lock (spec.md NOLCK).
	NoLock bool
	// LockNonBlock fails immediately instead of blocking on the file lock
	// (spec.md LCKNB).
	LockNonBlock bool
	// Concurrent enables tkrzw's own internal record-level locking, for
	// TDB handles configured with a method lock (spec.md §4.7).
	Concurrent bool
	// Compression selects a tkrzw record compressor: "", "deflate",
	// "bzip", "tcbs", or "excodec" (spec.md §6.3 tuning flags LARGE |
	// DEFLATE | BZIP | TCBS | EXCODEC — LARGE affects bucket/offset width
	// and is handled via NumBuckets/Large below).
	Compression string
	// Large requests tkrzw's large-file offset width, mirroring spec.md's
	// LARGE tuning flag.
	Large bool
	// NumBuckets seeds the hash table's bucket count (spec.md "bucket
	// count" tuning knob), 0 leaves it at the tkrzw default.
	NumBuckets int64
}

// Store is a persistent, unordered primary-key → byte-string map backed by
// a tkrzw hash database file.
type Store struct {
	dbm *tkrzw.DBM
	mu  sync.RWMutex
}

// Open opens (creating if requested) the hash store file at path.
func Open(path string, opts Options) (*Store, error) {
	dbm := tkrzw.NewDBM()
	params := map[string]string{
		"update_mode":      "UPDATE_APPENDING",
		"record_comp_mode": "RECORD_COMP_NONE",
	}
	applyCommonParams(params, opts.Create, opts.Truncate, opts.NoLock, opts.LockNonBlock, opts.Concurrent)
	if opts.NumBuckets > 0 {
		params["num_buckets"] = fmt.Sprintf("%d", opts.NumBuckets)
	}
	if opts.Large {
		params["offset_width"] = "5"
	}
	applyCompression(params, opts.Compression)

	stat := dbm.Open(path+".tkh", opts.Writable, params)
	if !stat.IsOK() {
		return nil, wrapStatus("open hash store", stat)
	}
	return &Store{dbm: dbm}, nil
}

func applyCommonParams(params map[string]string, create, truncate, noLock, lockNonBlock, concurrent bool) {
	params["no_create"] = boolStr(!create)
	params["truncate"] = boolStr(truncate)
	params["no_lock"] = boolStr(noLock)
	params["lock_busy_error"] = boolStr(lockNonBlock)
	params["concurrent"] = boolStr(concurrent)
}

func applyCompression(params map[string]string, compression string) {
	switch compression {
	case "":
	case "deflate":
		params["record_comp_mode"] = "RECORD_COMP_ZLIB"
	case "bzip":
		params["record_comp_mode"] = "RECORD_COMP_ZSTD"
	case "tcbs":
		params["record_comp_mode"] = "RECORD_COMP_LZ4"
	case "excodec":
		params["record_comp_mode"] = "RECORD_COMP_LZMA"
	}
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Close closes the backing file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stat := s.dbm.Close(); !stat.IsOK() {
		return wrapStatus("close hash store", stat)
	}
	return nil
}

// Get returns the value stored under pk, or tdberr.KindNoRecord if absent.
func (s *Store) Get(pk []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, stat := s.dbm.Get(pk)
	if stat.GetCode() == tkrzw.StatusNotFoundError {
		return nil, tdberr.New(tdberr.KindNoRecord, fmt.Sprintf("no record for key %q", pk))
	}
	if !stat.IsOK() {
		return nil, wrapStatus("get", stat)
	}
	return v, nil
}

// Put stores value under pk. When overwrite is false and pk already exists,
// returns tdberr.KindKeepViolation (backing spec.md's put_keep).
func (s *Store) Put(pk, value []byte, overwrite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stat := s.dbm.Set(pk, value, overwrite)
	if stat.GetCode() == tkrzw.StatusDuplicationError {
		return tdberr.New(tdberr.KindKeepViolation, fmt.Sprintf("key %q already exists", pk))
	}
	if !stat.IsOK() {
		return wrapStatus("put", stat)
	}
	return nil
}

// Out removes pk. Returns tdberr.KindNoRecord if it wasn't present.
func (s *Store) Out(pk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stat := s.dbm.Remove(pk)
	if stat.GetCode() == tkrzw.StatusNotFoundError {
		return tdberr.New(tdberr.KindNoRecord, fmt.Sprintf("no record for key %q", pk))
	}
	if !stat.IsOK() {
		return wrapStatus("out", stat)
	}
	return nil
}

// Count returns the number of records, excluding the reserved header key.
func (s *Store) Count() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, stat := s.dbm.Count()
	if !stat.IsOK() {
		return 0, wrapStatus("count", stat)
	}
	if _, stat2 := s.dbm.Get(headerKey); stat2.IsOK() {
		n--
	}
	return n, nil
}

// Cursor iterates the hash store in its natural (unordered) storage order,
// skipping the reserved header key.
type Cursor struct {
	it *tkrzw.Iterator
}

// IterInit returns a cursor positioned before the first record.
func (s *Store) IterInit() (*Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it := s.dbm.MakeIterator()
	if stat := it.First(); !stat.IsOK() && stat.GetCode() != tkrzw.StatusNotFoundError {
		it.Destruct()
		return nil, wrapStatus("iter_init", stat)
	}
	return &Cursor{it: it}, nil
}

// IterInitAt returns a cursor positioned at pk (spec.md iter_init_at).
func (s *Store) IterInitAt(pk []byte) (*Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it := s.dbm.MakeIterator()
	if stat := it.Jump(pk); !stat.IsOK() && stat.GetCode() != tkrzw.StatusNotFoundError {
		it.Destruct()
		return nil, wrapStatus("iter_init_at", stat)
	}
	return &Cursor{it: it}, nil
}

// Next returns the next (pk, value) pair, advancing the cursor. ok is false
// once iteration is exhausted.
func (c *Cursor) Next() (pk, value []byte, ok bool, err error) {
	for {
		k, v, stat := c.it.Get()
		if stat.GetCode() == tkrzw.StatusNotFoundError {
			return nil, nil, false, nil
		}
		if !stat.IsOK() {
			return nil, nil, false, wrapStatus("iter_next", stat)
		}
		c.it.Next()
		if IsReservedKey(k) {
			continue
		}
		return k, v, true, nil
	}
}

// Close releases the cursor's native resources. Safe to call once iteration
// is finished or abandoned early.
func (c *Cursor) Close() {
	c.it.Destruct()
}

// ForwardKeys returns up to max primary keys whose bytes begin with prefix
// (spec.md fwmkeys), in storage order. max < 0 means unbounded.
func (s *Store) ForwardKeys(prefix []byte, max int) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it := s.dbm.MakeIterator()
	defer it.Destruct()
	// The hash store is unordered, so keys sharing prefix are not adjacent:
	// walk every record and keep the matching ones.
	if stat := it.First(); !stat.IsOK() && stat.GetCode() != tkrzw.StatusNotFoundError {
		return nil, wrapStatus("fwmkeys", stat)
	}
	var out [][]byte
	for max < 0 || len(out) < max {
		k, _, stat := it.Get()
		if stat.GetCode() == tkrzw.StatusNotFoundError {
			break
		}
		if !stat.IsOK() {
			return nil, wrapStatus("fwmkeys", stat)
		}
		if hasPrefix(k, prefix) && !IsReservedKey(k) {
			out = append(out, k)
		}
		it.Next()
	}
	return out, nil
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Sync flushes the store to disk. hard requests an fsync-equivalent flush
// (spec.md's TSYNC tuning flag); otherwise a logical commit is enough.
func (s *Store) Sync(hard bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stat := s.dbm.Synchronize(hard, nil); !stat.IsOK() {
		return wrapStatus("sync", stat)
	}
	return nil
}

// CopyTo copies the store's backing file to destPath (spec.md copy).
func (s *Store) CopyTo(destPath string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if stat := s.dbm.CopyFileData(destPath+".tkh", true); !stat.IsOK() {
		return wrapStatus("copy", stat)
	}
	return nil
}

// Vanish empties the store (spec.md vanish).
func (s *Store) Vanish() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stat := s.dbm.Clear(); !stat.IsOK() {
		return wrapStatus("vanish", stat)
	}
	return nil
}

// Rebuild rewrites the store file in place with the given tuning applied
// (spec.md optimize).
func (s *Store) Rebuild(opts Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	params := map[string]string{}
	if opts.NumBuckets > 0 {
		params["num_buckets"] = fmt.Sprintf("%d", opts.NumBuckets)
	}
	applyCompression(params, opts.Compression)
	if stat := s.dbm.Rebuild(params); !stat.IsOK() {
		return wrapStatus("optimize", stat)
	}
	return nil
}

// ShouldBeRebuilt reports whether the store recommends an Optimize pass
// (e.g. after heavy deletion churn leaves many free blocks).
func (s *Store) ShouldBeRebuilt() (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, stat := s.dbm.ShouldBeRebuilt()
	if !stat.IsOK() {
		return false, wrapStatus("should_be_rebuilt", stat)
	}
	return b, nil
}

// Defrag performs up to step incremental defragmentation steps (0 means the
// backing engine's default batch size).
func (s *Store) Defrag(step int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stat := s.dbm.Defragment(step); !stat.IsOK() {
		return wrapStatus("defrag", stat)
	}
	return nil
}

// Header returns the opaque 64-byte header region (spec.md §6.1), never
// nil: a store that has never had a header written returns HeaderSize
// zero bytes.
func (s *Store) Header() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, stat := s.dbm.Get(headerKey)
	if stat.GetCode() == tkrzw.StatusNotFoundError {
		return make([]byte, HeaderSize), nil
	}
	if !stat.IsOK() {
		return nil, wrapStatus("header read", stat)
	}
	return v, nil
}

// SetHeader overwrites the opaque header region. data is padded or
// truncated to exactly HeaderSize bytes.
func (s *Store) SetHeader(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fixed := make([]byte, HeaderSize)
	copy(fixed, data)
	if stat := s.dbm.Set(headerKey, fixed, true); !stat.IsOK() {
		return wrapStatus("header write", stat)
	}
	return nil
}

// UIDSeed returns the current value of the 8-byte little-endian UID seed
// stored in the first 8 bytes of the header (spec.md §4.6).
func (s *Store) UIDSeed() (uint64, error) {
	h, err := s.Header()
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(h[:8]), nil
}

// SetUIDSeed overwrites the UID seed without touching the rest of the
// header region.
func (s *Store) SetUIDSeed(seed uint64) error {
	h, err := s.Header()
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(h[:8], seed)
	return s.SetHeader(h)
}

func wrapStatus(op string, stat *tkrzw.Status) error {
	kind := tdberr.KindMiscIO
	if stat.GetCode() == tkrzw.StatusPreconditionError || stat.GetCode() == tkrzw.StatusInfeasibleError {
		kind = tdberr.KindInvalidArgument
	}
	return tdberr.Wrap(kind, op, fmt.Errorf("%s", stat.Message()))
}

// Remove deletes the backing file, used by index VOID and cleanup paths
// that can't rely on tkrzw's own file handling.
func Remove(path string) error {
	if err := os.Remove(path + ".tkh"); err != nil && !os.IsNotExist(err) {
		return tdberr.Wrap(tdberr.KindUnlink, "remove hash store file", err)
	}
	return nil
}
