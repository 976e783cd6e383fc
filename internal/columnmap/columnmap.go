// Package columnmap implements the column-map codec (spec §4.1, component
// C3): the ordered name→value byte-string mapping that makes up a table
// database record, and its serialized on-disk form.
//
// The serialized form is a sequence of (name-length, value-length, name,
// value) entries in insertion order, each length a fixed-width big-endian
// uint32 prefix. LoadOne scans
// that sequence directly instead of materializing a Map, so the query
// executor's single-condition fast path (spec §4.5) never pays for a full
// parse just to read one column.
package columnmap

import (
	"encoding/binary"
	"fmt"

	"github.com/dreamware/tdbkit/internal/tdberr"
)

// emptyNameMessage is the message of the tdberr.KindInvalidArgument error
// returned by operations that reject the empty column name, which spec §3
// reserves.
const emptyNameMessage = "column name must not be empty"

// Map is an ordered name→value byte-string mapping: inserting a name that
// isn't already present appends it; inserting a name that exists only
// updates its value in place, preserving the original position. This
// matches the "ordered map" semantics spec.md §2/§4.1 requires of
// load(dump(m)) == m.
type Map struct {
	values map[string][]byte
	order  []string
}

// New returns an empty column map.
func New() *Map {
	return &Map{values: make(map[string][]byte)}
}

// Set stores value under name, preserving name's original position if it
// was already present. Returns tdberr.KindInvalidArgument if name is empty.
func (m *Map) Set(name string, value []byte) error {
	if name == "" {
		return tdberr.New(tdberr.KindInvalidArgument, emptyNameMessage)
	}
	if _, exists := m.values[name]; !exists {
		m.order = append(m.order, name)
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.values[name] = stored
	return nil
}

// Get returns the value stored under name and whether it was present.
func (m *Map) Get(name string) ([]byte, bool) {
	v, ok := m.values[name]
	return v, ok
}

// Delete removes name from the map, if present.
func (m *Map) Delete(name string) {
	if _, ok := m.values[name]; !ok {
		return
	}
	delete(m.values, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of columns in the map.
func (m *Map) Len() int { return len(m.order) }

// Names returns the column names in insertion order. The returned slice
// must not be mutated by the caller.
func (m *Map) Names() []string { return m.order }

// Entry is one (name, value) pair of a Map, used by Entries and by the
// index manager when computing put/out deltas (spec §4.2).
type Entry struct {
	Name  string
	Value []byte
}

// Entries returns every (name, value) pair in insertion order.
func (m *Map) Entries() []Entry {
	out := make([]Entry, len(m.order))
	for i, name := range m.order {
		out[i] = Entry{Name: name, Value: m.values[name]}
	}
	return out
}

// Clone returns a deep copy of m.
func (m *Map) Clone() *Map {
	clone := New()
	for _, e := range m.Entries() {
		_ = clone.Set(e.Name, e.Value)
	}
	return clone
}

// Equal reports whether m and other contain the same (name, value) pairs,
// ignoring order — used by the index delta computation (spec §4.2) to tell
// whether an overwritten column's value actually changed.
func (m *Map) Equal(other *Map) bool {
	if m.Len() != other.Len() {
		return false
	}
	for name, v := range m.values {
		ov, ok := other.values[name]
		if !ok || string(ov) != string(v) {
			return false
		}
	}
	return true
}

// Dump serializes m to its on-disk byte-string form: a sequence of
// (name-length, value-length, name, value) entries in insertion order, each
// length encoded as a big-endian uint32.
func Dump(m *Map) []byte {
	size := 0
	for _, e := range m.Entries() {
		size += 8 + len(e.Name) + len(e.Value)
	}
	buf := make([]byte, 0, size)
	var lenBuf [4]byte
	for _, e := range m.Entries() {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(e.Name)))
		buf = append(buf, lenBuf[:]...)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(e.Value)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, e.Name...)
		buf = append(buf, e.Value...)
	}
	return buf
}

// Load parses the serialized form produced by Dump back into a Map,
// preserving entry order.
func Load(data []byte) (*Map, error) {
	m := New()
	pos := 0
	for pos < len(data) {
		name, value, next, err := readEntry(data, pos)
		if err != nil {
			return nil, err
		}
		if err := m.Set(name, value); err != nil {
			return nil, err
		}
		pos = next
	}
	return m, nil
}

// LoadOne scans the serialized form produced by Dump for a single column
// without materializing a Map, for the query executor's hot path (spec
// §4.1, §4.5). It returns ok=false if name isn't present.
func LoadOne(data []byte, name string) (value []byte, ok bool, err error) {
	pos := 0
	for pos < len(data) {
		n, v, next, rerr := readEntry(data, pos)
		if rerr != nil {
			return nil, false, rerr
		}
		if n == name {
			return v, true, nil
		}
		pos = next
	}
	return nil, false, nil
}

func readEntry(data []byte, pos int) (name string, value []byte, next int, err error) {
	if pos+8 > len(data) {
		return "", nil, 0, fmt.Errorf("columnmap: truncated entry header at offset %d", pos)
	}
	nameLen := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	valueLen := int(binary.BigEndian.Uint32(data[pos+4 : pos+8]))
	pos += 8
	if nameLen < 0 || valueLen < 0 || pos+nameLen+valueLen > len(data) {
		return "", nil, 0, fmt.Errorf("columnmap: truncated entry body at offset %d", pos)
	}
	name = string(data[pos : pos+nameLen])
	pos += nameLen
	value = data[pos : pos+valueLen]
	pos += valueLen
	return name, value, pos, nil
}
