package index

import (
	"bytes"
	"strconv"
)

// decimalForwardPrefix and decimalReversePrefix are the sort-prefix bytes
// spec.md §4.2 assigns to the decimal comparator's forward and reverse
// cursor seeks, letting the planner jump to the right side of a target
// number without the tree needing to parse it first.
const (
	decimalForwardPrefix = 0x01
	decimalReversePrefix = 0x7F
)

// buildCompositeKey constructs the B+-tree key for a lexical or decimal
// index entry: value NUL hi(hash16(pk)) lo(hash16(pk)). onPrimaryKey
// indexes are keyed by the bare value with no disambiguator suffix, since
// the primary key is already unique.
func buildCompositeKey(value []byte, pk []byte, onPrimaryKey bool) []byte {
	if onPrimaryKey {
		return append([]byte{}, value...)
	}
	h := hash16(pk)
	key := make([]byte, 0, len(value)+3)
	key = append(key, value...)
	key = append(key, 0x00, byte(h>>8), byte(h))
	return key
}

// splitCompositePrefix returns the value portion of a composite key built
// by buildCompositeKey, used when iterating forward from a value to decide
// when the prefix has changed (spec.md's "lexical/decimal index out" scan).
func splitCompositePrefix(key []byte) []byte {
	idx := bytes.LastIndexByte(key, 0x00)
	if idx < 0 {
		return key
	}
	return key[:idx]
}

// decimalSeekKey formats target as a decimal cursor seek key: a sort-prefix
// byte (forward or reverse) followed by target's full decimal text
// (fractional part included), per spec.md §4.2's "\x01<digits>"/"\x7F<digits>"
// seek convention. The decimal index stores real numbers, not integers
// (spec.md:53/88); formatting with 'f'/-1 keeps the seek key exact for any
// target a caller parsed out of a record, including negative and
// fractional values, so the cursor lands on the correct side of target
// without skipping records the filter would otherwise have accepted.
func decimalSeekKey(target float64, reverse bool) []byte {
	prefix := byte(decimalForwardPrefix)
	if reverse {
		prefix = decimalReversePrefix
	}
	return append([]byte{prefix}, strconv.FormatFloat(target, 'f', -1, 64)...)
}

// SplitCompositePrefix exports splitCompositePrefix for the query planner,
// which needs to recover a composite key's indexed value while walking a
// tree cursor (spec.md §4.5's index-driven scan paths).
func SplitCompositePrefix(key []byte) []byte { return splitCompositePrefix(key) }

// DecimalSeekKey exports decimalSeekKey for the query planner's decimal
// range scans (spec.md §4.5).
func DecimalSeekKey(target float64, reverse bool) []byte { return decimalSeekKey(target, reverse) }
