package index

import (
	"encoding/binary"
	"strconv"
)

// isAllDigits reports whether pk consists entirely of ASCII decimal digits,
// the condition spec.md §3 uses to choose the compact postings encoding
// over the length-prefixed fallback.
func isAllDigits(pk []byte) bool {
	if len(pk) == 0 {
		return false
	}
	for _, b := range pk {
		if b < '0' || b > '9' {
			return false
		}
	}
	return true
}

// Posting tags. The fallback tag matches spec.md §3's literal 0x00 marker;
// the compact form gets its own non-zero tag so a zero-valued numeric
// posting (uvarint(0) == 0x00) can never be mistaken for a fallback entry.
const (
	postingTagFallback = 0x00
	postingTagCompact  = 0x01
)

// encodePosting encodes one primary-key reference for a token's postings
// list: the compact variable-byte numeric form when pk is all ASCII
// digits and fits in 64 bits, otherwise the length-prefixed fallback.
func encodePosting(pk []byte) []byte {
	if isAllDigits(pk) {
		if n, err := strconv.ParseUint(string(pk), 10, 64); err == nil {
			buf := make([]byte, 1+binary.MaxVarintLen64)
			buf[0] = postingTagCompact
			w := binary.PutUvarint(buf[1:], n)
			return buf[:1+w]
		}
	}
	out := make([]byte, 0, 1+binary.MaxVarintLen64+len(pk))
	out = append(out, postingTagFallback)
	var lenBuf [binary.MaxVarintLen64]byte
	w := binary.PutUvarint(lenBuf[:], uint64(len(pk)))
	out = append(out, lenBuf[:w]...)
	out = append(out, pk...)
	return out
}

// decodePostings splits a concatenated postings byte string (as produced by
// repeated encodePosting calls) back into individual primary keys.
func decodePostings(data []byte) [][]byte {
	var out [][]byte
	pos := 0
	for pos < len(data) {
		tag := data[pos]
		pos++
		switch tag {
		case postingTagFallback:
			size, n := binary.Uvarint(data[pos:])
			if n <= 0 {
				return out
			}
			pos += n
			if pos+int(size) > len(data) {
				return out
			}
			out = append(out, data[pos:pos+int(size)])
			pos += int(size)
		case postingTagCompact:
			n, w := binary.Uvarint(data[pos:])
			if w <= 0 {
				return out
			}
			out = append(out, []byte(strconv.FormatUint(n, 10)))
			pos += w
		default:
			return out
		}
	}
	return out
}
