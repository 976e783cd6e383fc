package index

// tokenize splits value at any run of bytes <= 0x20 or ',' (spec.md §4.3),
// discarding empty tokens. It is UTF-8-agnostic: multi-byte runes never
// contain bytes in the separator range, so they pass through untouched.
func tokenize(value []byte) [][]byte {
	var tokens [][]byte
	start := -1
	for i, b := range value {
		if b <= 0x20 || b == ',' {
			if start >= 0 {
				tokens = append(tokens, value[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, value[start:])
	}
	return tokens
}

// Tokenize exports tokenize for the query planner's STRAND/STROR filter
// evaluation against an unindexed column value (spec.md §4.5).
func Tokenize(value []byte) [][]byte { return tokenize(value) }
