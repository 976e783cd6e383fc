package tdb

import (
	"container/heap"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/exp/constraints"

	"github.com/dreamware/tdbkit/internal/columnmap"
	"github.com/dreamware/tdbkit/internal/index"
)

// Engine is the query planner and executor (spec.md component C8). It is
// deliberately storage-agnostic: every access to record data goes through
// the callbacks supplied at construction, so the planner can be exercised
// against a fake in tests without a real hash store or index trees —
// matching the corpus's "build against a trait, not concrete engines"
// idiom (see DESIGN.md's C11 note on the storage-agnostic engine callbacks).
type Engine struct {
	mgr       *index.Manager
	getRecord func(pk []byte) (*columnmap.Map, bool, error)
	getColumn func(pk []byte, column string) ([]byte, bool, error)
	scanAll   func(yield func(pk []byte) (bool, error)) error
	rnum      func() (int64, error)
}

// NewEngine constructs a query engine over mgr, fetching record data
// through the given callbacks.
func NewEngine(
	mgr *index.Manager,
	getRecord func(pk []byte) (*columnmap.Map, bool, error),
	getColumn func(pk []byte, column string) ([]byte, bool, error),
	scanAll func(yield func(pk []byte) (bool, error)) error,
	rnum func() (int64, error),
) *Engine {
	return &Engine{mgr: mgr, getRecord: getRecord, getColumn: getColumn, scanAll: scanAll, rnum: rnum}
}

func (e *Engine) descriptorsFor(column string, kind index.Kind) *index.Descriptor {
	for _, d := range e.mgr.All() {
		if d.Column == column && d.Kind == kind {
			return d
		}
	}
	return nil
}

// indexKindFor returns which index kind could drive op, and false if op
// can never be satisfied by any index (spec.md §4.5's indexable table).
func indexKindFor(op Operator) (index.Kind, bool) {
	switch op {
	case STREQ, STRBW, STROREQ:
		return index.Lexical, true
	case NUMEQ, NUMGT, NUMGE, NUMLT, NUMLE, NUMBT, NUMOREQ:
		return index.Decimal, true
	case STRAND, STROR:
		return index.Token, true
	default:
		return "", false
	}
}

// eligible reports whether cond could be chosen as a main/narrowing
// condition: not negated, not marked NOIDX, and its column carries an
// index of the kind its operator needs (spec.md §4.5 step 1).
func (e *Engine) eligible(cond Condition) (*index.Descriptor, bool) {
	if cond.Negate || cond.NoIndex {
		return nil, false
	}
	kind, ok := indexKindFor(cond.Op)
	if !ok {
		return nil, false
	}
	d := e.descriptorsFor(cond.Column, kind)
	if d == nil {
		return nil, false
	}
	return d, true
}

// Search executes q and returns the matching primary keys in final order
// (after ordering, skip, and limit have been applied).
func (e *Engine) Search(q *Query) ([][]byte, error) {
	candidates, fromIndex, err := e.gatherCandidates(q)
	if err != nil {
		return nil, err
	}

	var matches [][]byte
	filter := func(pk []byte) (bool, error) {
		ok, err := e.matchAll(q, pk)
		if err != nil || !ok {
			return ok, err
		}
		matches = append(matches, pk)
		return true, nil
	}

	if fromIndex {
		for _, pk := range candidates {
			if _, err := filter(pk); err != nil {
				return nil, err
			}
		}
	} else {
		if err := e.scanAll(func(pk []byte) (bool, error) {
			_, err := filter(pk)
			return true, err
		}); err != nil {
			return nil, err
		}
	}

	if q.order.set {
		limit := -1
		if q.max >= 0 {
			limit = q.max + q.skip
		}
		if limit >= 0 {
			if n, err := e.rnum(); err == nil && float64(limit) <= float64(n)/16 {
				reduced, err := e.topKByColumn(matches, q.order, limit)
				if err != nil {
					return nil, err
				}
				return paginate(reduced, q.skip, q.max), nil
			}
		}
		if err := e.sortByColumn(matches, q.order); err != nil {
			return nil, err
		}
	}

	return paginate(matches, q.skip, q.max), nil
}

func paginate(matches [][]byte, skip, max int) [][]byte {
	if skip > 0 {
		if skip >= len(matches) {
			return nil
		}
		matches = matches[skip:]
	}
	if max >= 0 && max < len(matches) {
		matches = matches[:max]
	}
	return matches
}

// gatherCandidates implements spec.md §4.5's planning steps 1-5: pick a
// main (and optional narrowing) indexed condition, else an order-driven
// index walk, else fall back to a full hash-store scan. fromIndex is
// false only for the full-scan fallback, in which case candidates is nil
// and the caller must iterate scanAll instead.
func (e *Engine) gatherCandidates(q *Query) (candidates [][]byte, fromIndex bool, err error) {
	var mainCond *Condition
	var mainDesc *index.Descriptor
	var narrowCond *Condition
	var narrowDesc *index.Descriptor

	// Every condition starts alive again for this pass: a Query can be
	// handed to Search more than once (QryCount re-runs QrySearch, a
	// caller may reuse a *Query across calls), and which condition ends
	// up driving the index can change run to run, so staleness from a
	// prior pass must not leak into matchAll's filtering here.
	for i := range q.conditions {
		q.conditions[i].alive = true
	}

	for i := range q.conditions {
		d, ok := e.eligible(q.conditions[i])
		if !ok {
			continue
		}
		if mainCond == nil {
			mainCond, mainDesc = &q.conditions[i], d
			continue
		}
		if narrowCond == nil {
			narrowCond, narrowDesc = &q.conditions[i], d
			break
		}
	}

	if mainCond != nil {
		main, err := e.collectFromIndex(mainDesc, *mainCond)
		if err != nil {
			return nil, false, err
		}
		q.addHint(fmt.Sprintf("using an index: %q asc (%s)", mainCond.Column, operatorName(mainCond.Op)))
		mainCond.alive = false

		if narrowCond != nil {
			aux, err := e.collectFromIndex(narrowDesc, *narrowCond)
			if err != nil {
				return nil, false, err
			}
			q.addHint(fmt.Sprintf("auxiliary result set size: %d", len(aux)))
			narrowCond.alive = false
			auxSet := make(map[string]bool, len(aux))
			for _, pk := range aux {
				auxSet[string(pk)] = true
			}
			filtered := main[:0]
			for _, pk := range main {
				if auxSet[string(pk)] {
					filtered = append(filtered, pk)
				}
			}
			main = filtered
		}
		return main, true, nil
	}

	if q.order.set {
		kind := index.Lexical
		if q.order.Type == NumAsc || q.order.Type == NumDesc {
			kind = index.Decimal
		}
		if d := e.descriptorsFor(q.order.Column, kind); d != nil {
			n, err := e.rnum()
			if err != nil {
				return nil, false, err
			}
			if q.max >= 0 && float64(q.max) < 0.2*float64(n) {
				descending := q.order.Type == StrDesc || q.order.Type == NumDesc
				pks, err := e.walkAll(d, descending)
				if err != nil {
					return nil, false, err
				}
				word := "asc"
				if descending {
					word = "desc"
				}
				q.addHint(fmt.Sprintf("using an index: %q %s (order-driven)", q.order.Column, word))
				return pks, true, nil
			}
		}
	}

	q.addHint("leaving the natural order")
	return nil, false, nil
}

func operatorName(op Operator) string {
	for name, o := range operatorNames {
		if o == op {
			return name
		}
	}
	return "?"
}

// collectFromIndex walks descriptor's backing structure to gather every pk
// whose indexed value satisfies cond's operator.
func (e *Engine) collectFromIndex(d *index.Descriptor, cond Condition) ([][]byte, error) {
	switch d.Kind {
	case index.Lexical:
		return e.collectLexical(d, cond)
	case index.Decimal:
		return e.collectDecimal(d, cond)
	case index.Token:
		return e.collectToken(d, cond)
	default:
		return nil, nil
	}
}

func (e *Engine) collectLexical(d *index.Descriptor, cond Condition) ([][]byte, error) {
	switch cond.Op {
	case STREQ:
		return e.scanPrefixExact(d, []byte(cond.Expr))
	case STRBW:
		return e.scanPrefix(d, []byte(cond.Expr))
	case STROREQ:
		var out [][]byte
		for _, alt := range splitAlternatives(cond.Expr) {
			pks, err := e.scanPrefixExact(d, []byte(alt))
			if err != nil {
				return nil, err
			}
			out = append(out, pks...)
		}
		return out, nil
	default:
		return nil, nil
	}
}

// scanPrefixExact collects every pk whose composite key's value portion
// equals value exactly (spec.md STREQ via a lexical index).
func (e *Engine) scanPrefixExact(d *index.Descriptor, value []byte) ([][]byte, error) {
	cur, err := d.Tree.JumpTo(append(append([]byte{}, value...), 0x00))
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	var out [][]byte
	for {
		k, v, ok, err := cur.Get()
		if err != nil {
			return nil, err
		}
		if !ok || !hasBytePrefix(k, value) {
			break
		}
		if len(k) > len(value) && k[len(value)] == 0x00 {
			out = append(out, append([]byte{}, v...))
		}
		if err := cur.Next(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// scanPrefix collects every pk whose composite key begins with prefix,
// regardless of where the NUL disambiguator falls (spec.md STRBW).
func (e *Engine) scanPrefix(d *index.Descriptor, prefix []byte) ([][]byte, error) {
	cur, err := d.Tree.JumpTo(prefix)
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	var out [][]byte
	for {
		k, v, ok, err := cur.Get()
		if err != nil {
			return nil, err
		}
		if !ok || !hasBytePrefix(k, prefix) {
			break
		}
		out = append(out, append([]byte{}, v...))
		if err := cur.Next(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func hasBytePrefix(b, prefix []byte) bool {
	return len(b) >= len(prefix) && string(b[:len(prefix)]) == string(prefix)
}

func splitAlternatives(expr string) []string {
	fields := strings.FieldsFunc(expr, func(r rune) bool { return r <= 0x20 || r == ',' })
	return fields
}

func (e *Engine) collectDecimal(d *index.Descriptor, cond Condition) ([][]byte, error) {
	switch cond.Op {
	case NUMEQ:
		n, ok := parseNumber(cond.Expr)
		if !ok {
			return nil, nil
		}
		return e.scanDecimalRange(d, n, n, true, true)
	case NUMGT:
		n, ok := parseNumber(cond.Expr)
		if !ok {
			return nil, nil
		}
		return e.scanDecimalRange(d, n, 0, false, false)
	case NUMGE:
		n, ok := parseNumber(cond.Expr)
		if !ok {
			return nil, nil
		}
		return e.scanDecimalRange(d, n, 0, true, false)
	case NUMLT, NUMLE:
		n, ok := parseNumber(cond.Expr)
		if !ok {
			return nil, nil
		}
		return e.scanDecimalUpperBound(d, n, cond.Op == NUMLE)
	case NUMBT:
		parts := strings.SplitN(cond.Expr, ",", 2)
		if len(parts) != 2 {
			return nil, nil
		}
		lo, ok1 := parseNumber(parts[0])
		hi, ok2 := parseNumber(parts[1])
		if !ok1 || !ok2 {
			return nil, nil
		}
		return e.scanDecimalRange(d, lo, hi, true, true)
	case NUMOREQ:
		var out [][]byte
		for _, alt := range splitAlternatives(cond.Expr) {
			n, ok := parseNumber(alt)
			if !ok {
				continue
			}
			pks, err := e.scanDecimalRange(d, n, n, true, true)
			if err != nil {
				return nil, err
			}
			out = append(out, pks...)
		}
		return out, nil
	default:
		return nil, nil
	}
}

// scanDecimalRange walks d's tree forward from lo (unbounded above when
// hasHigh is false), collecting pks whose key's numeric prefix falls in
// [lo, hi] (hasHigh) or [lo, +inf) (!hasHigh). hasLow exists for symmetry
// with NUMGT's exclusive lower bound.
func (e *Engine) scanDecimalRange(d *index.Descriptor, lo, hi float64, hasLow, hasHigh bool) ([][]byte, error) {
	cur, err := d.Tree.JumpTo(index.DecimalSeekKey(lo, false))
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	var out [][]byte
	for {
		k, v, ok, err := cur.Get()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		n, numOK := parseNumber(string(index.SplitCompositePrefix(k)))
		if numOK {
			if !hasLow && n <= lo {
				if err := cur.Next(); err != nil {
					return nil, err
				}
				continue
			}
			if hasLow && n < lo {
				if err := cur.Next(); err != nil {
					return nil, err
				}
				continue
			}
			if hasHigh && n > hi {
				break
			}
			out = append(out, append([]byte{}, v...))
		}
		if err := cur.Next(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// scanDecimalUpperBound walks backward from hi, for NUMLT/NUMLE.
func (e *Engine) scanDecimalUpperBound(d *index.Descriptor, hi float64, inclusive bool) ([][]byte, error) {
	cur, err := d.Tree.JumpToLast(index.DecimalSeekKey(hi, true))
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	var out [][]byte
	for {
		k, v, ok, err := cur.Get()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		n, numOK := parseNumber(string(index.SplitCompositePrefix(k)))
		if numOK {
			if inclusive && n <= hi {
				out = append(out, append([]byte{}, v...))
			} else if !inclusive && n < hi {
				out = append(out, append([]byte{}, v...))
			}
		}
		if err := cur.Previous(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *Engine) collectToken(d *index.Descriptor, cond Condition) ([][]byte, error) {
	tokens := splitAlternatives(cond.Expr)
	if len(tokens) == 0 {
		return nil, nil
	}
	sets := make([]map[string][]byte, len(tokens))
	for i, tok := range tokens {
		postings, err := e.mgr.ReadTokenPostings(d, tok)
		if err != nil {
			return nil, err
		}
		set := make(map[string][]byte, len(postings))
		for _, pk := range postings {
			set[string(pk)] = pk
		}
		sets[i] = set
	}

	result := make(map[string][]byte)
	switch cond.Op {
	case STRAND:
		for k, v := range sets[0] {
			result[k] = v
		}
		for _, set := range sets[1:] {
			for k := range result {
				if _, ok := set[k]; !ok {
					delete(result, k)
				}
			}
		}
	case STROR:
		for _, set := range sets {
			for k, v := range set {
				result[k] = v
			}
		}
	}

	out := make([][]byte, 0, len(result))
	for _, v := range result {
		out = append(out, v)
	}
	return out, nil
}

// walkAll returns every pk in d's tree, in ascending or descending key
// order, used for the order-driven candidate path.
func (e *Engine) walkAll(d *index.Descriptor, descending bool) ([][]byte, error) {
	var out [][]byte
	if !descending {
		cur, err := d.Tree.First()
		if err != nil {
			return nil, err
		}
		defer cur.Close()
		for {
			_, v, ok, err := cur.Get()
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			out = append(out, append([]byte{}, v...))
			if err := cur.Next(); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	cur, err := d.Tree.JumpToLast([]byte{0x7F, 0x7F, 0x7F, 0x7F})
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	for {
		_, v, ok, err := cur.Get()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, append([]byte{}, v...))
		if err := cur.Previous(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// matchAll evaluates a candidate's remaining alive conditions (spec.md
// §4.5): gatherCandidates already marks whichever condition(s) drove the
// index scan as not-alive, so a record it returned need not be re-checked
// against those — only the conditions the index didn't already enforce.
func (e *Engine) matchAll(q *Query, pk []byte) (bool, error) {
	var only *Condition
	aliveCount := 0
	for i := range q.conditions {
		if !q.conditions[i].alive {
			continue
		}
		aliveCount++
		only = &q.conditions[i]
	}

	if aliveCount == 0 {
		return true, nil
	}
	if aliveCount == 1 {
		value, ok, err := e.getColumn(pk, only.Column)
		if err != nil {
			return false, err
		}
		return evaluateCondition(*only, value, ok), nil
	}

	cols, ok, err := e.getRecord(pk)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	for _, cond := range q.conditions {
		if !cond.alive {
			continue
		}
		value, present := cols.Get(cond.Column)
		if !evaluateCondition(cond, value, present) {
			return false, nil
		}
	}
	return true, nil
}

func evaluateCondition(cond Condition, value []byte, present bool) bool {
	result := present && evaluateOperator(cond.Op, value, cond.Expr)
	if cond.Negate {
		return !result
	}
	return result
}

func evaluateOperator(op Operator, value []byte, expr string) bool {
	s := string(value)
	switch op {
	case STREQ:
		return s == expr
	case STRINC:
		return strings.Contains(s, expr)
	case STRBW:
		return strings.HasPrefix(s, expr)
	case STREW:
		return strings.HasSuffix(s, expr)
	case STRAND:
		tokens := tokenSet(value)
		for _, tok := range splitAlternatives(expr) {
			if !tokens[tok] {
				return false
			}
		}
		return true
	case STROR:
		tokens := tokenSet(value)
		for _, tok := range splitAlternatives(expr) {
			if tokens[tok] {
				return true
			}
		}
		return false
	case STROREQ:
		for _, alt := range splitAlternatives(expr) {
			if s == alt {
				return true
			}
		}
		return false
	case STRRX:
		re, err := regexp.Compile(expr)
		if err != nil {
			return false
		}
		return re.MatchString(s)
	case NUMEQ, NUMGT, NUMGE, NUMLT, NUMLE:
		n, ok := parseNumber(s)
		if !ok {
			return false
		}
		target, ok := parseNumber(expr)
		if !ok {
			return false
		}
		switch op {
		case NUMEQ:
			return n == target
		case NUMGT:
			return n > target
		case NUMGE:
			return n >= target
		case NUMLT:
			return n < target
		case NUMLE:
			return n <= target
		}
	case NUMBT:
		n, ok := parseNumber(s)
		if !ok {
			return false
		}
		parts := strings.SplitN(expr, ",", 2)
		if len(parts) != 2 {
			return false
		}
		lo, ok1 := parseNumber(parts[0])
		hi, ok2 := parseNumber(parts[1])
		return ok1 && ok2 && n >= lo && n <= hi
	case NUMOREQ:
		n, ok := parseNumber(s)
		if !ok {
			return false
		}
		for _, alt := range splitAlternatives(expr) {
			if target, ok := parseNumber(alt); ok && n == target {
				return true
			}
		}
		return false
	}
	return false
}

func tokenSet(value []byte) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range index.Tokenize(value) {
		out[string(tok)] = true
	}
	return out
}

// parseNumber parses s's leading signed-integer-or-real prefix, the same
// lenient parse the decimal comparator itself performs (spec.md §4.2).
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end < len(s) && s[end] == '.' {
		end++
		for end < len(s) && s[end] >= '0' && s[end] <= '9' {
			end++
		}
	}
	if end == start {
		return 0, false
	}
	n, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// sortByColumn sorts matches in place by the order column's value, using
// the load_one fast path to avoid materializing full column maps.
func (e *Engine) sortByColumn(matches [][]byte, order Order) error {
	type keyed struct {
		pk    []byte
		value []byte
		ok    bool
	}
	keys := make([]keyed, len(matches))
	for i, pk := range matches {
		v, ok, err := e.getColumn(pk, order.Column)
		if err != nil {
			return err
		}
		keys[i] = keyed{pk: pk, value: v, ok: ok}
	}

	numeric := order.Type == NumAsc || order.Type == NumDesc
	descending := order.Type == StrDesc || order.Type == NumDesc

	sort.SliceStable(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.ok != b.ok {
			return a.ok // present sorts before missing
		}
		if !a.ok {
			return false
		}
		var less bool
		if numeric {
			an, _ := parseNumber(string(a.value))
			bn, _ := parseNumber(string(b.value))
			less = an < bn
		} else {
			less = string(a.value) < string(b.value)
		}
		if descending {
			return !less && string(a.value) != string(b.value)
		}
		return less
	})

	for i, k := range keys {
		matches[i] = k.pk
	}
	return nil
}

// topKEntry is one candidate's extracted order-column value, generic over
// string or numeric order keys.
type topKEntry[T constraints.Ordered] struct {
	pk  []byte
	key T
	ok  bool
}

// topKHeap is a bounded heap of topKEntry, rooted at the single worst
// kept entry so it can be evicted in O(log limit) when a better candidate
// arrives — spec.md §4.5's "top-k heap when max ≤ rnum/16" alternative to
// a full sort.
type topKHeap[T constraints.Ordered] struct {
	entries    []topKEntry[T]
	descending bool
}

func isBetterEntry[T constraints.Ordered](a, b topKEntry[T], descending bool) bool {
	if a.ok != b.ok {
		return a.ok
	}
	if !a.ok {
		return false
	}
	if descending {
		return a.key > b.key
	}
	return a.key < b.key
}

func (h topKHeap[T]) Len() int { return len(h.entries) }
func (h topKHeap[T]) Less(i, j int) bool {
	return isBetterEntry(h.entries[j], h.entries[i], h.descending)
}
func (h topKHeap[T]) Swap(i, j int) { h.entries[i], h.entries[j] = h.entries[j], h.entries[i] }
func (h *topKHeap[T]) Push(x any)   { h.entries = append(h.entries, x.(topKEntry[T])) }
func (h *topKHeap[T]) Pop() any {
	old := h.entries
	n := len(old)
	item := old[n-1]
	h.entries = old[:n-1]
	return item
}

// topKByColumn returns the limit best matches by order's column, without
// sorting the full candidate set: each candidate is offered to a
// limit-sized heap, evicting the current worst kept entry when a better
// one arrives. The result is then sorted in place (a cheap sort over at
// most limit elements) so its order matches sortByColumn's output.
func (e *Engine) topKByColumn(matches [][]byte, order Order, limit int) ([][]byte, error) {
	if limit <= 0 {
		return nil, nil
	}
	numeric := order.Type == NumAsc || order.Type == NumDesc
	descending := order.Type == StrDesc || order.Type == NumDesc

	if numeric {
		extract := func(v []byte, ok bool) (float64, bool) {
			if !ok {
				return 0, false
			}
			n, parsed := parseNumber(string(v))
			return n, parsed
		}
		return runTopK(e, matches, order.Column, descending, limit, extract)
	}

	extract := func(v []byte, ok bool) (string, bool) { return string(v), ok }
	return runTopK(e, matches, order.Column, descending, limit, extract)
}

// runTopK fills a limit-sized heap of T-keyed entries from matches, then
// returns their primary keys in final sorted order.
func runTopK[T constraints.Ordered](e *Engine, matches [][]byte, column string, descending bool, limit int, extract func(v []byte, ok bool) (T, bool)) ([][]byte, error) {
	h := &topKHeap[T]{descending: descending}
	for _, pk := range matches {
		v, ok, err := e.getColumn(pk, column)
		if err != nil {
			return nil, err
		}
		key, parsed := extract(v, ok)
		entry := topKEntry[T]{pk: pk, key: key, ok: ok && parsed}
		if h.Len() < limit {
			heap.Push(h, entry)
			continue
		}
		if isBetterEntry(entry, h.entries[0], descending) {
			heap.Pop(h)
			heap.Push(h, entry)
		}
	}

	sort.Slice(h.entries, func(i, j int) bool { return isBetterEntry(h.entries[i], h.entries[j], descending) })
	out := make([][]byte, len(h.entries))
	for i, entry := range h.entries {
		out[i] = entry.pk
	}
	return out, nil
}
