package tdb

import (
	"strings"

	"github.com/dreamware/tdbkit/internal/tdberr"
)

// Operator is one of the comparison operators a query condition can apply
// to a column's value (spec.md §4.5, §6.5).
type Operator int

const (
	STREQ Operator = iota
	STRINC
	STRBW
	STREW
	STRAND
	STROR
	STROREQ
	STRRX
	NUMEQ
	NUMGT
	NUMGE
	NUMLT
	NUMLE
	NUMBT
	NUMOREQ
)

var operatorNames = map[string]Operator{
	"STREQ": STREQ, "STRINC": STRINC, "STRBW": STRBW, "STREW": STREW,
	"STRAND": STRAND, "STROR": STROR, "STROREQ": STROREQ, "STRRX": STRRX,
	"NUMEQ": NUMEQ, "NUMGT": NUMGT, "NUMGE": NUMGE, "NUMLT": NUMLT,
	"NUMLE": NUMLE, "NUMBT": NUMBT, "NUMOREQ": NUMOREQ,
}

// isNumeric reports whether op compares numeric rather than string values.
func (op Operator) isNumeric() bool { return op >= NUMEQ }

// OrderType selects how qry_set_order sorts the result set (spec.md §6.5).
type OrderType int

const (
	StrAsc OrderType = iota
	StrDesc
	NumAsc
	NumDesc
)

var orderTypeNames = map[string]OrderType{
	"STRASC": StrAsc, "STRDESC": StrDesc, "NUMASC": NumAsc, "NUMDESC": NumDesc,
}

// ParseOperator parses an operator token per spec.md §6.5: a leading '~'
// or '!' sets negate, an additional leading '+' sets noIndex, and the
// remaining operator name is matched case-insensitively.
func ParseOperator(token string) (op Operator, negate, noIndex bool, err error) {
	for len(token) > 0 {
		switch token[0] {
		case '~', '!':
			negate = true
			token = token[1:]
			continue
		case '+':
			noIndex = true
			token = token[1:]
			continue
		}
		break
	}
	op, ok := operatorNames[strings.ToUpper(token)]
	if !ok {
		return 0, false, false, tdberr.New(tdberr.KindInvalidArgument, "unknown operator: "+token)
	}
	return op, negate, noIndex, nil
}

// ParseOrderType parses an order-type token per spec.md §6.5.
func ParseOrderType(token string) (OrderType, error) {
	ot, ok := orderTypeNames[strings.ToUpper(token)]
	if !ok {
		return 0, tdberr.New(tdberr.KindInvalidArgument, "unknown order type: "+token)
	}
	return ot, nil
}

// Condition is one clause of a query: "column op expr", optionally negated
// or excluded from index selection (spec.md §4.5).
type Condition struct {
	Column   string
	Op       Operator
	Expr     string
	Negate   bool
	NoIndex  bool
	alive    bool
}

// ParseCondition parses the "column OP expr" textual mini-language
// (grounded on tctdbqrysearchout2's string-form condition search in the
// original) into a Condition: column and the operator token are
// whitespace-separated, the operator token accepts the same '~'/'!'/'+'
// prefixes ParseOperator understands, and everything after the second
// space is taken verbatim as expr (so a STRAND/STROR expr like "red
// green" survives intact).
func ParseCondition(spec string) (Condition, error) {
	column, rest, ok := strings.Cut(spec, " ")
	if !ok {
		return Condition{}, tdberr.New(tdberr.KindInvalidArgument, "condition must be \"column OP expr\": "+spec)
	}
	opToken, expr, ok := strings.Cut(rest, " ")
	if !ok {
		return Condition{}, tdberr.New(tdberr.KindInvalidArgument, "condition must be \"column OP expr\": "+spec)
	}
	op, negate, noIndex, err := ParseOperator(opToken)
	if err != nil {
		return Condition{}, err
	}
	return Condition{Column: column, Op: op, Expr: expr, Negate: negate, NoIndex: noIndex, alive: true}, nil
}

// Order describes a query's requested result ordering.
type Order struct {
	Column string
	Type   OrderType
	set    bool
}

// Query is the query object (spec.md component C7): an accumulated list
// of conditions plus an optional ordering, limit, and skip, evaluated in
// conjunction (AND) across all conditions.
type Query struct {
	conditions []Condition
	order      Order
	max        int // default -1 (unbounded)
	skip       int
	hints      []string
}

// NewQuery returns an empty query with no conditions, no ordering, and an
// unbounded limit (qry_new).
func NewQuery() *Query {
	return &Query{max: -1}
}

// AddCondition appends a condition to the query (qry_add_cond).
func (q *Query) AddCondition(column string, op Operator, expr string, negate, noIndex bool) {
	q.conditions = append(q.conditions, Condition{
		Column: column, Op: op, Expr: expr, Negate: negate, NoIndex: noIndex, alive: true,
	})
}

// AddConditionValue appends an already-built condition, e.g. one returned
// by ParseCondition, without the caller destructuring it back into
// AddCondition's five arguments.
func (q *Query) AddConditionValue(cond Condition) {
	cond.alive = true
	q.conditions = append(q.conditions, cond)
}

// SetOrder sets the query's result ordering (qry_set_order).
func (q *Query) SetOrder(column string, orderType OrderType) {
	q.order = Order{Column: column, Type: orderType, set: true}
}

// SetLimit sets the maximum number of results and how many matches to skip
// before collecting them (qry_set_limit). max < 0 means unbounded.
func (q *Query) SetLimit(max, skip int) {
	q.max = max
	q.skip = skip
}

// Hint returns the accumulated human-readable planner trace (qry_hint).
func (q *Query) Hint() string {
	return strings.Join(q.hints, "\n")
}

func (q *Query) addHint(line string) {
	q.hints = append(q.hints, line)
}

// ProcFlags are the bits a put_proc/qry_proc callback may return to tell
// the executor what to do with the record it was given (spec.md §4.5).
type ProcFlags int

const (
	ProcPut ProcFlags = 1 << iota
	ProcOut
	ProcStop
)
