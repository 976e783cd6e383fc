package main

import (
	"strings"

	"github.com/dreamware/tdbkit/internal/columnmap"
	"github.com/dreamware/tdbkit/internal/index"
	"github.com/dreamware/tdbkit/internal/tdberr"
)

// parseColumns turns "name=Alice,age=30" into a columnmap.Map, the record
// literal syntax the put subcommand's --cols flag accepts (in every --write
// mode: over, keep, or cat).
func parseColumns(s string) (*columnmap.Map, error) {
	m := columnmap.New()
	if strings.TrimSpace(s) == "" {
		return m, nil
	}
	for _, pair := range strings.Split(s, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, tdberr.New(tdberr.KindInvalidArgument, "column must be name=value: "+pair)
		}
		if err := m.Set(kv[0], []byte(kv[1])); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// parseIndexKind maps an index type name (lex/lexical, dec/decimal,
// tok/token) to an index.Kind, reusing the same three kinds the file
// layout and SetIndex accept.
func parseIndexKind(s string) (index.Kind, error) {
	switch strings.ToLower(s) {
	case "lex", "lexical":
		return index.Lexical, nil
	case "dec", "decimal":
		return index.Decimal, nil
	case "tok", "token":
		return index.Token, nil
	default:
		return "", tdberr.New(tdberr.KindInvalidArgument, "unknown index type: "+s)
	}
}
