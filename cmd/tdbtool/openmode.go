package main

import (
	"strings"

	"github.com/dreamware/tdbkit/internal/tdb"
	"github.com/dreamware/tdbkit/internal/tdberr"
)

var openModeTokens = map[string]tdb.OpenMode{
	"reader":   tdb.ModeReader,
	"writer":   tdb.ModeWriter,
	"create":   tdb.ModeCreate,
	"truncate": tdb.ModeTruncate,
	"nolock":   tdb.ModeNoLock,
	"nonblock": tdb.ModeLockNonBlock,
	"sync":     tdb.ModeSync,
}

// parseOpenMode parses a comma-separated list of mode tokens (e.g.
// "writer,create") into an OpenMode bitmask.
func parseOpenMode(s string) (tdb.OpenMode, error) {
	var mode tdb.OpenMode
	if strings.TrimSpace(s) == "" {
		return mode, nil
	}
	for _, tok := range strings.Split(s, ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		flag, ok := openModeTokens[tok]
		if !ok {
			return 0, tdberr.New(tdberr.KindInvalidArgument, "unknown open mode: "+tok)
		}
		mode |= flag
	}
	return mode, nil
}
