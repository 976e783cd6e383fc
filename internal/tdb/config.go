// Package tdb ties hashstore (C1), btreestore (C2), columnmap (C3), and
// index (C4/C5) together into the embedded table database spec.md
// describes: transaction coordination (C6), the query object (C7) and
// planner/executor (C8), UID generation (C9), the method lock (C10), and
// the public API surface (C11).
package tdb

import (
	"strconv"
	"strings"

	"github.com/dreamware/tdbkit/internal/hashstore"
	"github.com/dreamware/tdbkit/internal/tdberr"
)

// OpenMode is an OR-combination of the flags spec.md §6.2 defines.
type OpenMode int

const (
	ModeReader OpenMode = 1 << iota
	ModeWriter
	ModeCreate
	ModeTruncate
	ModeNoLock
	ModeLockNonBlock
	ModeSync // TSYNC
)

// Has reports whether mode includes flag.
func (mode OpenMode) Has(flag OpenMode) bool { return mode&flag != 0 }

// TuningFlags is an OR-combination of the flags spec.md §6.3 defines,
// forwarded to both the hash store and every index tree.
type TuningFlags int

const (
	TuningLarge TuningFlags = 1 << iota
	TuningDeflate
	TuningBzip
	TuningTCBS
	TuningExcodec
)

// compression returns the hashstore/btreestore Options.Compression string
// this tuning selects, preferring the first matching bit in declaration
// order (the flags are meant to be mutually exclusive compressors).
func (t TuningFlags) compression() string {
	switch {
	case t&TuningDeflate != 0:
		return "deflate"
	case t&TuningBzip != 0:
		return "bzip"
	case t&TuningTCBS != 0:
		return "tcbs"
	case t&TuningExcodec != 0:
		return "excodec"
	default:
		return ""
	}
}

// Tuning holds the closed-handle tuning knobs spec.md §4 lifecycle section
// allows setting before open: bucket count, alignment power, free-block
// pool power, compression/size flags, cache sizes, extra mmap size, and
// auto-defrag unit.
type Tuning struct {
	BucketNum      int64
	AlignPow       int
	FreeBlockPow   int
	Flags          TuningFlags
	CacheSize      int64
	ExtraMapSize   int64
	DefragUnit     int64
	FlushThreshold int // token buffer flush threshold in bytes; <=0 = default
}

// hashOptions projects Tuning and mode into hashstore.Options.
func (t Tuning) hashOptions(mode OpenMode) hashstore.Options {
	return hashstore.Options{
		Writable:     mode.Has(ModeWriter),
		Create:       mode.Has(ModeCreate),
		Truncate:     mode.Has(ModeTruncate),
		NoLock:       mode.Has(ModeNoLock),
		LockNonBlock: mode.Has(ModeLockNonBlock),
		Concurrent:   false,
		Compression:  t.Flags.compression(),
		Large:        t.Flags&TuningLarge != 0,
		NumBuckets:   t.BucketNum,
	}
}

// ParseTuningTokens parses a "#key=value#key2=value2" tuning-token string
// (spec.md §6.1's external configuration surface) into a Tuning. Unknown
// keys are rejected as invalid-argument, matching the source's strict
// parser rather than silently ignoring typos.
func ParseTuningTokens(s string) (Tuning, error) {
	var t Tuning
	if s == "" {
		return t, nil
	}
	for _, tok := range strings.Split(strings.TrimPrefix(s, "#"), "#") {
		if tok == "" {
			continue
		}
		parts := strings.SplitN(tok, "=", 2)
		if len(parts) != 2 {
			return t, tdberr.New(tdberr.KindInvalidArgument, "malformed tuning token: "+tok)
		}
		key, value := parts[0], parts[1]
		var err error
		switch key {
		case "bnum":
			t.BucketNum, err = strconv.ParseInt(value, 10, 64)
		case "apow":
			t.AlignPow, err = atoi(value)
		case "fpow":
			t.FreeBlockPow, err = atoi(value)
		case "opts":
			for _, c := range value {
				switch c {
				case 'l':
					t.Flags |= TuningLarge
				case 'd':
					t.Flags |= TuningDeflate
				case 'b':
					t.Flags |= TuningBzip
				case 't':
					t.Flags |= TuningTCBS
				case 'x':
					t.Flags |= TuningExcodec
				default:
					return t, tdberr.New(tdberr.KindInvalidArgument, "unknown opts character: "+string(c))
				}
			}
		case "xmsiz":
			t.ExtraMapSize, err = strconv.ParseInt(value, 10, 64)
		case "dfunit":
			t.DefragUnit, err = strconv.ParseInt(value, 10, 64)
		default:
			return t, tdberr.New(tdberr.KindInvalidArgument, "unknown tuning key: "+key)
		}
		if err != nil {
			return t, tdberr.Wrap(tdberr.KindInvalidArgument, "tuning value for "+key, err)
		}
	}
	return t, nil
}

func atoi(s string) (int, error) {
	n, err := strconv.Atoi(s)
	return n, err
}
