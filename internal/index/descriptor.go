// Package index implements the index manager and token-inverted index
// (spec.md components C4 and C5): per-column secondary indices maintained
// alongside a table database's primary hash store, plus the in-memory
// flush buffer that absorbs token-index writes before they hit disk.
//
// Grounded on the teacher's shard/shard_registry pairing: a Descriptor here
// plays the role shard.Shard played in the original cluster (a single named
// unit of storage with its own backing store), and Manager plays the role
// shard_registry.ShardRegistry played (the authoritative map from name to
// unit, guarding concurrent access with an RWMutex). Both were generalized
// from "distributed shard" to "secondary index" and rewritten against
// internal/btreestore instead of internal/storage.
package index

import (
	"net/url"

	"github.com/dreamware/tdbkit/internal/btreestore"
)

// Kind identifies how an index orders and interprets its keys.
type Kind string

const (
	// Lexical indices order keys byte-lexicographically.
	Lexical Kind = "lex"
	// Decimal indices order keys by their leading numeric prefix.
	Decimal Kind = "dec"
	// Token indices map whitespace/comma-separated tokens to postings
	// lists and are backed by both a tree and an in-memory Buffer.
	Token Kind = "tok"
)

// Descriptor is one open secondary index: a column name, its kind, the
// B+-tree that backs it, and — for token indices only — the in-memory
// flush buffer sitting in front of that tree.
//
// An empty Column denotes an index on the primary key itself, which
// affects how composite keys are built (see buildCompositeKey) but not
// how the descriptor itself behaves.
type Descriptor struct {
	Column string
	Kind   Kind
	Tree   *btreestore.Store
	Buffer *Buffer // nil for Lexical/Decimal
}

// onPrimaryKey reports whether this descriptor indexes the primary key
// itself rather than a named column.
func (d *Descriptor) onPrimaryKey() bool { return d.Column == "" }

// FileSuffix returns the on-disk suffix for this descriptor's kind,
// completing the "P.idx.urlencode(C).{lex|dec|tok}" naming convention
// spec.md §6.2 assigns to index files.
func (d *Descriptor) FileSuffix() string { return string(d.Kind) }

// FileStem returns the URL-encoded column name used as the index file's
// middle path component, so that columns containing '.' or '/' still
// produce a single valid path segment.
func (d *Descriptor) FileStem() string { return url.QueryEscape(d.Column) }
