package tdb

import (
	"github.com/dreamware/tdbkit/internal/columnmap"
	"github.com/dreamware/tdbkit/internal/hashstore"
	"github.com/dreamware/tdbkit/internal/index"
	"github.com/dreamware/tdbkit/internal/tdberr"
)

// undoEntry is the pre-transaction state of one record, captured the first
// time a transaction touches its primary key.
type undoEntry struct {
	hadOld   bool
	oldValue []byte
}

// txn is the transaction coordinator (spec.md component C6).
//
// tkrzw-go's DBM exposes no multi-operation transaction primitive of its
// own (unlike Tokyo Cabinet's original WAL-based tchdbtranbegin), so
// tdbkit implements begin/commit/abort as an application-level undo log
// recorded at record granularity: the first time a transaction touches a
// primary key, it snapshots that key's prior column map (or its absence).
// abort replays index.Manager.ApplyDelta in reverse — from the record's
// current state back to its snapshotted state — which both restores index
// entries and is symmetric by construction, then restores (or removes)
// the hash-store record itself. commit discards the log; the mutations
// already landed directly in the hash store and indices as they happened.
type txn struct {
	entries map[string]*undoEntry
	order   []string
}

func newTxn() *txn {
	return &txn{entries: make(map[string]*undoEntry)}
}

// record snapshots pk's prior state, if this transaction hasn't already
// touched it. Must be called before the mutation that changes pk's value
// is applied.
func (t *txn) record(pk []byte, hadOld bool, oldValue []byte) {
	key := string(pk)
	if _, seen := t.entries[key]; seen {
		return
	}
	var snapshot []byte
	if hadOld {
		snapshot = append([]byte{}, oldValue...)
	}
	t.entries[key] = &undoEntry{hadOld: hadOld, oldValue: snapshot}
	t.order = append(t.order, key)
}

// abort restores every pk this transaction touched back to its
// pre-transaction state, across both the hash store and every index.
func (t *txn) abort(store *hashstore.Store, mgr *index.Manager) error {
	for i := len(t.order) - 1; i >= 0; i-- {
		pk := []byte(t.order[i])
		entry := t.entries[t.order[i]]

		currentValue, err := store.Get(pk)
		existsNow := err == nil
		if err != nil && tdberr.KindOf(err) != tdberr.KindNoRecord {
			return err
		}

		currentCols := columnmap.New()
		if existsNow {
			currentCols, err = columnmap.Load(currentValue)
			if err != nil {
				return err
			}
		}
		targetCols := columnmap.New()
		if entry.hadOld {
			targetCols, err = columnmap.Load(entry.oldValue)
			if err != nil {
				return err
			}
		}

		if err := mgr.ApplyDelta(pk, currentCols, targetCols); err != nil {
			return err
		}

		if entry.hadOld {
			if err := store.Put(pk, entry.oldValue, true); err != nil {
				return err
			}
		} else if err := store.Out(pk); err != nil && tdberr.KindOf(err) != tdberr.KindNoRecord {
			return err
		}
	}
	return nil
}
