package tdb

import "github.com/dreamware/tdbkit/internal/hashstore"

// genUID implements component C9: it increments the 64-bit counter stored
// in the hash store's opaque header and returns the new value. Callers
// must hold the method lock for writing (spec.md §4.6) — genUID itself
// performs no locking, since tdb.go's public GenUID wraps this under the
// writer lock alongside every other mutating entry point.
func genUID(store *hashstore.Store) (uint64, error) {
	seed, err := store.UIDSeed()
	if err != nil {
		return 0, err
	}
	seed++
	if err := store.SetUIDSeed(seed); err != nil {
		return 0, err
	}
	return seed, nil
}
