package txn

import "github.com/mirkobrombin/go-strata/v1/commitlog"

// NextWaiter selects, among all records, the next holder for
// current.Name once current releases: the record with the same name, a
// different request id and the smallest ordinal. The boolean is false
// when no waiter exists.
//
// Ordinals are unique by construction (store-assigned, never reused).
// Two records sharing an ordinal is a store bug and a precondition
// violation; behavior in that case is undefined.
func NextWaiter(all []commitlog.Record, current commitlog.Record) (commitlog.Record, bool) {
	var next commitlog.Record
	found := false
	for _, rec := range all {
		if rec.Name != current.Name || rec.RequestID == current.RequestID {
			continue
		}
		if !found || rec.ID < next.ID {
			next = rec
			found = true
		}
	}
	return next, found
}

// hasOlder reports whether any record shares current.Name with a
// smaller ordinal, meaning current must queue.
func hasOlder(all []commitlog.Record, current commitlog.Record) bool {
	for _, rec := range all {
		if rec.Name == current.Name && rec.RequestID != current.RequestID && rec.ID < current.ID {
			return true
		}
	}
	return false
}
