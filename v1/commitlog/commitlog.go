// Package commitlog stores lock records in an ordinary persistent
// collection. The transaction subsystem builds its queue entirely on
// the insert, scan and delete primitives exposed here, so any store
// that can persist rows can back a distributed mutex.
package commitlog

import "context"

// Record is a single pending or active lock request as persisted in the
// commit log. The critical section itself is never stored; it lives in
// the in-memory request object that accompanies the record.
type Record struct {
	// ID is the store-assigned ordinal. It increases monotonically
	// across all names, is never reused, and defines arrival order.
	ID int64 `json:"id"`
	// RequestID uniquely identifies this request, including across
	// retries that share a Name.
	RequestID string `json:"requestId"`
	// Name is the logical resource the request wants exclusive access to.
	Name string `json:"name"`
}

// Log is the system of record for the lock queue.
//
// Implementations must provide read-after-write visibility: a Scan
// issued after an Append returns must observe the appended record.
// Without that guarantee the insert-then-scan conflict check can admit
// two active holders for one name.
type Log interface {
	// Append inserts the record and returns it with its assigned ID.
	Append(ctx context.Context, rec Record) (Record, error)
	// Scan returns every record currently in the log, in no particular
	// order.
	Scan(ctx context.Context) ([]Record, error)
	// Delete removes the record with the given ID. Deleting an absent
	// ID is not an error.
	Delete(ctx context.Context, id int64) error
}
