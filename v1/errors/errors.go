package errors

import "errors"

var (
	ErrTimeout          = errors.New("timeout")
	ErrConnectionClosed = errors.New("connection closed")

	// ErrMissingCapability is returned when an adapter lacks a primitive
	// required by the requested operation.
	ErrMissingCapability = errors.New("adapter missing capability")

	// ErrLogAppend is returned when a lock record could not be written to
	// the commit log. The lock attempt is fatal; callers must re-issue the
	// transaction themselves.
	ErrLogAppend = errors.New("commit log append failed")

	// ErrLogScan is returned when the conflict-check scan after a
	// successful append failed. The appended record is removed on a best
	// effort basis before the error surfaces, so re-issuing the
	// transaction is safe.
	ErrLogScan = errors.New("commit log scan failed")

	// ErrQueueStalled reports a failed release-time scan or delete. The
	// wait chain for the affected name is not advanced.
	ErrQueueStalled = errors.New("lock queue stalled")
)
