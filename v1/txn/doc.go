// Package txn coordinates named critical sections with mutual exclusion
// and FIFO fairness. When the adapter has no native transaction
// primitive, coordination is built entirely on ordinary insert, scan
// and delete operations against a shared commit-log collection, so
// independent processes sharing one store can queue on the same name.
package txn
