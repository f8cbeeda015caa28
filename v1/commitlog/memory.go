package commitlog

import (
	"context"
	"sync"
)

// InMemoryLog is a Log backed by local memory. It is read-after-write
// consistent by construction and is the default for single-process
// coordination and tests.
type InMemoryLog struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]Record
}

// NewInMemoryLog returns an empty InMemoryLog.
func NewInMemoryLog() *InMemoryLog {
	return &InMemoryLog{nextID: 1, records: make(map[int64]Record)}
}

// Append implements Log.Append.
func (l *InMemoryLog) Append(ctx context.Context, rec Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	l.mu.Lock()
	rec.ID = l.nextID
	l.nextID++
	l.records[rec.ID] = rec
	l.mu.Unlock()
	return rec, nil
}

// Scan implements Log.Scan.
func (l *InMemoryLog) Scan(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	out := make([]Record, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, rec)
	}
	l.mu.Unlock()
	return out, nil
}

// Delete implements Log.Delete.
func (l *InMemoryLog) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	delete(l.records, id)
	l.mu.Unlock()
	return nil
}
