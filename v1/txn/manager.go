package txn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/mirkobrombin/go-strata/v1/bus"
	"github.com/mirkobrombin/go-strata/v1/commitlog"
	strataerrors "github.com/mirkobrombin/go-strata/v1/errors"
	"github.com/mirkobrombin/go-strata/v1/journal"
	"github.com/mirkobrombin/go-strata/v1/metrics"
)

const releaseTopicPrefix = "strata:release:"

type requestState int

const (
	stateQueued requestState = iota
	stateActive
	stateDone
)

// request pairs a persisted lock record with the in-memory pieces that
// never hit the store: the critical section, the completion hook and
// the caller's context.
type request struct {
	ctx        context.Context
	rec        commitlog.Record
	critical   CriticalSection
	onReleased OnReleased
	state      requestState
	span       trace.Span
	releaseMu  sync.Mutex
	released   bool
}

// manager drives the acquire, run and release lifecycle of commit-log
// lock requests issued by this process.
type manager struct {
	log     commitlog.Log
	stuck   time.Duration
	bus     bus.Bus
	journal journal.Journal

	// opMu serializes every scan-and-decide sequence within this
	// process, closing the insert-then-scan window for local
	// competitors. Cross-process visibility is the store's contract;
	// see commitlog.Log.
	opMu  sync.Mutex
	local map[string]*request

	subMu sync.Mutex
	subs  map[string]chan struct{}

	activations chan *request
	stop        chan struct{}
	stopOnce    sync.Once
}

func newManager(log commitlog.Log, stuck time.Duration, b bus.Bus, j journal.Journal) *manager {
	m := &manager{
		log:         log,
		stuck:       stuck,
		bus:         b,
		journal:     j,
		local:       make(map[string]*request),
		subs:        make(map[string]chan struct{}),
		activations: make(chan *request, 64),
		stop:        make(chan struct{}),
	}
	go m.dispatch()
	return m
}

// dispatch is the single activation loop: waiters are handed over as
// queue entries and run on fresh goroutines, so arbitrarily long wait
// chains never grow the stack.
func (m *manager) dispatch() {
	for {
		select {
		case req := <-m.activations:
			go m.run(req)
		case <-m.stop:
			return
		}
	}
}

func (m *manager) close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// acquire inserts a record for the request and either queues it behind
// an older same-name record or schedules immediate activation.
func (m *manager) acquire(req *request) {
	m.opMu.Lock()
	rec, err := m.log.Append(req.ctx, req.rec)
	if err != nil {
		m.opMu.Unlock()
		// Fatal for this attempt: without a log entry there is no safe
		// queue position to recover.
		appendErr := fmt.Errorf("%w: %v", strataerrors.ErrLogAppend, err)
		req.critical(req.ctx, m.reRaise(req, appendErr), appendErr)
		return
	}
	req.rec = rec
	m.local[rec.RequestID] = req

	records, err := m.log.Scan(req.ctx)
	if err != nil {
		delete(m.local, rec.RequestID)
		// The record's queue position was never observed by this
		// request, so removing it cannot break FIFO. Leaving it behind
		// would block every re-issued attempt on this name.
		_ = m.log.Delete(context.WithoutCancel(req.ctx), rec.ID)
		m.opMu.Unlock()
		scanErr := fmt.Errorf("%w: %v", strataerrors.ErrLogScan, err)
		req.critical(req.ctx, m.reRaise(req, scanErr), scanErr)
		return
	}
	queued := hasOlder(records, rec)
	m.opMu.Unlock()

	if queued {
		metrics.LockWaitCounter.Inc()
		m.record(journal.Event{Kind: journal.KindQueued, Name: rec.Name, RequestID: rec.RequestID})
		m.watchReleases(rec.Name)
		return
	}
	m.enqueue(req)
}

func (m *manager) enqueue(req *request) {
	select {
	case m.activations <- req:
	case <-m.stop:
	}
}

// run executes one request's critical section with the advisory stuck
// timer armed.
func (m *manager) run(req *request) {
	m.opMu.Lock()
	if req.state != stateQueued {
		m.opMu.Unlock()
		return
	}
	req.state = stateActive
	m.opMu.Unlock()

	metrics.TxnActiveGauge.Inc()
	m.record(journal.Event{Kind: journal.KindActivated, Name: req.rec.Name, RequestID: req.rec.RequestID})

	timer := time.AfterFunc(m.stuck, func() {
		metrics.LockStuckCounter.Inc()
		m.record(journal.Event{Kind: journal.KindStuck, Name: req.rec.Name, RequestID: req.rec.RequestID})
		slog.Warn("strata: critical section running past stuck threshold",
			"name", req.rec.Name,
			"requestId", req.rec.RequestID,
			"threshold", m.stuck)
	})

	release := func(args ...any) {
		req.releaseMu.Lock()
		if req.released {
			req.releaseMu.Unlock()
			return
		}
		req.released = true
		req.releaseMu.Unlock()
		timer.Stop()
		m.release(req, args)
	}
	req.critical(req.ctx, release, nil)
}

// release removes the request's record and hands the lock to the next
// waiter. The completion hook runs before the next waiter is activated
// so a single name cannot monopolize the scheduler. Store operations
// run on a context detached from the caller: cancelling the section's
// context must not leave its record behind, so only genuine store
// failures reach the stall path.
func (m *manager) release(req *request, args []any) {
	ctx := context.WithoutCancel(req.ctx)
	m.opMu.Lock()
	records, err := m.log.Scan(ctx)
	if err != nil {
		m.stall(req, err, args)
		return
	}
	next, hasNext := NextWaiter(records, req.rec)
	if err := m.log.Delete(ctx, req.rec.ID); err != nil {
		m.stall(req, err, args)
		return
	}
	req.state = stateDone
	delete(m.local, req.rec.RequestID)
	var nextReq *request
	if hasNext {
		if cand, ok := m.local[next.RequestID]; ok && cand.state == stateQueued {
			nextReq = cand
		}
	}
	m.opMu.Unlock()

	metrics.TxnActiveGauge.Dec()
	m.record(journal.Event{Kind: journal.KindReleased, Name: req.rec.Name, RequestID: req.rec.RequestID})
	m.endSpan(req, nil)

	if req.onReleased != nil {
		req.onReleased(nil, args...)
	}
	if nextReq != nil {
		m.enqueue(nextReq)
	}
	if m.bus != nil {
		_ = m.bus.Publish(ctx, releaseTopicPrefix+req.rec.Name)
	}
}

// stall reports a failed release-time scan or delete. The wait chain
// for the name is left unadvanced; no retry is attempted because a
// duplicate insert could steal a queue position.
func (m *manager) stall(req *request, cause error, args []any) {
	req.state = stateDone
	delete(m.local, req.rec.RequestID)
	m.opMu.Unlock()

	metrics.TxnActiveGauge.Dec()
	metrics.QueueStallCounter.Inc()
	err := fmt.Errorf("%w: %v", strataerrors.ErrQueueStalled, cause)
	m.record(journal.Event{
		Kind:      journal.KindStalled,
		Name:      req.rec.Name,
		RequestID: req.rec.RequestID,
		Detail:    cause.Error(),
	})
	slog.Error("strata: lock queue stalled",
		"name", req.rec.Name,
		"requestId", req.rec.RequestID,
		"error", cause)
	m.endSpan(req, err)
	if req.onReleased != nil {
		req.onReleased(err, args...)
	}
}

// reRaise builds the release callback handed to critical sections that
// never acquired the lock: it forwards the acquisition error to the
// completion hook, once.
func (m *manager) reRaise(req *request, err error) ReleaseFunc {
	var once sync.Once
	return func(args ...any) {
		once.Do(func() {
			m.endSpan(req, err)
			if req.onReleased != nil {
				req.onReleased(err, args...)
			}
		})
	}
}

// watchReleases subscribes to cross-process release notifications for a
// name while this process has requests queued on it.
func (m *manager) watchReleases(name string) {
	if m.bus == nil {
		return
	}
	m.subMu.Lock()
	if _, ok := m.subs[name]; ok {
		m.subMu.Unlock()
		return
	}
	ch, err := m.bus.Subscribe(context.Background(), releaseTopicPrefix+name)
	if err != nil {
		m.subMu.Unlock()
		return
	}
	m.subs[name] = ch
	m.subMu.Unlock()

	go func() {
		for {
			select {
			case _, ok := <-ch:
				if !ok {
					return
				}
				m.wake(name)
			case <-m.stop:
				_ = m.bus.Unsubscribe(context.Background(), releaseTopicPrefix+name, ch)
				return
			}
		}
	}()
}

// wake re-evaluates the queue for a name after a remote release: if the
// oldest surviving record belongs to a queued local request, it is
// activated.
func (m *manager) wake(name string) {
	m.opMu.Lock()
	records, err := m.log.Scan(context.Background())
	if err != nil {
		m.opMu.Unlock()
		return
	}
	var oldest commitlog.Record
	found := false
	for _, rec := range records {
		if rec.Name != name {
			continue
		}
		if !found || rec.ID < oldest.ID {
			oldest = rec
			found = true
		}
	}
	var next *request
	if found {
		if cand, ok := m.local[oldest.RequestID]; ok && cand.state == stateQueued {
			next = cand
		}
	}
	m.opMu.Unlock()
	if next != nil {
		m.enqueue(next)
	}
}

func (m *manager) record(ev journal.Event) {
	if m.journal == nil {
		return
	}
	_ = m.journal.Record(context.Background(), ev)
}

func (m *manager) endSpan(req *request, err error) {
	if req.span == nil {
		return
	}
	if err != nil {
		req.span.RecordError(err)
	}
	req.span.End()
}
