package txn

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mirkobrombin/go-strata/v1/adapter"
	"github.com/mirkobrombin/go-strata/v1/bus"
	"github.com/mirkobrombin/go-strata/v1/commitlog"
	"github.com/mirkobrombin/go-strata/v1/config"
	"github.com/mirkobrombin/go-strata/v1/journal"
	"github.com/mirkobrombin/go-strata/v1/metrics"
)

const tracerName = "github.com/mirkobrombin/go-strata/v1/txn"

// ReleaseFunc ends a critical section. Arguments are forwarded to the
// request's OnReleased hook. Calling it more than once is a no-op.
type ReleaseFunc func(args ...any)

// CriticalSection is the caller-supplied unit of work. err is non-nil
// when the lock could not be established; in that case the section
// holds no exclusivity and release only forwards the error to the
// completion hook.
type CriticalSection func(ctx context.Context, release ReleaseFunc, err error)

// OnReleased runs after the section's record has been removed from the
// commit log, before the next waiter is activated. err reports release
// failures (queue stalls) and acquisition failures.
type OnReleased func(err error, args ...any)

// Strategy identifies how a coordinator provides mutual exclusion.
type Strategy int

const (
	// StrategyNative delegates to the adapter's own transaction
	// primitive.
	StrategyNative Strategy = iota
	// StrategyPassthrough runs critical sections immediately with no
	// mutual exclusion.
	StrategyPassthrough
	// StrategyCommitLog queues lock records in the shared commit log.
	StrategyCommitLog
)

// Coordinator is the public entry point of the locking subsystem. The
// strategy is fixed at construction: adapter-native transactions when
// available, commit-log locking when a log is supplied, plain
// passthrough otherwise.
type Coordinator struct {
	strategy Strategy
	native   adapter.Transactor
	manager  *manager
	tracer   trace.Tracer
}

// Option configures a Coordinator.
type Option func(*options)

type options struct {
	cfg     config.Config
	bus     bus.Bus
	journal journal.Journal
}

// WithConfig overrides the default configuration.
func WithConfig(cfg config.Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithBus wires cross-process release notifications.
func WithBus(b bus.Bus) Option {
	return func(o *options) {
		o.bus = b
	}
}

// WithJournal wires lifecycle event recording.
func WithJournal(j journal.Journal) Option {
	return func(o *options) {
		o.journal = j
	}
}

// New builds a Coordinator for the adapter. Passing a nil log opts out
// of commit-log coordination; unless the adapter is a Transactor, the
// coordinator then degrades to passthrough.
func New(a adapter.Adapter, log commitlog.Log, opts ...Option) *Coordinator {
	o := options{cfg: config.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Coordinator{tracer: otel.Tracer(tracerName)}
	if native, ok := a.(adapter.Transactor); ok {
		c.strategy = StrategyNative
		c.native = native
		return c
	}
	if log == nil {
		c.strategy = StrategyPassthrough
		return c
	}
	c.strategy = StrategyCommitLog
	c.manager = newManager(log, o.cfg.StuckTimeout, o.bus, o.journal)
	return c
}

// Strategy reports the strategy fixed at construction.
func (c *Coordinator) Strategy() Strategy {
	return c.strategy
}

// Close stops the activation dispatcher. Queued requests are abandoned;
// their records stay in the log for external cleanup.
func (c *Coordinator) Close() {
	if c.manager != nil {
		c.manager.close()
	}
}

// Transaction runs critical under the name's mutual exclusion regime.
// onReleased may be nil. The call returns as soon as the request is
// registered; the critical section runs when the lock is granted.
func (c *Coordinator) Transaction(ctx context.Context, name string, critical CriticalSection, onReleased OnReleased) {
	metrics.TxnStartedCounter.Inc()
	switch c.strategy {
	case StrategyNative:
		c.runNative(ctx, name, critical, onReleased)
	case StrategyPassthrough:
		// No coordination requested: run immediately. Callers relying
		// on ordering get none.
		var once sync.Once
		release := func(args ...any) {
			once.Do(func() {
				if onReleased != nil {
					onReleased(nil, args...)
				}
			})
		}
		critical(ctx, release, nil)
	case StrategyCommitLog:
		ctx, span := c.tracer.Start(ctx, "strata.transaction",
			trace.WithAttributes(attribute.String("strata.lock.name", name)))
		req := &request{
			ctx:        ctx,
			rec:        commitlog.Record{RequestID: uuid.NewString(), Name: name},
			critical:   critical,
			onReleased: onReleased,
			span:       span,
		}
		span.SetAttributes(attribute.String("strata.lock.request_id", req.rec.RequestID))
		c.manager.acquire(req)
	}
}

// runNative maps the callback contract onto the adapter's transaction
// primitive: the native transaction stays open until release is called.
func (c *Coordinator) runNative(ctx context.Context, name string, critical CriticalSection, onReleased OnReleased) {
	var releaseArgs []any
	err := c.native.Transaction(ctx, name, func(ctx context.Context) error {
		done := make(chan struct{})
		var once sync.Once
		release := func(args ...any) {
			once.Do(func() {
				releaseArgs = args
				close(done)
			})
		}
		critical(ctx, release, nil)
		<-done
		return nil
	})
	if onReleased != nil {
		onReleased(err, releaseArgs...)
	}
}
