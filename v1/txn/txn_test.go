package txn

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mirkobrombin/go-strata/v1/adapter"
	"github.com/mirkobrombin/go-strata/v1/bus"
	"github.com/mirkobrombin/go-strata/v1/commitlog"
	"github.com/mirkobrombin/go-strata/v1/config"
	strataerrors "github.com/mirkobrombin/go-strata/v1/errors"
	"github.com/mirkobrombin/go-strata/v1/journal"
)

func newCommitLogCoordinator(t *testing.T, opts ...Option) (*Coordinator, *commitlog.InMemoryLog) {
	t.Helper()
	log := commitlog.NewInMemoryLog()
	c := New(adapter.NewInMemory(), log, opts...)
	if c.Strategy() != StrategyCommitLog {
		t.Fatalf("expected commit-log strategy, got %v", c.Strategy())
	}
	t.Cleanup(c.Close)
	return c, log
}

func waitFor(t *testing.T, ch chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s", what)
	}
}

func TestImmediateActivationAndCleanup(t *testing.T) {
	c, log := newCommitLogCoordinator(t)
	ctx := context.Background()

	done := make(chan struct{})
	c.Transaction(ctx, "acct.transfer", func(ctx context.Context, release ReleaseFunc, err error) {
		if err != nil {
			t.Errorf("unexpected acquire error: %v", err)
		}
		release()
	}, func(err error, args ...any) {
		if err != nil {
			t.Errorf("unexpected release error: %v", err)
		}
		close(done)
	})
	waitFor(t, done, "release")

	records, err := log.Scan(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty log after release, got %v", records)
	}
}

func TestSecondRequestQueuesUntilFirstReleases(t *testing.T) {
	c, log := newCommitLogCoordinator(t)
	ctx := context.Background()

	firstActive := make(chan struct{})
	releaseFirst := make(chan struct{})
	secondDone := make(chan struct{})

	c.Transaction(ctx, "acct.transfer", func(ctx context.Context, release ReleaseFunc, err error) {
		close(firstActive)
		go func() {
			<-releaseFirst
			release()
		}()
	}, nil)
	waitFor(t, firstActive, "first activation")

	secondRan := atomic.Bool{}
	c.Transaction(ctx, "acct.transfer", func(ctx context.Context, release ReleaseFunc, err error) {
		secondRan.Store(true)
		release()
	}, func(err error, args ...any) {
		close(secondDone)
	})

	time.Sleep(50 * time.Millisecond)
	if secondRan.Load() {
		t.Fatal("second section ran while first held the lock")
	}
	if records, _ := log.Scan(ctx); len(records) != 2 {
		t.Fatalf("expected 2 records while queued, got %d", len(records))
	}

	close(releaseFirst)
	waitFor(t, secondDone, "second release")

	if records, _ := log.Scan(ctx); len(records) != 0 {
		t.Fatalf("expected empty log, got %d records", len(records))
	}
}

func TestFIFOFairness(t *testing.T) {
	c, _ := newCommitLogCoordinator(t)
	ctx := context.Background()

	var mu sync.Mutex
	var order []string
	all := make(chan struct{})
	var remaining atomic.Int32
	remaining.Store(3)

	for _, id := range []string{"A", "B", "C"} {
		id := id
		c.Transaction(ctx, "X", func(ctx context.Context, release ReleaseFunc, err error) {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			release()
		}, func(err error, args ...any) {
			if remaining.Add(-1) == 0 {
				close(all)
			}
		})
	}
	waitFor(t, all, "all releases")

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "A" || order[1] != "B" || order[2] != "C" {
		t.Fatalf("expected activation order [A B C], got %v", order)
	}
}

func TestMutualExclusion(t *testing.T) {
	c, _ := newCommitLogCoordinator(t)
	ctx := context.Background()

	var active atomic.Int32
	var maxActive atomic.Int32
	all := make(chan struct{})
	const n = 20
	var remaining atomic.Int32
	remaining.Store(n)

	for i := 0; i < n; i++ {
		go c.Transaction(ctx, "X", func(ctx context.Context, release ReleaseFunc, err error) {
			cur := active.Add(1)
			for {
				max := maxActive.Load()
				if cur <= max || maxActive.CompareAndSwap(max, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
			release()
		}, func(err error, args ...any) {
			if remaining.Add(-1) == 0 {
				close(all)
			}
		})
	}
	waitFor(t, all, "all releases")
	if maxActive.Load() != 1 {
		t.Fatalf("expected at most 1 active section, observed %d", maxActive.Load())
	}
}

func TestOnReleasedFiresBeforeNextActivation(t *testing.T) {
	c, _ := newCommitLogCoordinator(t)
	ctx := context.Background()

	var mu sync.Mutex
	var events []string
	done := make(chan struct{})

	c.Transaction(ctx, "X", func(ctx context.Context, release ReleaseFunc, err error) {
		release()
	}, func(err error, args ...any) {
		mu.Lock()
		events = append(events, "first-hook")
		mu.Unlock()
	})
	c.Transaction(ctx, "X", func(ctx context.Context, release ReleaseFunc, err error) {
		mu.Lock()
		events = append(events, "second-section")
		mu.Unlock()
		release()
	}, func(err error, args ...any) {
		close(done)
	})
	waitFor(t, done, "second release")

	mu.Lock()
	defer mu.Unlock()
	for i, ev := range events {
		if ev == "first-hook" {
			for j, other := range events {
				if other == "second-section" && j < i {
					t.Fatalf("second section ran before first hook: %v", events)
				}
			}
		}
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %v", events)
	}
}

func TestIndependentNamesDoNotBlock(t *testing.T) {
	c, _ := newCommitLogCoordinator(t)
	ctx := context.Background()

	xActive := make(chan struct{})
	yActive := make(chan struct{})
	blockX := make(chan struct{})

	c.Transaction(ctx, "X", func(ctx context.Context, release ReleaseFunc, err error) {
		close(xActive)
		go func() {
			<-blockX
			release()
		}()
	}, nil)
	waitFor(t, xActive, "X activation")

	c.Transaction(ctx, "Y", func(ctx context.Context, release ReleaseFunc, err error) {
		close(yActive)
		release()
	}, nil)
	waitFor(t, yActive, "Y activation while X held")
	close(blockX)
}

func TestReleaseArgsForwardedToHook(t *testing.T) {
	c, _ := newCommitLogCoordinator(t)
	done := make(chan struct{})

	c.Transaction(context.Background(), "X", func(ctx context.Context, release ReleaseFunc, err error) {
		release("result", 42)
	}, func(err error, args ...any) {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if len(args) != 2 || args[0] != "result" || args[1] != 42 {
			t.Errorf("expected [result 42], got %v", args)
		}
		close(done)
	})
	waitFor(t, done, "hook")
}

func TestPassthroughRunsImmediately(t *testing.T) {
	c := New(adapter.NewInMemory(), nil)
	if c.Strategy() != StrategyPassthrough {
		t.Fatalf("expected passthrough strategy, got %v", c.Strategy())
	}
	ran := false
	c.Transaction(context.Background(), "X", func(ctx context.Context, release ReleaseFunc, err error) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ran = true
		release()
	}, nil)
	if !ran {
		t.Fatal("passthrough section did not run synchronously")
	}
}

func TestNativeStrategyDelegates(t *testing.T) {
	c := New(adapter.NewInMemoryTx(), commitlog.NewInMemoryLog())
	if c.Strategy() != StrategyNative {
		t.Fatalf("expected native strategy, got %v", c.Strategy())
	}
	done := make(chan struct{})
	c.Transaction(context.Background(), "X", func(ctx context.Context, release ReleaseFunc, err error) {
		release("native")
	}, func(err error, args ...any) {
		if err != nil {
			t.Errorf("native transaction: %v", err)
		}
		if len(args) != 1 || args[0] != "native" {
			t.Errorf("expected [native], got %v", args)
		}
		close(done)
	})
	waitFor(t, done, "native hook")
}

func TestStuckWarningFires(t *testing.T) {
	j := journal.NewInMemory(16)
	cfg := config.Default()
	cfg.StuckTimeout = 10 * time.Millisecond
	c, _ := newCommitLogCoordinator(t, WithConfig(cfg), WithJournal(j))

	done := make(chan struct{})
	c.Transaction(context.Background(), "slow", func(ctx context.Context, release ReleaseFunc, err error) {
		go func() {
			time.Sleep(50 * time.Millisecond)
			release()
		}()
	}, func(err error, args ...any) {
		close(done)
	})
	waitFor(t, done, "release")

	stuck := false
	for _, ev := range j.Events() {
		if ev.Kind == journal.KindStuck && ev.Name == "slow" {
			stuck = true
		}
	}
	if !stuck {
		t.Fatal("expected a stuck warning event")
	}
}

// failLog wraps a Log with switchable failures.
type failLog struct {
	commitlog.Log
	failAppend atomic.Bool
	failScan   atomic.Bool
	failDelete atomic.Bool
}

var errInjected = errors.New("injected store failure")

func (f *failLog) Append(ctx context.Context, rec commitlog.Record) (commitlog.Record, error) {
	if f.failAppend.Load() {
		return commitlog.Record{}, errInjected
	}
	return f.Log.Append(ctx, rec)
}

func (f *failLog) Scan(ctx context.Context) ([]commitlog.Record, error) {
	if f.failScan.Load() {
		return nil, errInjected
	}
	return f.Log.Scan(ctx)
}

func (f *failLog) Delete(ctx context.Context, id int64) error {
	if f.failDelete.Load() {
		return errInjected
	}
	return f.Log.Delete(ctx, id)
}

func TestAppendFailureIsFatalForAttempt(t *testing.T) {
	fl := &failLog{Log: commitlog.NewInMemoryLog()}
	fl.failAppend.Store(true)
	c := New(adapter.NewInMemory(), fl)
	t.Cleanup(c.Close)

	done := make(chan struct{})
	c.Transaction(context.Background(), "X", func(ctx context.Context, release ReleaseFunc, err error) {
		if !errors.Is(err, strataerrors.ErrLogAppend) {
			t.Errorf("expected ErrLogAppend, got %v", err)
		}
		release()
	}, func(err error, args ...any) {
		if !errors.Is(err, strataerrors.ErrLogAppend) {
			t.Errorf("hook should re-raise append failure, got %v", err)
		}
		close(done)
	})
	waitFor(t, done, "hook")
}

func TestDeleteFailureStallsQueue(t *testing.T) {
	fl := &failLog{Log: commitlog.NewInMemoryLog()}
	c := New(adapter.NewInMemory(), fl)
	t.Cleanup(c.Close)
	ctx := context.Background()

	firstActive := make(chan struct{})
	stalled := make(chan struct{})
	c.Transaction(ctx, "X", func(ctx context.Context, release ReleaseFunc, err error) {
		close(firstActive)
		go func() {
			fl.failDelete.Store(true)
			release()
		}()
	}, func(err error, args ...any) {
		if !errors.Is(err, strataerrors.ErrQueueStalled) {
			t.Errorf("expected ErrQueueStalled, got %v", err)
		}
		close(stalled)
	})
	waitFor(t, firstActive, "first activation")

	secondRan := atomic.Bool{}
	c.Transaction(ctx, "X", func(ctx context.Context, release ReleaseFunc, err error) {
		secondRan.Store(true)
		release()
	}, nil)

	waitFor(t, stalled, "stall report")
	time.Sleep(50 * time.Millisecond)
	if secondRan.Load() {
		t.Fatal("waiter activated despite stalled release")
	}
}

func TestCallerCancellationDoesNotOrphanRecord(t *testing.T) {
	c, log := newCommitLogCoordinator(t)
	ctx, cancel := context.WithCancel(context.Background())

	firstActive := make(chan struct{})
	releaseFirst := make(chan struct{})
	holderDone := make(chan struct{})
	c.Transaction(ctx, "X", func(ctx context.Context, release ReleaseFunc, err error) {
		if err != nil {
			t.Errorf("unexpected acquire error: %v", err)
		}
		close(firstActive)
		go func() {
			<-releaseFirst
			release()
		}()
	}, func(err error, args ...any) {
		if err != nil {
			t.Errorf("release after caller cancellation: %v", err)
		}
		close(holderDone)
	})
	waitFor(t, firstActive, "holder activation")

	secondDone := make(chan struct{})
	c.Transaction(context.Background(), "X", func(ctx context.Context, release ReleaseFunc, err error) {
		release()
	}, func(err error, args ...any) {
		close(secondDone)
	})

	// The caller walks away before the section completes.
	cancel()
	close(releaseFirst)

	waitFor(t, holderDone, "holder release")
	waitFor(t, secondDone, "queued waiter after cancelled holder")

	records, err := log.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty log after cancelled holder released, got %v", records)
	}
}

func TestScanFailureRemovesAppendedRecord(t *testing.T) {
	fl := &failLog{Log: commitlog.NewInMemoryLog()}
	fl.failScan.Store(true)
	c := New(adapter.NewInMemory(), fl)
	t.Cleanup(c.Close)
	ctx := context.Background()

	failed := make(chan struct{})
	c.Transaction(ctx, "X", func(ctx context.Context, release ReleaseFunc, err error) {
		if !errors.Is(err, strataerrors.ErrLogScan) {
			t.Errorf("expected ErrLogScan, got %v", err)
		}
		release()
	}, func(err error, args ...any) {
		if !errors.Is(err, strataerrors.ErrLogScan) {
			t.Errorf("hook should carry the scan failure, got %v", err)
		}
		close(failed)
	})
	waitFor(t, failed, "failed attempt hook")

	fl.failScan.Store(false)
	if records, err := fl.Scan(ctx); err != nil || len(records) != 0 {
		t.Fatalf("expected cleaned log after scan failure, got %v (err %v)", records, err)
	}

	retried := make(chan struct{})
	c.Transaction(ctx, "X", func(ctx context.Context, release ReleaseFunc, err error) {
		if err != nil {
			t.Errorf("retry on healthy store: %v", err)
		}
		release()
	}, func(err error, args ...any) {
		close(retried)
	})
	waitFor(t, retried, "retry activation")
}

func TestPassthroughDoubleReleaseFiresHookOnce(t *testing.T) {
	c := New(adapter.NewInMemory(), nil)

	var calls atomic.Int32
	c.Transaction(context.Background(), "X", func(ctx context.Context, release ReleaseFunc, err error) {
		release()
		release()
	}, func(err error, args ...any) {
		calls.Add(1)
	})
	if calls.Load() != 1 {
		t.Fatalf("expected 1 hook call, got %d", calls.Load())
	}
}

func TestFailedAcquireDoubleReleaseFiresHookOnce(t *testing.T) {
	fl := &failLog{Log: commitlog.NewInMemoryLog()}
	fl.failAppend.Store(true)
	c := New(adapter.NewInMemory(), fl)
	t.Cleanup(c.Close)

	var calls atomic.Int32
	done := make(chan struct{})
	c.Transaction(context.Background(), "X", func(ctx context.Context, release ReleaseFunc, err error) {
		release()
		release()
		close(done)
	}, func(err error, args ...any) {
		calls.Add(1)
	})
	waitFor(t, done, "failed attempt")
	if calls.Load() != 1 {
		t.Fatalf("expected 1 hook call, got %d", calls.Load())
	}
}

func TestCrossProcessHandoffViaBus(t *testing.T) {
	// Two coordinators sharing one log model two processes sharing one
	// store. The bus carries the release notification that wakes the
	// remote waiter.
	log := commitlog.NewInMemoryLog()
	b := bus.NewInMemoryBus()
	c1 := New(adapter.NewInMemory(), log, WithBus(b))
	c2 := New(adapter.NewInMemory(), log, WithBus(b))
	t.Cleanup(c1.Close)
	t.Cleanup(c2.Close)
	ctx := context.Background()

	firstActive := make(chan struct{})
	releaseFirst := make(chan struct{})
	c1.Transaction(ctx, "shared", func(ctx context.Context, release ReleaseFunc, err error) {
		close(firstActive)
		go func() {
			<-releaseFirst
			release()
		}()
	}, nil)
	waitFor(t, firstActive, "holder activation")

	remoteDone := make(chan struct{})
	c2.Transaction(ctx, "shared", func(ctx context.Context, release ReleaseFunc, err error) {
		release()
	}, func(err error, args ...any) {
		close(remoteDone)
	})

	close(releaseFirst)
	waitFor(t, remoteDone, "remote waiter handoff")
}
