package main

import (
	"context"
	"flag"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mirkobrombin/go-strata/v1/presets"
	"github.com/mirkobrombin/go-strata/v1/txn"
)

var (
	concurrency = flag.Int("c", 50, "Number of concurrent clients")
	requests    = flag.Int("n", 10000, "Total number of transactions")
	names       = flag.Int("l", 16, "Number of distinct lock names")
)

func main() {
	flag.Parse()

	log.Printf("Starting benchmark: %d transactions, %d concurrency, %d lock names", *requests, *concurrency, *names)

	ctx := context.Background()
	w, err := presets.NewInMemory(ctx)
	if err != nil {
		log.Fatalf("Setup failed: %v", err)
	}
	defer w.Close()

	lockNames := make([]string, *names)
	for i := range lockNames {
		lockNames[i] = "bench_lock_" + string(rune('a'+i%26))
	}

	var wg sync.WaitGroup
	var ops int64
	var errorsCount int64

	start := time.Now()

	reqsPerWorker := *requests / *concurrency
	for i := 0; i < *concurrency; i++ {
		worker := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			var inner sync.WaitGroup
			for j := 0; j < reqsPerWorker; j++ {
				name := lockNames[(worker+j)%len(lockNames)]
				inner.Add(1)
				w.Transaction(ctx, name, func(ctx context.Context, release txn.ReleaseFunc, err error) {
					if err != nil {
						atomic.AddInt64(&errorsCount, 1)
					}
					atomic.AddInt64(&ops, 1)
					release()
				}, func(err error, args ...any) {
					inner.Done()
				})
			}
			inner.Wait()
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	throughput := float64(ops) / elapsed.Seconds()
	avgLatency := elapsed.Seconds() / float64(ops) * 1e9 // ns

	log.Printf("Finished in %v", elapsed)
	log.Printf("Throughput: %.2f txn/s", throughput)
	log.Printf("Avg Latency: %.2f ns", avgLatency)
	if errorsCount > 0 {
		log.Printf("Errors: %d", errorsCount)
	}
}
