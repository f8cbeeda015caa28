// Package validator periodically compares the layouts a wrapper has
// defined against what the adapter actually describes, catching drift
// introduced by other processes or manual intervention.
package validator

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mirkobrombin/go-strata/v1/adapter"
	"github.com/mirkobrombin/go-strata/v1/metrics"
	"github.com/mirkobrombin/go-strata/v1/schema"
)

// Mode defines validator behaviour.
type Mode int

const (
	// ModeNoop only counts mismatches.
	ModeNoop Mode = iota
	// ModeAlert additionally logs each mismatch.
	ModeAlert
	// ModeAutoHeal re-defines drifted collections with the expected
	// layout.
	ModeAutoHeal
)

// Source exposes the layouts the validator treats as truth.
type Source interface {
	Definitions() map[string]schema.Definition
}

// Validator compares expected layouts against the adapter.
type Validator struct {
	source     Source
	adapter    adapter.Adapter
	mode       Mode
	interval   time.Duration
	mismatches uint64
}

// New creates a new Validator.
func New(source Source, a adapter.Adapter, mode Mode, interval time.Duration) *Validator {
	return &Validator{source: source, adapter: a, mode: mode, interval: interval}
}

// Run starts the validation loop until the context is cancelled.
func (v *Validator) Run(ctx context.Context) {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.Scan(ctx)
		}
	}
}

// Scan performs one comparison pass.
func (v *Validator) Scan(ctx context.Context) {
	for name, want := range v.source.Definitions() {
		got, ok, err := v.adapter.Describe(ctx, name)
		if err != nil {
			continue
		}
		if ok && schema.Compare(got, want).Empty() {
			continue
		}
		atomic.AddUint64(&v.mismatches, 1)
		metrics.SchemaDriftCounter.Inc()
		switch v.mode {
		case ModeAlert:
			slog.Warn("strata: schema drift detected", "collection", name, "present", ok)
		case ModeAutoHeal:
			slog.Warn("strata: schema drift detected, healing", "collection", name, "present", ok)
			if err := v.adapter.Define(ctx, name, want); err != nil {
				slog.Error("strata: schema heal failed", "collection", name, "error", err)
			}
		}
	}
}

// Mismatches reports the number of drifts observed so far.
func (v *Validator) Mismatches() uint64 {
	return atomic.LoadUint64(&v.mismatches)
}
