package validator_test

import (
	"context"
	"testing"
	"time"

	"github.com/mirkobrombin/go-strata/v1/adapter"
	"github.com/mirkobrombin/go-strata/v1/schema"
	"github.com/mirkobrombin/go-strata/v1/validator"
	"github.com/mirkobrombin/go-strata/v1/wrapper"
)

var usersDef = schema.Definition{
	"id":    {Type: "integer", PrimaryKey: true, AutoIncrement: true},
	"email": {Type: "string"},
}

func TestScanDetectsDrift(t *testing.T) {
	ctx := context.Background()
	a := adapter.NewInMemory()
	w, err := wrapper.New(ctx, a)
	if err != nil {
		t.Fatalf("new wrapper: %v", err)
	}
	t.Cleanup(w.Close)
	if err := w.Define(ctx, "users", usersDef); err != nil {
		t.Fatalf("define: %v", err)
	}

	v := validator.New(w, a, validator.ModeNoop, time.Minute)
	v.Scan(ctx)
	if v.Mismatches() != 0 {
		t.Fatalf("expected no drift, got %d", v.Mismatches())
	}

	// drift introduced behind the wrapper's back
	drifted := usersDef.Clone()
	drifted["extra"] = schema.Attribute{Type: "string"}
	if err := a.Define(ctx, "users", drifted); err != nil {
		t.Fatalf("drift define: %v", err)
	}
	v.Scan(ctx)
	if v.Mismatches() != 1 {
		t.Fatalf("expected 1 drift, got %d", v.Mismatches())
	}
}

func TestScanAutoHeals(t *testing.T) {
	ctx := context.Background()
	a := adapter.NewInMemory()
	w, err := wrapper.New(ctx, a)
	if err != nil {
		t.Fatalf("new wrapper: %v", err)
	}
	t.Cleanup(w.Close)
	if err := w.Define(ctx, "users", usersDef); err != nil {
		t.Fatalf("define: %v", err)
	}
	if err := a.Drop(ctx, "users"); err != nil {
		t.Fatalf("drop: %v", err)
	}

	v := validator.New(w, a, validator.ModeAutoHeal, time.Minute)
	v.Scan(ctx)
	def, ok, err := a.Describe(ctx, "users")
	if err != nil || !ok {
		t.Fatalf("heal did not restore collection: ok=%v err=%v", ok, err)
	}
	if !schema.Compare(def, usersDef).Empty() {
		t.Fatalf("healed layout differs: %+v", def)
	}
}
