package presets_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/mirkobrombin/go-strata/v1/presets"
	"github.com/mirkobrombin/go-strata/v1/schema"
	"github.com/mirkobrombin/go-strata/v1/txn"
)

func TestNewInMemoryPreset(t *testing.T) {
	ctx := context.Background()
	w, err := presets.NewInMemory(ctx)
	if err != nil {
		t.Fatalf("preset: %v", err)
	}
	t.Cleanup(w.Close)
	if w.Strategy() != txn.StrategyCommitLog {
		t.Fatalf("expected commit-log strategy, got %v", w.Strategy())
	}
}

func TestNewRedisPreset(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx := context.Background()
	w, err := presets.NewRedis(ctx, presets.RedisOptions{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("preset: %v", err)
	}
	t.Cleanup(w.Close)

	def := schema.Definition{
		"id":   {Type: "integer", PrimaryKey: true, AutoIncrement: true},
		"name": {Type: "string"},
	}
	if err := w.Define(ctx, "things", def); err != nil {
		t.Fatalf("define: %v", err)
	}
	rec, err := w.Create(ctx, "things", map[string]any{"name": "first"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	found, err := w.Find(ctx, "things", rec["id"])
	if err != nil || found == nil || found["name"] != "first" {
		t.Fatalf("find: %v rec %v", err, found)
	}
}
