package adapter_test

import (
	"context"
	"testing"

	"github.com/mirkobrombin/go-strata/v1/adapter"
	"github.com/mirkobrombin/go-strata/v1/criteria"
	"github.com/mirkobrombin/go-strata/v1/schema"
)

var usersDef = schema.Definition{
	"id":    {Type: "integer", PrimaryKey: true, AutoIncrement: true},
	"email": {Type: "string", Unique: true},
	"age":   {Type: "integer"},
}

func TestInMemoryDefineDescribeDrop(t *testing.T) {
	a := adapter.NewInMemory()
	ctx := context.Background()

	if _, ok, err := a.Describe(ctx, "users"); err != nil || ok {
		t.Fatalf("expected absent collection, ok=%v err=%v", ok, err)
	}
	if err := a.Define(ctx, "users", usersDef); err != nil {
		t.Fatalf("define: %v", err)
	}
	def, ok, err := a.Describe(ctx, "users")
	if err != nil || !ok {
		t.Fatalf("describe: ok=%v err=%v", ok, err)
	}
	if def["email"].Type != "string" {
		t.Fatalf("describe returned wrong layout: %+v", def)
	}
	if err := a.Drop(ctx, "users"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if _, ok, _ := a.Describe(ctx, "users"); ok {
		t.Fatal("collection survived drop")
	}
}

func TestInMemoryCRUD(t *testing.T) {
	a := adapter.NewInMemory()
	ctx := context.Background()
	if err := a.Define(ctx, "users", usersDef); err != nil {
		t.Fatalf("define: %v", err)
	}

	first, err := a.Create(ctx, "users", map[string]any{"email": "a@x.io", "age": 30})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := a.Create(ctx, "users", map[string]any{"email": "b@x.io", "age": 40})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first["id"] == second["id"] {
		t.Fatalf("ids not unique: %v", first["id"])
	}

	found, err := a.Find(ctx, "users", criteria.Criteria{Where: map[string]any{"email": "a@x.io"}})
	if err != nil || len(found) != 1 {
		t.Fatalf("find: %v len %d", err, len(found))
	}
	if found[0]["age"] != 30 {
		t.Fatalf("expected age 30, got %v", found[0]["age"])
	}

	n, err := a.Count(ctx, "users", criteria.All())
	if err != nil || n != 2 {
		t.Fatalf("count: %v n %d", err, n)
	}

	updated, err := a.Update(ctx, "users", criteria.Criteria{Where: map[string]any{"email": "a@x.io"}}, map[string]any{"age": 31, "id": 999})
	if err != nil || len(updated) != 1 {
		t.Fatalf("update: %v len %d", err, len(updated))
	}
	if updated[0]["age"] != 31 {
		t.Fatalf("update did not apply: %v", updated[0])
	}
	if updated[0]["id"] == 999 {
		t.Fatal("update overwrote the immutable ordinal")
	}

	if err := a.Destroy(ctx, "users", criteria.Criteria{Where: map[string]any{"email": "b@x.io"}}); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if n, _ := a.Count(ctx, "users", criteria.All()); n != 1 {
		t.Fatalf("expected 1 record after destroy, got %d", n)
	}
}

func TestInMemoryCreateUnknownCollection(t *testing.T) {
	a := adapter.NewInMemory()
	if _, err := a.Create(context.Background(), "ghost", map[string]any{"x": 1}); err == nil {
		t.Fatal("expected error for unknown collection")
	}
}

func TestInMemoryTxMutualExclusion(t *testing.T) {
	a := adapter.NewInMemoryTx()
	ctx := context.Background()

	entered := make(chan struct{})
	proceed := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = a.Transaction(ctx, "X", func(ctx context.Context) error {
			close(entered)
			<-proceed
			return nil
		})
	}()
	<-entered

	second := make(chan struct{})
	go func() {
		_ = a.Transaction(ctx, "X", func(ctx context.Context) error {
			close(second)
			return nil
		})
		close(done)
	}()

	select {
	case <-second:
		t.Fatal("second transaction entered while first held the name")
	default:
	}
	close(proceed)
	<-done
}
