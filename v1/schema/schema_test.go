package schema

import "testing"

func TestValidate(t *testing.T) {
	def := Definition{
		"id":   {Type: "integer", PrimaryKey: true, AutoIncrement: true},
		"name": {Type: "string"},
	}
	if err := def.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	bad := Definition{"name": {}}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for missing type")
	}
	twoPK := Definition{
		"a": {Type: "integer", PrimaryKey: true},
		"b": {Type: "integer", PrimaryKey: true},
	}
	if err := twoPK.Validate(); err == nil {
		t.Fatal("expected error for two primary keys")
	}
}

func TestCompare(t *testing.T) {
	old := Definition{
		"id":    {Type: "integer", PrimaryKey: true},
		"email": {Type: "string"},
		"age":   {Type: "integer"},
	}
	new := Definition{
		"id":    {Type: "integer", PrimaryKey: true},
		"email": {Type: "string", Unique: true},
		"bio":   {Type: "string"},
	}
	diff := Compare(old, new)
	if diff.Empty() {
		t.Fatal("expected non-empty diff")
	}
	if _, ok := diff.Added["bio"]; !ok {
		t.Fatalf("expected bio added, got %v", diff.Added)
	}
	if _, ok := diff.Added["email"]; !ok {
		t.Fatalf("expected changed email re-added, got %v", diff.Added)
	}
	want := []string{"age", "email"}
	if len(diff.Removed) != len(want) {
		t.Fatalf("removed: expected %v, got %v", want, diff.Removed)
	}
	for i, name := range want {
		if diff.Removed[i] != name {
			t.Fatalf("removed: expected %v, got %v", want, diff.Removed)
		}
	}
}

func TestCompareIdentical(t *testing.T) {
	def := Definition{"id": {Type: "integer", PrimaryKey: true}}
	if diff := Compare(def, def.Clone()); !diff.Empty() {
		t.Fatalf("expected empty diff, got %+v", diff)
	}
}

func TestPrimaryKey(t *testing.T) {
	def := Definition{"uuid": {Type: "string", PrimaryKey: true}}
	if pk := def.PrimaryKey(); pk != "uuid" {
		t.Fatalf("expected uuid, got %s", pk)
	}
	if pk := (Definition{}).PrimaryKey(); pk != "id" {
		t.Fatalf("expected id fallback, got %s", pk)
	}
}
