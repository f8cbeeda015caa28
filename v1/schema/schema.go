// Package schema describes collection layouts and computes the
// attribute-level difference used by the generic alter fallback.
package schema

import (
	"fmt"
	"sort"
)

// Attribute describes a single field of a collection.
type Attribute struct {
	Type          string `json:"type"`
	PrimaryKey    bool   `json:"primaryKey,omitempty"`
	AutoIncrement bool   `json:"autoIncrement,omitempty"`
	Unique        bool   `json:"unique,omitempty"`
}

// Definition maps attribute names to their descriptions.
type Definition map[string]Attribute

// Clone returns a deep copy of the definition.
func (d Definition) Clone() Definition {
	out := make(Definition, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Validate checks basic well-formedness: at most one primary key and a
// non-empty type on every attribute.
func (d Definition) Validate() error {
	pk := 0
	for name, attr := range d {
		if attr.Type == "" {
			return fmt.Errorf("schema: attribute %q has no type", name)
		}
		if attr.PrimaryKey {
			pk++
		}
	}
	if pk > 1 {
		return fmt.Errorf("schema: definition has %d primary keys", pk)
	}
	return nil
}

// Diff captures the attribute changes between two definitions. Type
// changes are reported as a remove plus an add.
type Diff struct {
	Added   map[string]Attribute
	Removed []string
}

// Empty reports whether the diff carries no changes.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Compare computes the diff that turns old into new.
func Compare(old, new Definition) Diff {
	diff := Diff{Added: make(map[string]Attribute)}
	for name, attr := range new {
		prev, ok := old[name]
		if !ok {
			diff.Added[name] = attr
			continue
		}
		if prev != attr {
			diff.Removed = append(diff.Removed, name)
			diff.Added[name] = attr
		}
	}
	for name := range old {
		if _, ok := new[name]; !ok {
			diff.Removed = append(diff.Removed, name)
		}
	}
	sort.Strings(diff.Removed)
	return diff
}

// PrimaryKey returns the primary key attribute name, or "id" when the
// definition does not declare one.
func (d Definition) PrimaryKey() string {
	for name, attr := range d {
		if attr.PrimaryKey {
			return name
		}
	}
	return "id"
}
