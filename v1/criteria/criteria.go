// Package criteria normalizes query shorthand into the canonical
// criteria form consumed by adapters.
package criteria

import (
	"fmt"
	"sort"
	"strings"
)

// Direction orders a sort key.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Sort pairs an attribute with a direction.
type Sort struct {
	Key string
	Dir Direction
}

// Criteria is the canonical query form. A zero Criteria matches every
// record with no limit.
type Criteria struct {
	Where map[string]any
	Limit int
	Skip  int
	Sort  []Sort
}

// All returns a criteria matching every record.
func All() Criteria {
	return Criteria{}
}

// ByID returns a primary-key equality criteria.
func ByID(pk string, id any) Criteria {
	return Criteria{Where: map[string]any{pk: id}}
}

// Normalize accepts the shorthand forms callers use and returns the
// canonical criteria:
//
//   - nil matches everything
//   - Criteria passes through unchanged
//   - map[string]any becomes the Where clause
//   - any scalar becomes primary-key equality against pk
func Normalize(raw any, pk string) (Criteria, error) {
	switch v := raw.(type) {
	case nil:
		return All(), nil
	case Criteria:
		return v, nil
	case map[string]any:
		return Criteria{Where: v}, nil
	case string, int, int32, int64, uint, uint32, uint64, float64:
		return ByID(pk, v), nil
	default:
		return Criteria{}, fmt.Errorf("criteria: unsupported shorthand %T", raw)
	}
}

// Matches reports whether a record satisfies the Where clause. Limit,
// Skip and Sort are applied by Apply.
func (c Criteria) Matches(record map[string]any) bool {
	for k, want := range c.Where {
		got, ok := record[k]
		if !ok {
			return false
		}
		if !looseEqual(got, want) {
			return false
		}
	}
	return true
}

// Apply filters, sorts and windows a result set in memory. Adapters
// without native query support delegate to it.
func (c Criteria) Apply(records []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		if c.Matches(r) {
			out = append(out, r)
		}
	}
	for i := len(c.Sort) - 1; i >= 0; i-- {
		s := c.Sort[i]
		sort.SliceStable(out, func(a, b int) bool {
			less := looseLess(out[a][s.Key], out[b][s.Key])
			if s.Dir == Desc {
				return !less && !looseEqual(out[a][s.Key], out[b][s.Key])
			}
			return less
		})
	}
	if c.Skip > 0 {
		if c.Skip >= len(out) {
			return nil
		}
		out = out[c.Skip:]
	}
	if c.Limit > 0 && c.Limit < len(out) {
		out = out[:c.Limit]
	}
	return out
}

// looseEqual compares values across the numeric types that records pick
// up from JSON round-trips and store drivers.
func looseEqual(a, b any) bool {
	if a == b {
		return true
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.EqualFold(as, bs)
	}
	return false
}

func looseLess(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af < bf
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as < bs
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
