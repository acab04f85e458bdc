package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store with the same query semantics as the
// Postgres implementation. It backs unit tests and local development.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]interface{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]map[string]interface{}),
	}
}

// Collection returns a handle for the named collection, creating its
// backing map up front so later reads never mutate shared state.
func (s *MemoryStore) Collection(name string) Collection {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[name]; !ok {
		s.collections[name] = make(map[string]map[string]interface{})
	}
	return &memCollection{store: s, name: name}
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

type memCollection struct {
	store *MemoryStore
	name  string
}

// docs is a read-only lookup; the map always exists because Collection
// creates it. Callers hold the store lock.
func (c *memCollection) docs() map[string]map[string]interface{} {
	return c.store.collections[c.name]
}

// normalize round-trips data through JSON so stored values carry the same
// types (float64 numbers, []interface{} arrays) the Postgres store yields.
func normalize(data map[string]interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{})
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *memCollection) Get(ctx context.Context, id string) (*Document, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	data, ok := c.docs()[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &Document{ID: id, Data: data}, nil
}

func (c *memCollection) Set(ctx context.Context, id string, data map[string]interface{}) error {
	normalized, err := normalize(data)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", id, err)
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.docs()[id] = normalized
	return nil
}

func (c *memCollection) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	normalized, err := normalize(fields)
	if err != nil {
		return fmt.Errorf("failed to encode update for %s: %w", id, err)
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	data, ok := c.docs()[id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range normalized {
		data[k] = v
	}
	return nil
}

func (c *memCollection) Delete(ctx context.Context, id string) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	if _, ok := c.docs()[id]; !ok {
		return ErrNotFound
	}
	delete(c.docs(), id)
	return nil
}

func (c *memCollection) Query(ctx context.Context, q Query) ([]*Document, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	all := c.docs()

	var cursorKey interface{}
	if q.StartAfter != "" {
		cursorDoc, ok := all[q.StartAfter]
		if !ok {
			return nil, ErrCursorNotFound
		}
		if q.OrderField != "" {
			cursorKey = cursorDoc[q.OrderField]
		}
	}

	var matched []*Document
	for id, data := range all {
		ok, err := matches(data, q.Filters)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, &Document{ID: id, Data: data})
		}
	}

	desc := q.OrderDir == Descending
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if q.OrderField != "" {
			if cmp := compareValues(a.Data[q.OrderField], b.Data[q.OrderField]); cmp != 0 {
				if desc {
					return cmp > 0
				}
				return cmp < 0
			}
		}
		if desc {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})

	var out []*Document
	for _, doc := range matched {
		if q.StartAfter != "" && !afterCursor(doc, q.OrderField, cursorKey, q.StartAfter, desc) {
			continue
		}
		out = append(out, doc)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// afterCursor reports whether doc sorts strictly after the cursor position.
func afterCursor(doc *Document, orderField string, cursorKey interface{}, cursorID string, desc bool) bool {
	if orderField != "" {
		if cmp := compareValues(doc.Data[orderField], cursorKey); cmp != 0 {
			if desc {
				return cmp < 0
			}
			return cmp > 0
		}
	}
	if desc {
		return doc.ID < cursorID
	}
	return doc.ID > cursorID
}

func matches(data map[string]interface{}, filters []Filter) (bool, error) {
	for _, f := range filters {
		switch f.Op {
		case OpEqual:
			if compareValues(data[f.Field], f.Value) != 0 {
				return false, nil
			}
		case OpGreaterOrEqual:
			if compareValues(data[f.Field], f.Value) < 0 {
				return false, nil
			}
		case OpLessThan:
			if compareValues(data[f.Field], f.Value) >= 0 {
				return false, nil
			}
		case OpArrayContainsAny:
			wanted, ok := f.Value.([]string)
			if !ok {
				return false, fmt.Errorf("array-contains-any on %q requires []string", f.Field)
			}
			arr, _ := data[f.Field].([]interface{})
			if !intersects(arr, wanted) {
				return false, nil
			}
		default:
			return false, fmt.Errorf("unsupported operator %q", f.Op)
		}
	}
	return true, nil
}

func intersects(arr []interface{}, wanted []string) bool {
	for _, item := range arr {
		s, ok := item.(string)
		if !ok {
			continue
		}
		for _, w := range wanted {
			if s == w {
				return true
			}
		}
	}
	return false
}

// compareValues orders two JSON-decoded scalar values. Numbers compare
// numerically, everything else falls back to string comparison, which
// mirrors how the Postgres implementation treats untyped text fields.
func compareValues(a, b interface{}) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}

	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
