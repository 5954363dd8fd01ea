package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryCollection struct {
	order []string
	docs  map[string][]byte
}

// MemoryStore keeps documents in process. It backs local development and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*memoryCollection),
		now:         time.Now,
	}
}

// SetClock replaces the time source used for created/updated stamps.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) collection(name string) *memoryCollection {
	c, ok := m.collections[name]
	if !ok {
		c = &memoryCollection{docs: make(map[string][]byte)}
		m.collections[name] = c
	}
	return c
}

func (m *MemoryStore) List(ctx context.Context, collection string, constraints ...Constraint) ([]Document, error) {
	q, err := BuildQuery(constraints...)
	if err != nil {
		return nil, err
	}
	filters := make([]filter, len(q.filters))
	for i, f := range q.filters {
		v, err := normalize(f.value)
		if err != nil {
			return nil, fmt.Errorf("%w: value for %q: %v", ErrInvalidQuery, f.field, err)
		}
		filters[i] = filter{field: f.field, value: v}
	}

	m.mu.RLock()
	c, ok := m.collections[collection]
	if !ok {
		m.mu.RUnlock()
		return []Document{}, nil
	}
	results := make([]Document, 0, len(c.order))
	for _, id := range c.order {
		doc, err := decodeStored(id, c.docs[id])
		if err != nil {
			m.mu.RUnlock()
			return nil, err
		}
		if matches(doc, filters) {
			results = append(results, doc)
		}
	}
	m.mu.RUnlock()

	if q.order != nil {
		field, desc := q.order.field, q.order.direction == Descending
		sort.SliceStable(results, func(i, j int) bool {
			cmp := compareValues(results[i][field], results[j][field])
			if desc {
				return cmp > 0
			}
			return cmp < 0
		})
	}
	if q.limit > 0 && len(results) > q.limit {
		results = results[:q.limit]
	}
	return results, nil
}

func (m *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	raw, ok := c.docs[id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return decodeStored(id, raw)
}

func (m *MemoryStore) Insert(ctx context.Context, collection string, fields Document) (string, error) {
	doc, err := Encode(fields)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stampInsert(collection, doc, m.now())
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}
	id := uuid.New().String()
	c := m.collection(collection)
	c.docs[id] = raw
	c.order = append(c.order, id)
	return id, nil
}

func (m *MemoryStore) Update(ctx context.Context, collection, id string, fields Document) error {
	patch, err := Encode(fields)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	raw, ok := c.docs[id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("corrupt document %s/%s: %w", collection, id, err)
	}
	stampUpdate(collection, patch, m.now())
	for k, v := range patch {
		doc[k] = v
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	c.docs[id] = merged
	return nil
}

func (m *MemoryStore) Put(ctx context.Context, collection, id string, fields Document) error {
	doc, err := Encode(fields)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.collection(collection)
	if _, exists := c.docs[id]; !exists {
		c.order = append(c.order, id)
	}
	c.docs[id] = raw
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collection]
	if !ok {
		return nil
	}
	if _, ok := c.docs[id]; !ok {
		return nil
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func decodeStored(id string, raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("corrupt document %s: %w", id, err)
	}
	doc["id"] = id
	return doc, nil
}

func matches(doc Document, filters []filter) bool {
	for _, f := range filters {
		if !reflect.DeepEqual(doc[f.field], f.value) {
			return false
		}
	}
	return true
}

// compareValues orders missing values first, then numbers, strings and
// booleans within their own kind. Strings that parse as RFC 3339 timestamps
// compare chronologically.
func compareValues(a, b interface{}) int {
	switch av := a.(type) {
	case nil:
		if b == nil {
			return 0
		}
		return -1
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case string:
		if bv, ok := b.(string); ok {
			at, aerr := time.Parse(time.RFC3339Nano, av)
			bt, berr := time.Parse(time.RFC3339Nano, bv)
			if aerr == nil && berr == nil {
				return at.Compare(bt)
			}
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	}
	if b == nil {
		return 1
	}
	return kindRank(a) - kindRank(b)
}

func kindRank(v interface{}) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}
