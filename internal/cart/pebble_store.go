package cart

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/jogardn/craft-storefront/pkg/models"
)

const cartKeyPrefix = "cart/"

// PebbleStore persists ledgers as JSON values in an embedded Pebble database.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

func cartKey(cartID string) []byte { return []byte(cartKeyPrefix + cartID) }

func (p *PebbleStore) Load(cartID string) ([]models.CartLine, error) {
	v, closer, err := p.db.Get(cartKey(cartID))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pebble get %s: %w", cartID, err)
	}
	defer closer.Close()

	var lines []models.CartLine
	if err := json.Unmarshal(v, &lines); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCart, err)
	}
	return lines, nil
}

func (p *PebbleStore) Save(cartID string, lines []models.CartLine) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("encode cart %s: %w", cartID, err)
	}
	if err := p.db.Set(cartKey(cartID), data, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set %s: %w", cartID, err)
	}
	return nil
}

func (p *PebbleStore) Delete(cartID string) error {
	if err := p.db.Delete(cartKey(cartID), pebble.Sync); err != nil {
		return fmt.Errorf("pebble delete %s: %w", cartID, err)
	}
	return nil
}

// MemoryStore is a Persister for tests and for running without a data directory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Load(cartID string) ([]models.CartLine, error) {
	m.mu.RLock()
	raw, ok := m.data[cartID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var lines []models.CartLine
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCart, err)
	}
	return lines, nil
}

func (m *MemoryStore) Save(cartID string, lines []models.CartLine) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[cartID] = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(cartID string) error {
	m.mu.Lock()
	delete(m.data, cartID)
	m.mu.Unlock()
	return nil
}

// PutRaw stores bytes as-is, bypassing encoding.
func (m *MemoryStore) PutRaw(cartID string, raw []byte) {
	m.mu.Lock()
	m.data[cartID] = raw
	m.mu.Unlock()
}
