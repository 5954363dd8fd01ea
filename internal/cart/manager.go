package cart

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrInvalidCartID = errors.New("invalid cart id")

// Manager owns the live ledgers, one per cart id, restoring each from
// persistence the first time it is opened. Only carts holding items stay
// live; a ledger registers itself on its first non-empty write and drops out
// when it empties.
type Manager struct {
	persister Persister
	logger    *logrus.Logger

	mu      sync.Mutex
	ledgers map[string]*Ledger
}

func NewManager(persister Persister, logger *logrus.Logger) *Manager {
	return &Manager{
		persister: persister,
		logger:    logger,
		ledgers:   make(map[string]*Ledger),
	}
}

// New starts an empty cart under a fresh id.
func (m *Manager) New() *Ledger {
	id := uuid.New().String()
	ledger := &Ledger{id: id, persister: m.persister, logger: m.logger, track: m.track}
	m.logger.WithField("cart_id", id).Debug("Cart created")
	return ledger
}

// Open returns the ledger for id. Unknown ids get an empty ledger.
func (m *Manager) Open(id string) (*Ledger, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCartID, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if ledger, ok := m.ledgers[id]; ok {
		return ledger, nil
	}
	ledger := Restore(id, m.persister, m.logger)
	ledger.track = m.track
	// Not yet shared, so lines can be read without the ledger lock.
	if len(ledger.lines) > 0 {
		m.ledgers[id] = ledger
	}
	return ledger, nil
}

// Live reports how many ledgers are held in memory.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ledgers)
}

// track is called by a ledger after each write, with the ledger's lock held.
func (m *Manager) track(l *Ledger, empty bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.ledgers[l.id]
	switch {
	case empty && current == l:
		delete(m.ledgers, l.id)
	case !empty && !ok:
		m.ledgers[l.id] = l
	}
}
