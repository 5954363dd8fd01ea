package circuitbreaker

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Manager hands out one breaker per dependency name.
type Manager struct {
	breakers map[string]*CircuitBreaker
	mutex    sync.RWMutex
	logger   *logrus.Logger
}

func NewManager(logger *logrus.Logger) *Manager {
	return &Manager{
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
	}
}

func (m *Manager) GetOrCreate(name string, config Config) *CircuitBreaker {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if breaker, exists := m.breakers[name]; exists {
		return breaker
	}

	config.Name = name
	breaker := New(config, m.logger)
	m.breakers[name] = breaker

	m.logger.WithFields(logrus.Fields{
		"circuit_breaker": name,
		"max_failures":    breaker.maxFailures,
		"timeout":         breaker.timeout.String(),
		"max_requests":    breaker.maxRequests,
	}).Info("Circuit breaker created")

	return breaker
}

func (m *Manager) Get(name string) *CircuitBreaker {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.breakers[name]
}

// Snapshots returns every breaker's counters ordered by name.
func (m *Manager) Snapshots() []Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snapshots := make([]Snapshot, 0, len(m.breakers))
	for _, breaker := range m.breakers {
		snapshots = append(snapshots, breaker.Snapshot())
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Name < snapshots[j].Name })
	return snapshots
}

func (m *Manager) Reset(name string) bool {
	m.mutex.RLock()
	breaker, exists := m.breakers[name]
	m.mutex.RUnlock()

	if !exists {
		return false
	}
	breaker.Reset()
	m.logger.WithField("circuit_breaker", name).Info("Circuit breaker reset")
	return true
}
