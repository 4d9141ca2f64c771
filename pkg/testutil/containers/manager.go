//go:build integration

package containers

import (
	"sync"
	"testing"
)

// Manager shares one container per backend across suites in a test binary.
// Ryuk reaps the containers when the process exits.
type Manager struct {
	mu       sync.Mutex
	postgres map[string]*PostgresContainer
	redis    *RedisContainer
	redpanda *RedpandaContainer
}

var (
	manager     *Manager
	managerOnce sync.Once
)

// GetManager returns the process-wide container manager.
func GetManager() *Manager {
	managerOnce.Do(func() {
		manager = &Manager{postgres: make(map[string]*PostgresContainer)}
	})
	return manager
}

// GetPostgres returns the shared Postgres container opened with the pgx driver.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	return m.GetPostgresWithDriver(t, "pgx")
}

// GetPostgresWithDriver returns a shared Postgres container opened with driver.
func (m *Manager) GetPostgresWithDriver(t *testing.T, driver string) *PostgresContainer {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if pc, ok := m.postgres[driver]; ok {
		return pc
	}
	pc := NewPostgresContainer(t, driver)
	m.postgres[driver] = pc
	return pc
}

func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redis == nil {
		m.redis = NewRedisContainer(t)
	}
	return m.redis
}

func (m *Manager) GetRedpanda(t *testing.T) *RedpandaContainer {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redpanda == nil {
		m.redpanda = NewRedpandaContainer(t)
	}
	return m.redpanda
}
