//go:build integration

// Package containers starts the Postgres, Redis and Redpanda fixtures shared
// by the integration suites. Each fixture starts at most once per test binary.
package containers

import (
	"sync"
	"testing"
)

type Manager struct {
	mu       sync.Mutex
	postgres *PostgresContainer
	redis    *RedisContainer
	kafka    *KafkaContainer
}

var manager = &Manager{}

func GetManager() *Manager {
	return manager
}

// GetPostgres returns the migrated Postgres fixture, starting it on first use.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	return startOnce(t, &m.mu, &m.postgres, NewPostgresContainer)
}

// GetRedis returns the Redis fixture, starting it on first use.
func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	return startOnce(t, &m.mu, &m.redis, NewRedisContainer)
}

// GetKafka returns the Redpanda fixture, starting it on first use.
func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	t.Helper()
	return startOnce(t, &m.mu, &m.kafka, NewKafkaContainer)
}

func startOnce[T any](t *testing.T, mu *sync.Mutex, slot **T, start func(*testing.T) *T) *T {
	t.Helper()
	if testing.Short() {
		t.Skip("container fixtures are skipped in -short mode")
	}

	mu.Lock()
	defer mu.Unlock()
	if *slot == nil {
		*slot = start(t)
	}
	return *slot
}
