//go:build integration

// Package containers starts the Postgres, Redpanda and Redis instances the
// integration suites run against. Each container is started once per test
// binary and shared; Ryuk removes them when the process exits.
package containers

import (
	"context"
	"sync"
	"testing"
	"time"
)

const startTimeout = 2 * time.Minute

// shared starts a value on first use and hands the same value, or the same
// start error, to every later caller.
type shared[T any] struct {
	once sync.Once
	v    T
	err  error
}

func (s *shared[T]) get(t *testing.T, name string, start func(ctx context.Context) (T, error)) T {
	t.Helper()
	s.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()
		s.v, s.err = start(ctx)
	})
	if s.err != nil {
		t.Fatalf("start %s container: %v", name, s.err)
	}
	return s.v
}

var (
	postgresOnce shared[*PostgresContainer]
	kafkaOnce    shared[*KafkaContainer]
	redisOnce    shared[*RedisContainer]
)

// Postgres returns the shared database with every migration applied.
func Postgres(t *testing.T) *PostgresContainer {
	t.Helper()
	return postgresOnce.get(t, "postgres", startPostgres)
}

// Kafka returns the shared Redpanda broker.
func Kafka(t *testing.T) *KafkaContainer {
	t.Helper()
	return kafkaOnce.get(t, "redpanda", startKafka)
}

// Redis returns the shared Redis server.
func Redis(t *testing.T) *RedisContainer {
	t.Helper()
	return redisOnce.get(t, "redis", startRedis)
}
