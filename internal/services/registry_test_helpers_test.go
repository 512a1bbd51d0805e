package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/sqldesk/internal/database/testutil"
	"github.com/charlesng35/sqldesk/internal/kvstore"
)

// memoryStore is a map-backed kvstore.Store whose writes can be made to fail.
type memoryStore struct {
	mu      sync.Mutex
	values  map[string][]byte
	failSet error
	failGet error
	sets    int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: make(map[string][]byte)}
}

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, false, m.failGet
	}
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet != nil {
		return m.failSet
	}
	m.sets++
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *memoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet != nil {
		return m.failSet
	}
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func (m *memoryStore) IncrementWithTTL(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("not supported")
}

func (m *memoryStore) Ping(context.Context) error { return m.failGet }

func (m *memoryStore) raw(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key]
}

var _ kvstore.Store = (*memoryStore)(nil)

type registryFixture struct {
	registry *ConnectionRegistry
	store    *memoryStore
	now      time.Time
	events   []ChangeEvent
}

func newRegistryFixture(t *testing.T, opts ...RegistryOption) *registryFixture {
	t.Helper()

	fx := &registryFixture{
		store: newMemoryStore(),
		now:   time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	seq := 0
	base := []RegistryOption{
		WithClock(func() time.Time { return fx.now }),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("conn-%d", seq)
		}),
		WithChangeListener(func(evt ChangeEvent) { fx.events = append(fx.events, evt) }),
	}

	registry, err := NewConnectionRegistry(fx.store, append(base, opts...)...)
	require.NoError(t, err)
	fx.registry = registry
	return fx
}

func newDatabaseBackedRegistry(t *testing.T) (*ConnectionRegistry, kvstore.Store) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := kvstore.NewDatabaseStore(db)
	registry, err := NewConnectionRegistry(store)
	require.NoError(t, err)
	return registry, store
}
