package auction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLifecycleStore struct {
	mu        sync.Mutex
	activated int
	ended     int
	err       error
}

func (m *mockLifecycleStore) ActivateDueAuctions(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.activated++
	return 1, nil
}

func (m *mockLifecycleStore) EndDueAuctions(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.ended++
	return 1, nil
}

func (m *mockLifecycleStore) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activated, m.ended
}

func TestNewLifecycle(t *testing.T) {
	t.Run("nil store", func(t *testing.T) {
		lifecycle, err := NewLifecycle(nil)
		assert.Error(t, err)
		assert.Nil(t, lifecycle)
	})
}

func TestLifecycle_RunsBothPhases(t *testing.T) {
	store := &mockLifecycleStore{}
	lifecycle, err := NewLifecycle(store,
		WithLifecycleLogger(discardLogger()),
		WithLifecycleInterval(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, lifecycle.Start())
	defer lifecycle.Stop()

	require.Eventually(t, func() bool {
		activated, ended := store.counts()
		return activated >= 2 && ended >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestLifecycle_StoreErrorsDoNotStopScheduler(t *testing.T) {
	store := &mockLifecycleStore{err: errors.New("db down")}
	lifecycle, err := NewLifecycle(store,
		WithLifecycleLogger(discardLogger()),
		WithLifecycleInterval(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, lifecycle.Start())
	time.Sleep(50 * time.Millisecond)

	store.mu.Lock()
	store.err = nil
	store.mu.Unlock()

	require.Eventually(t, func() bool {
		activated, _ := store.counts()
		return activated >= 1
	}, time.Second, 5*time.Millisecond)
	assert.NoError(t, lifecycle.Stop())
}
