package consolidator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKVStore is an in-memory KVStore for tests. failExists / failMark
// simulate a cache outage.
type fakeKVStore struct {
	mu         sync.Mutex
	keys       map[string]struct{}
	failExists bool
	failMark   bool
	existsN    int
	markN      int
}

func newFakeKVStore() *fakeKVStore {
	return &fakeKVStore{keys: make(map[string]struct{})}
}

func (f *fakeKVStore) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existsN++
	if f.failExists {
		return false, errors.New("cache down")
	}
	_, ok := f.keys[key]
	return ok, nil
}

func (f *fakeKVStore) MarkCommitted(ctx context.Context, keys []string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markN++
	if f.failMark {
		return errors.New("cache down")
	}
	for _, k := range keys {
		f.keys[k] = struct{}{}
	}
	return nil
}

func TestFakeKVStore_MarkThenExists(t *testing.T) {
	kv := newFakeKVStore()
	ctx := context.Background()

	hit, err := kv.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, kv.MarkCommitted(ctx, []string{"a", "b"}, time.Hour))

	hit, err = kv.Exists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, hit)
	hit, err = kv.Exists(ctx, "b")
	require.NoError(t, err)
	assert.True(t, hit)
}
