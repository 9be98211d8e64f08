package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDistributed は分散ロックの呼び出しを記録するテスト用実装
type fakeDistributed struct {
	mu         sync.Mutex
	held       map[string]string // key -> owner
	acquireErr error
	releaseErr error
	calls      []string
}

func newFakeDistributed() *fakeDistributed {
	return &fakeDistributed{held: make(map[string]string)}
}

func (f *fakeDistributed) Acquire(_ context.Context, key string, _ Kind, owner string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "acquire:"+key)
	if f.acquireErr != nil {
		return f.acquireErr
	}
	if _, ok := f.held[key]; ok {
		return ErrResourceBusy
	}
	f.held[key] = owner
	return nil
}

func (f *fakeDistributed) Release(_ context.Context, key string, _ Kind, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "release:"+key)
	if f.releaseErr != nil {
		return f.releaseErr
	}
	if f.held[key] == owner {
		delete(f.held, key)
	}
	return nil
}

func (f *fakeDistributed) holds(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.held[key]
	return ok
}

func TestManager_Acquire(t *testing.T) {
	ctx := context.Background()

	t.Run("ローカルと分散の両方を取得する", func(t *testing.T) {
		dist := newFakeDistributed()
		m := NewManager(dist)

		h, err := m.Acquire(ctx, "program:1", KindExclusive, 0)
		require.NoError(t, err)
		assert.Equal(t, "program:1", h.Key())
		assert.Equal(t, KindExclusive, h.Kind())
		assert.True(t, dist.holds("program:1"))
		assert.Equal(t, 1, m.local.Len())

		require.NoError(t, h.Release(ctx))
		assert.False(t, dist.holds("program:1"))
		assert.Equal(t, 0, m.local.Len())
	})

	t.Run("分散取得失敗時はローカルを即座に解放する", func(t *testing.T) {
		dist := newFakeDistributed()
		dist.acquireErr = ErrResourceBusy
		m := NewManager(dist)

		_, err := m.Acquire(ctx, "program:1", KindExclusive, 0)
		assert.ErrorIs(t, err, ErrResourceBusy)
		assert.Equal(t, 0, m.local.Len())
	})

	t.Run("分散側の想定外エラーはラップして返す", func(t *testing.T) {
		dist := newFakeDistributed()
		dist.acquireErr = errors.New("接続断")
		m := NewManager(dist)

		_, err := m.Acquire(ctx, "program:1", KindExclusive, 0)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrResourceBusy)
		assert.Equal(t, 0, m.local.Len())
	})

	t.Run("ローカル競合は分散側に到達しない", func(t *testing.T) {
		dist := newFakeDistributed()
		m := NewManager(dist)

		h, err := m.Acquire(ctx, "program:1", KindExclusive, 0)
		require.NoError(t, err)
		defer h.Release(ctx)

		_, err = m.Acquire(ctx, "program:1", KindExclusive, 0)
		assert.ErrorIs(t, err, ErrResourceBusy)
		// 2回目の取得で分散Acquireが呼ばれていないこと
		assert.Len(t, dist.calls, 1)
	})
}

func TestHandle_Release(t *testing.T) {
	ctx := context.Background()

	t.Run("二重解放は何もしない", func(t *testing.T) {
		dist := newFakeDistributed()
		m := NewManager(dist)

		h, err := m.Acquire(ctx, "order:1", KindFair, 0)
		require.NoError(t, err)

		require.NoError(t, h.Release(ctx))
		require.NoError(t, h.Release(ctx))
		assert.Len(t, dist.calls, 2) // acquire + release が各1回
	})

	t.Run("分散解放が失敗してもローカルは解放される", func(t *testing.T) {
		dist := newFakeDistributed()
		dist.releaseErr = errors.New("接続断")
		m := NewManager(dist)

		h, err := m.Acquire(ctx, "order:1", KindExclusive, 0)
		require.NoError(t, err)

		err = h.Release(ctx)
		require.Error(t, err)
		assert.Equal(t, 0, m.local.Len())
	})
}

func TestManager_WithLock(t *testing.T) {
	ctx := context.Background()

	t.Run("処理後に解放される", func(t *testing.T) {
		dist := newFakeDistributed()
		m := NewManager(dist)

		called := false
		err := m.WithLock(ctx, "program:1", KindWrite, 0, func() error {
			called = true
			assert.True(t, dist.holds("program:1"))
			return nil
		})
		require.NoError(t, err)
		assert.True(t, called)
		assert.False(t, dist.holds("program:1"))
	})

	t.Run("処理のエラーでも解放される", func(t *testing.T) {
		dist := newFakeDistributed()
		m := NewManager(dist)

		wantErr := errors.New("業務エラー")
		err := m.WithLock(ctx, "program:1", KindWrite, 0, func() error {
			return wantErr
		})
		assert.ErrorIs(t, err, wantErr)
		assert.False(t, dist.holds("program:1"))
	})

	t.Run("取得失敗時は処理を実行しない", func(t *testing.T) {
		dist := newFakeDistributed()
		dist.acquireErr = ErrResourceBusy
		m := NewManager(dist)

		called := false
		err := m.WithLock(ctx, "program:1", KindExclusive, 0, func() error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, ErrResourceBusy)
		assert.False(t, called)
	})
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "exclusive", KindExclusive.String())
	assert.Equal(t, "fair", KindFair.String())
	assert.Equal(t, "read", KindRead.String())
	assert.Equal(t, "write", KindWrite.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
