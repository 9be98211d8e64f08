package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrResourceBusy はロックが待機時間内に取得できなかったことを表す
// 呼び出し側はこれを「リソース使用中」の確定失敗として扱い、内部で再試行しない
var ErrResourceBusy = errors.New("リソースが他の処理で使用中です")

// Kind は分散ロックの種別を表す
type Kind int

const (
	// KindExclusive は排他ロック（待機順序の保証なし）
	// 分散側の実装は同一所有者トークンによる再入に対応しているが、
	// Manager 経由では取得ごとに新しい所有者を発行し、ローカル側の
	// ミューテックスも再入不可のため、同一ゴルーチンの再取得はできない。
	// 再入が必要な場合は Distributed 実装を直接使う。
	KindExclusive Kind = iota
	// KindFair は到着順に付与される公平排他ロック
	KindFair
	// KindRead は共有読み取りロック
	KindRead
	// KindWrite は全読み取りと排他になる書き込みロック
	KindWrite
)

// String はロック種別名を返す
func (k Kind) String() string {
	switch k {
	case KindExclusive:
		return "exclusive"
	case KindFair:
		return "fair"
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	}
	return "unknown"
}

// Distributed は分散側ロックの実装インターフェース
// 取得できない場合は ErrResourceBusy を返す契約
type Distributed interface {
	Acquire(ctx context.Context, key string, kind Kind, owner string, wait time.Duration) error
	Release(ctx context.Context, key string, kind Kind, owner string) error
}

// Manager はプロセス内ロックと分散ロックを合成するハイブリッドロックマネージャー
//
// 取得は必ずローカル→分散の順で行う。同一プロセス内の競合はネットワークに
// 到達する前にメモリ上で解決され、分散側の取得に失敗した場合はローカルを
// 即座に解放してから失敗を返す。解放は取得の逆順（分散→ローカル）。
type Manager struct {
	local *KeyLock
	dist  Distributed
}

// NewManager は新しいManagerを作成する
func NewManager(dist Distributed) *Manager {
	return &Manager{local: NewKeyLock(), dist: dist}
}

// Handle は取得済みロックを表す
type Handle struct {
	key         string
	kind        Kind
	owner       string
	unlockLocal func()
	manager     *Manager
	once        sync.Once
}

// Key はロック対象のリソースキーを返す
func (h *Handle) Key() string { return h.key }

// Kind はロック種別を返す
func (h *Handle) Kind() Kind { return h.kind }

// localWaitBudget はローカルロックに割り当てる待機時間
// ローカルの競合はサブミリ秒想定のため、全体の待機時間より短く抑える
func localWaitBudget(wait time.Duration) time.Duration {
	const maxLocalWait = 100 * time.Millisecond
	if wait < maxLocalWait {
		return wait
	}
	return maxLocalWait
}

// Acquire はリソースキーに対するロックを取得する
// wait は全体の待機時間予算。0 の場合は一切待たずに一度だけ試行する。
// 待機時間内に取得できなければ ErrResourceBusy を返す。
func (m *Manager) Acquire(ctx context.Context, key string, kind Kind, wait time.Duration) (*Handle, error) {
	var (
		unlockLocal func()
		ok          bool
	)
	start := time.Now()
	if kind == KindRead {
		unlockLocal, ok = m.local.TryRLockFor(key, localWaitBudget(wait))
	} else {
		unlockLocal, ok = m.local.TryLockFor(key, localWaitBudget(wait))
	}
	if !ok {
		return nil, ErrResourceBusy
	}

	// 残りの待機時間で分散ロックを取得する
	remaining := wait - time.Since(start)
	if remaining < 0 {
		remaining = 0
	}
	owner := uuid.New().String()
	if err := m.dist.Acquire(ctx, key, kind, owner, remaining); err != nil {
		unlockLocal()
		if errors.Is(err, ErrResourceBusy) {
			return nil, ErrResourceBusy
		}
		return nil, fmt.Errorf("分散ロック取得に失敗: %w", err)
	}

	return &Handle{
		key:         key,
		kind:        kind,
		owner:       owner,
		unlockLocal: unlockLocal,
		manager:     m,
	}, nil
}

// Release はロックを解放する
// 分散→ローカルの順で解放し、分散側の解放が失敗してもローカルは必ず解放する。
// 2回目以降の呼び出しは何もしない。
func (h *Handle) Release(ctx context.Context) error {
	var err error
	h.once.Do(func() {
		err = h.manager.dist.Release(ctx, h.key, h.kind, h.owner)
		h.unlockLocal()
	})
	if err != nil {
		return fmt.Errorf("分散ロック解放に失敗: %w", err)
	}
	return nil
}

// WithLock はロック取得・処理実行・解放をまとめて行うヘルパー
func (m *Manager) WithLock(ctx context.Context, key string, kind Kind, wait time.Duration, fn func() error) error {
	h, err := m.Acquire(ctx, key, kind, wait)
	if err != nil {
		return err
	}
	defer h.Release(ctx)
	return fn()
}
