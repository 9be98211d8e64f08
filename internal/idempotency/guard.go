package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/FGover/damai-sub000/internal/lock"
	"github.com/FGover/damai-sub000/internal/pkg/logger"
)

// ErrDuplicateOperation は同一操作が実行中または完了済みであることを表す
// 呼び出し側は「処理済み」として扱い、再実行しない
var ErrDuplicateOperation = errors.New("同一の操作が既に実行中または完了しています")

// MarkerStore は完了済みマーカーの永続化インターフェース
type MarkerStore interface {
	IsCompleted(ctx context.Context, scope, key string) (bool, error)
	MarkCompleted(ctx context.Context, scope, key string, ttl time.Duration) error
}

// Guard は論理操作の副作用を (scope, key) ごとに高々1回に制限する
//
// 3段の即時棄却層（マーカー・プロセス内ロック・分散ロック）を順に通すことで、
// 重複リクエストの大半をネットワークに出る前に棄却する。ロックはいずれも
// ノンブロッキング（待機なし）で取得する。
type Guard struct {
	markers MarkerStore
	locks   *lock.Manager
}

// NewGuard は新しいGuardを作成する
func NewGuard(markers MarkerStore, locks *lock.Manager) *Guard {
	return &Guard{markers: markers, locks: locks}
}

// guardLockKey は (scope, key) の操作を直列化するロックキー
func guardLockKey(scope, key string) string {
	return fmt.Sprintf("guard:%s:%s", scope, key)
}

// Execute は操作を冪等に実行する
//
// 手順: (1) マーカー確認 (2)(3) プロセス内→分散の順で公平ロックを待機なしで
// 取得 (4) ロック取得中に時間が経過しているためマーカーを再確認
// (5) 操作実行 (6) 成功時かつ ttlIfSuccess > 0 なら完了マーカーを書き込む
// （ベストエフォート。操作自体は成功しているため書き込み失敗はログのみ）
// (7) 分散→ローカルの順で必ず解放する
func (g *Guard) Execute(ctx context.Context, scope, key string, ttlIfSuccess time.Duration, op func(ctx context.Context) error) error {
	completed, err := g.markers.IsCompleted(ctx, scope, key)
	if err != nil {
		return fmt.Errorf("冪等性マーカー確認に失敗: %w", err)
	}
	if completed {
		return ErrDuplicateOperation
	}

	handle, err := g.locks.Acquire(ctx, guardLockKey(scope, key), lock.KindFair, 0)
	if err != nil {
		if errors.Is(err, lock.ErrResourceBusy) {
			return ErrDuplicateOperation
		}
		return fmt.Errorf("冪等性ロック取得に失敗: %w", err)
	}
	defer handle.Release(ctx)

	// ロック取得までの間に別プロセスが完了している可能性があるため再確認
	completed, err = g.markers.IsCompleted(ctx, scope, key)
	if err != nil {
		return fmt.Errorf("冪等性マーカー再確認に失敗: %w", err)
	}
	if completed {
		return ErrDuplicateOperation
	}

	if err := op(ctx); err != nil {
		return err
	}

	if ttlIfSuccess > 0 {
		if err := g.markers.MarkCompleted(ctx, scope, key, ttlIfSuccess); err != nil {
			logger.Error("冪等性マーカーの書き込みに失敗",
				zap.String("scope", scope),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
	return nil
}
