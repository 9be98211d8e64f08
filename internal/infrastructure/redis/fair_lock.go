package redis

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// 公平（FIFO）排他ロック
// 待機者はキュー（リスト）にトークンを登録し、自分が先頭かつ所有者不在の
// ときだけ取得できる。全プロセスを跨いで到着順に付与される。

const fairAcquireScript = `
if redis.call("LINDEX", KEYS[1], 0) == ARGV[1] then
	if redis.call("EXISTS", KEYS[2]) == 0 then
		redis.call("LPOP", KEYS[1])
		redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[2])
		return 1
	end
end
return 0
`

const fairReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// fairQueueTTL はキューキー自体の有効期限
// 待機者が異常終了してもキューが残り続けないようにする
const fairQueueTTL = 5 * time.Minute

func (p *LockProvider) acquireFair(ctx context.Context, key, owner string, wait time.Duration) error {
	queueKey := fairQueueKey(key)
	ownerKey := fairOwnerKey(key)

	// 待機キューの末尾に並ぶ
	pipe := p.client.TxPipeline()
	pipe.RPush(ctx, queueKey, owner)
	pipe.PExpire(ctx, queueKey, fairQueueTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("公平ロックの待機登録に失敗: %w", err)
	}

	try := func(ctx context.Context) (bool, error) {
		result, err := p.evalInt(ctx, fairAcquireScript,
			[]string{queueKey, ownerKey}, owner, p.ttl.Milliseconds())
		if err != nil {
			return false, err
		}
		return result == 1, nil
	}

	err := p.poll(ctx, wait, try)
	if err != nil {
		// 取得を諦めた場合は必ずキューから自分を取り除く
		// 放置すると後続の待機者が永久にブロックされる
		removeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
		defer cancel()
		if remErr := p.client.LRem(removeCtx, queueKey, 0, owner).Err(); remErr != nil {
			return errors.Join(err, fmt.Errorf("公平ロックの待機解除に失敗: %w", remErr))
		}
		return err
	}
	return nil
}

func (p *LockProvider) releaseFair(ctx context.Context, key, owner string) error {
	result, err := p.evalInt(ctx, fairReleaseScript,
		[]string{fairOwnerKey(key)}, owner)
	if err != nil {
		return err
	}
	if result == 0 {
		return fmt.Errorf("%w: %s", ErrLockNotOwned, key)
	}
	return nil
}
