package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/FGover/damai-sub000/internal/lock"
)

var (
	ErrLockNotAcquired = errors.New("ロックを取得できませんでした")
	ErrLockNotOwned    = errors.New("ロックの所有者ではありません")
	ErrUnknownLockKind = errors.New("不明なロック種別です")
)

const (
	// defaultLockTTL はロックキーの有効期限
	// 保持プロセスが異常終了してもこの時間で自動回収される
	defaultLockTTL = 30 * time.Second

	// defaultPollInterval は取得再試行のポーリング間隔
	defaultPollInterval = 20 * time.Millisecond
)

// LockProvider は lock.Distributed の Redis 実装
// 再入可能排他・公平排他・読み書きの3種別を Lua スクリプトで提供する
type LockProvider struct {
	client       *redis.Client
	ttl          time.Duration
	pollInterval time.Duration
}

// NewLockProvider は新しいLockProviderを作成する
func NewLockProvider(client *redis.Client) *LockProvider {
	return &LockProvider{
		client:       client,
		ttl:          defaultLockTTL,
		pollInterval: defaultPollInterval,
	}
}

// NewLockProviderWithTTL はTTL・ポーリング間隔を指定してLockProviderを作成する
func NewLockProviderWithTTL(client *redis.Client, ttl, pollInterval time.Duration) *LockProvider {
	return &LockProvider{client: client, ttl: ttl, pollInterval: pollInterval}
}

// Acquire は待機時間の範囲内で分散ロックの取得を試みる
// wait が 0 の場合は一度だけ試行する。取得できなければ lock.ErrResourceBusy。
func (p *LockProvider) Acquire(ctx context.Context, key string, kind lock.Kind, owner string, wait time.Duration) error {
	switch kind {
	case lock.KindExclusive:
		return p.poll(ctx, wait, func(ctx context.Context) (bool, error) {
			return p.tryReentrant(ctx, key, owner)
		})
	case lock.KindFair:
		return p.acquireFair(ctx, key, owner, wait)
	case lock.KindRead:
		return p.poll(ctx, wait, func(ctx context.Context) (bool, error) {
			return p.tryReadLock(ctx, key)
		})
	case lock.KindWrite:
		return p.poll(ctx, wait, func(ctx context.Context) (bool, error) {
			return p.tryWriteLock(ctx, key, owner)
		})
	}
	return ErrUnknownLockKind
}

// Release は分散ロックを解放する
func (p *LockProvider) Release(ctx context.Context, key string, kind lock.Kind, owner string) error {
	switch kind {
	case lock.KindExclusive:
		return p.releaseReentrant(ctx, key, owner)
	case lock.KindFair:
		return p.releaseFair(ctx, key, owner)
	case lock.KindRead:
		return p.releaseReadLock(ctx, key)
	case lock.KindWrite:
		return p.releaseWriteLock(ctx, key, owner)
	}
	return ErrUnknownLockKind
}

// poll は試行関数を待機時間の範囲内で一定間隔で繰り返す
func (p *LockProvider) poll(ctx context.Context, wait time.Duration, try func(ctx context.Context) (bool, error)) error {
	ok, err := try(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if wait <= 0 {
		return lock.ErrResourceBusy
	}

	pollCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	b := backoff.WithContext(backoff.NewConstantBackOff(p.pollInterval), pollCtx)
	err = backoff.Retry(func() error {
		ok, tryErr := try(pollCtx)
		if tryErr != nil {
			return backoff.Permanent(tryErr)
		}
		if !ok {
			return lock.ErrResourceBusy
		}
		return nil
	}, b)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, lock.ErrResourceBusy) {
			// 親コンテキストのキャンセルはそのまま伝播する
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lock.ErrResourceBusy
		}
		return err
	}
	return nil
}

// evalInt はLuaスクリプトを実行し整数の結果を返す
func (p *LockProvider) evalInt(ctx context.Context, script string, keys []string, args ...interface{}) (int64, error) {
	result, err := p.client.Eval(ctx, script, keys, args...).Int64()
	if err != nil {
		return 0, fmt.Errorf("ロックスクリプト実行に失敗: %w", err)
	}
	return result, nil
}
