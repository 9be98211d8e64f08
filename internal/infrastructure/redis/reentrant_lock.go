package redis

import (
	"context"
	"fmt"
)

// 再入可能排他ロック
// ハッシュに所有者と再入カウントを保持し、同一所有者の再取得はカウントを増やす。
// 待機者間の付与順序は保証しない。

const reentrantAcquireScript = `
local owner = redis.call("HGET", KEYS[1], "owner")
if owner == false then
	redis.call("HSET", KEYS[1], "owner", ARGV[1], "count", 1)
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
	return 1
end
if owner == ARGV[1] then
	redis.call("HINCRBY", KEYS[1], "count", 1)
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
	return 1
end
return 0
`

const reentrantReleaseScript = `
local owner = redis.call("HGET", KEYS[1], "owner")
if owner ~= ARGV[1] then
	return -1
end
local count = redis.call("HINCRBY", KEYS[1], "count", -1)
if count <= 0 then
	redis.call("DEL", KEYS[1])
	return 0
end
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return count
`

func (p *LockProvider) tryReentrant(ctx context.Context, key, owner string) (bool, error) {
	result, err := p.evalInt(ctx, reentrantAcquireScript,
		[]string{reentrantLockKey(key)}, owner, p.ttl.Milliseconds())
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

func (p *LockProvider) releaseReentrant(ctx context.Context, key, owner string) error {
	result, err := p.evalInt(ctx, reentrantReleaseScript,
		[]string{reentrantLockKey(key)}, owner, p.ttl.Milliseconds())
	if err != nil {
		return err
	}
	if result < 0 {
		return fmt.Errorf("%w: %s", ErrLockNotOwned, key)
	}
	return nil
}
