package redis

import (
	"context"
	"fmt"
)

// 共有読み取り・排他書き込みロック
// 読み取りカウンタと書き込み所有者キーで構成する。読み取りは書き込み不在時に
// 並行して取得でき、書き込みは全読み取りの完了を待って排他的に取得する。

const readAcquireScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("INCR", KEYS[2])
redis.call("PEXPIRE", KEYS[2], ARGV[1])
return 1
`

const readReleaseScript = `
local readers = redis.call("DECR", KEYS[1])
if readers <= 0 then
	redis.call("DEL", KEYS[1])
end
return 1
`

const writeAcquireScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
local readers = tonumber(redis.call("GET", KEYS[2]) or "0")
if readers > 0 then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`

const writeReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

func (p *LockProvider) tryReadLock(ctx context.Context, key string) (bool, error) {
	result, err := p.evalInt(ctx, readAcquireScript,
		[]string{rwWriterKey(key), rwReadersKey(key)}, p.ttl.Milliseconds())
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

func (p *LockProvider) releaseReadLock(ctx context.Context, key string) error {
	_, err := p.evalInt(ctx, readReleaseScript, []string{rwReadersKey(key)})
	return err
}

func (p *LockProvider) tryWriteLock(ctx context.Context, key, owner string) (bool, error) {
	result, err := p.evalInt(ctx, writeAcquireScript,
		[]string{rwWriterKey(key), rwReadersKey(key)}, owner, p.ttl.Milliseconds())
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

func (p *LockProvider) releaseWriteLock(ctx context.Context, key, owner string) error {
	result, err := p.evalInt(ctx, writeReleaseScript,
		[]string{rwWriterKey(key)}, owner)
	if err != nil {
		return err
	}
	if result == 0 {
		return fmt.Errorf("%w: %s", ErrLockNotOwned, key)
	}
	return nil
}
