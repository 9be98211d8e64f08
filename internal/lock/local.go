package lock

import (
	"sync"
	"time"
)

// keyLockEntry はキー1つ分のロックと参照カウントを保持する
type keyLockEntry struct {
	mu       sync.RWMutex
	refCount int
}

// KeyLock はキー単位のプロセス内ロックを管理する
// エントリは取得時に生成され、参照カウントが0になった時点で削除される。
// レジストリはインスタンスが所有し、パッケージグローバルには置かない。
type KeyLock struct {
	mu      sync.Mutex
	entries map[string]*keyLockEntry
}

// NewKeyLock は新しいKeyLockを作成する
func NewKeyLock() *KeyLock {
	return &KeyLock{entries: make(map[string]*keyLockEntry)}
}

func (kl *KeyLock) acquireEntry(key string) *keyLockEntry {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	entry, ok := kl.entries[key]
	if !ok {
		entry = &keyLockEntry{}
		kl.entries[key] = entry
	}
	entry.refCount++
	return entry
}

func (kl *KeyLock) releaseEntry(key string) {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	entry, ok := kl.entries[key]
	if !ok {
		return
	}
	entry.refCount--
	if entry.refCount == 0 {
		delete(kl.entries, key)
	}
}

// Lock はキーの排他ロックを取得する（ブロッキング）
// 返される関数を必ず呼び出して解放すること
func (kl *KeyLock) Lock(key string) func() {
	entry := kl.acquireEntry(key)
	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		kl.releaseEntry(key)
	}
}

// TryLock はキーの排他ロックの取得を試みる（ノンブロッキング）
func (kl *KeyLock) TryLock(key string) (func(), bool) {
	entry := kl.acquireEntry(key)
	if !entry.mu.TryLock() {
		kl.releaseEntry(key)
		return nil, false
	}
	return func() {
		entry.mu.Unlock()
		kl.releaseEntry(key)
	}, true
}

// RLock はキーの共有（読み取り）ロックを取得する（ブロッキング）
func (kl *KeyLock) RLock(key string) func() {
	entry := kl.acquireEntry(key)
	entry.mu.RLock()
	return func() {
		entry.mu.RUnlock()
		kl.releaseEntry(key)
	}
}

// TryRLock はキーの共有ロックの取得を試みる（ノンブロッキング）
func (kl *KeyLock) TryRLock(key string) (func(), bool) {
	entry := kl.acquireEntry(key)
	if !entry.mu.TryRLock() {
		kl.releaseEntry(key)
		return nil, false
	}
	return func() {
		entry.mu.RUnlock()
		kl.releaseEntry(key)
	}, true
}

// localRetryInterval はプロセス内ロックの再試行間隔
// ローカルの競合はサブミリ秒で解消する前提の短い間隔
const localRetryInterval = 500 * time.Microsecond

// TryLockFor は待機時間の範囲内で排他ロックの取得を試みる
func (kl *KeyLock) TryLockFor(key string, wait time.Duration) (func(), bool) {
	return kl.tryFor(wait, func() (func(), bool) { return kl.TryLock(key) })
}

// TryRLockFor は待機時間の範囲内で共有ロックの取得を試みる
func (kl *KeyLock) TryRLockFor(key string, wait time.Duration) (func(), bool) {
	return kl.tryFor(wait, func() (func(), bool) { return kl.TryRLock(key) })
}

func (kl *KeyLock) tryFor(wait time.Duration, try func() (func(), bool)) (func(), bool) {
	deadline := time.Now().Add(wait)
	for {
		if unlock, ok := try(); ok {
			return unlock, true
		}
		if wait <= 0 || time.Now().After(deadline) {
			return nil, false
		}
		time.Sleep(localRetryInterval)
	}
}

// Len は現在登録されているキー数を返す（テスト用）
func (kl *KeyLock) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.entries)
}
