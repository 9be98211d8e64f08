package cache

import (
	"sync"
	"time"
)

// localEntry はプロセス内キャッシュの1エントリ
type localEntry struct {
	value     interface{}
	expiresAt time.Time
}

// Local は容量上限付きのプロセス内TTLキャッシュ
// 容量超過時は有効期限が最も近いエントリを追い出す。
// レジストリはインスタンスが所有し、パッケージグローバルには置かない。
type Local struct {
	mu       sync.RWMutex
	entries  map[string]localEntry
	capacity int
}

// NewLocal は新しいLocalキャッシュを作成する
func NewLocal(capacity int) *Local {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Local{
		entries:  make(map[string]localEntry),
		capacity: capacity,
	}
}

// Get はキーの値を取得する。期限切れのエントリはヒットしない。
func (l *Local) Get(key string) (interface{}, bool) {
	l.mu.RLock()
	entry, ok := l.entries[key]
	l.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

// Set はキーに値をTTL付きで格納する
func (l *Local) Set(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.entries[key]; !exists && len(l.entries) >= l.capacity {
		l.evictLocked(now)
	}
	l.entries[key] = localEntry{value: value, expiresAt: now.Add(ttl)}
}

// evictLocked は期限切れエントリを全て削除し、1件も無ければ
// 有効期限が最も近いエントリを1件追い出す
func (l *Local) evictLocked(now time.Time) {
	var (
		evicted     bool
		nearestKey  string
		nearestTime time.Time
	)
	for key, entry := range l.entries {
		if now.After(entry.expiresAt) {
			delete(l.entries, key)
			evicted = true
			continue
		}
		if nearestKey == "" || entry.expiresAt.Before(nearestTime) {
			nearestKey = key
			nearestTime = entry.expiresAt
		}
	}
	if !evicted && nearestKey != "" {
		delete(l.entries, nearestKey)
	}
}

// Delete はキーを削除する
func (l *Local) Delete(keys ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, key := range keys {
		delete(l.entries, key)
	}
}

// Len は現在のエントリ数を返す（期限切れ含む）
func (l *Local) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
