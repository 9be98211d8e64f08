package redis

import (
	"fmt"

	"github.com/FGover/damai-sub000/internal/domain/seat"
)

// Redisキーの命名規則をここに集約する

// reentrantLockKey は再入可能排他ロックのキー
func reentrantLockKey(key string) string {
	return fmt.Sprintf("lock:re:{%s}", key)
}

// fairOwnerKey は公平ロックの所有者キー
func fairOwnerKey(key string) string {
	return fmt.Sprintf("lock:fair:owner:{%s}", key)
}

// fairQueueKey は公平ロックの待機キュー
func fairQueueKey(key string) string {
	return fmt.Sprintf("lock:fair:queue:{%s}", key)
}

// rwWriterKey は読み書きロックの書き込み側キー
func rwWriterKey(key string) string {
	return fmt.Sprintf("lock:rw:writer:{%s}", key)
}

// rwReadersKey は読み書きロックの読み取りカウンタ
func rwReadersKey(key string) string {
	return fmt.Sprintf("lock:rw:readers:{%s}", key)
}

// markerKey は冪等性マーカーのキー
func markerKey(scope, key string) string {
	return fmt.Sprintf("idem:%s:%s", scope, key)
}

// remainingKey はチケット種別の残数カウンタのキー
func remainingKey(programID, categoryID string) string {
	return fmt.Sprintf("program:remain:{%s}:%s", programID, categoryID)
}

// seatPartitionKey は座席状態パーティション（ハッシュ）のキー
// 同一公演のパーティションと残数カウンタはハッシュタグで同一スロットに乗せる
func seatPartitionKey(programID, categoryID string, status seat.Status) string {
	return fmt.Sprintf("program:seats:{%s}:%s:%s", programID, categoryID, status)
}

// orderNumberSeqKey は注文番号シーケンスのキー（シャードごと）
func orderNumberSeqKey(shard int64) string {
	return fmt.Sprintf("idgen:order:%d", shard)
}
