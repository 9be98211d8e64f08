package redis

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/redis/go-redis/v9"
)

// OrderNumberGenerator はシャード対応のグローバル一意な注文番号を生成する
//
// シャードはユーザーIDのハッシュで決め、シャードごとの連番をRedisの
// INCR で採番する。番号は 連番×シャード数+シャード で構成されるため、
// 末尾の剰余だけでシャードが引ける。
type OrderNumberGenerator struct {
	client     *redis.Client
	shardCount int64
}

// NewOrderNumberGenerator は新しいOrderNumberGeneratorを作成する
func NewOrderNumberGenerator(client *redis.Client, shardCount int) *OrderNumberGenerator {
	if shardCount <= 0 {
		shardCount = 1
	}
	return &OrderNumberGenerator{client: client, shardCount: int64(shardCount)}
}

// Next はユーザーに対する新しい注文番号を発行する
func (g *OrderNumberGenerator) Next(ctx context.Context, userID string) (int64, error) {
	shard := g.shardFor(userID)
	seq, err := g.client.Incr(ctx, orderNumberSeqKey(shard)).Result()
	if err != nil {
		return 0, fmt.Errorf("注文番号の採番に失敗: %w", err)
	}
	return seq*g.shardCount + shard, nil
}

// ShardOf は注文番号からシャードを逆引きする
func (g *OrderNumberGenerator) ShardOf(orderNumber int64) int64 {
	return orderNumber % g.shardCount
}

func (g *OrderNumberGenerator) shardFor(userID string) int64 {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return int64(h.Sum32()) % g.shardCount
}
