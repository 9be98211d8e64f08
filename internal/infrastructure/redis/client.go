package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/FGover/damai-sub000/internal/config"
)

// NewClient はRedisクライアントを作成する
// ロック・在庫キャッシュ・冪等性マーカーがすべてこの接続を共有するため、
// プールサイズは同時予約数に合わせて設定から調整する
func NewClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// Ping はRedis接続を確認する
func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Redis接続に失敗しました: %w", err)
	}
	return nil
}
