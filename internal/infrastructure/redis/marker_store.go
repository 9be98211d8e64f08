package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// markerCompleted は完了済みマーカーの値
const markerCompleted = "completed"

// MarkerStore は冪等性マーカー（(scope, key) → 完了済み）の永続化層
type MarkerStore struct {
	client *redis.Client
}

// NewMarkerStore は新しいMarkerStoreを作成する
func NewMarkerStore(client *redis.Client) *MarkerStore {
	return &MarkerStore{client: client}
}

// IsCompleted は操作が完了済みとして記録されているかを返す
func (s *MarkerStore) IsCompleted(ctx context.Context, scope, key string) (bool, error) {
	val, err := s.client.Get(ctx, markerKey(scope, key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("冪等性マーカー取得に失敗: %w", err)
	}
	return val == markerCompleted, nil
}

// MarkCompleted は操作を完了済みとして記録する
func (s *MarkerStore) MarkCompleted(ctx context.Context, scope, key string, ttl time.Duration) error {
	if err := s.client.Set(ctx, markerKey(scope, key), markerCompleted, ttl).Err(); err != nil {
		return fmt.Errorf("冪等性マーカー保存に失敗: %w", err)
	}
	return nil
}

// Clear はマーカーを削除する（管理操作・テスト用）
func (s *MarkerStore) Clear(ctx context.Context, scope, key string) error {
	if err := s.client.Del(ctx, markerKey(scope, key)).Err(); err != nil {
		return fmt.Errorf("冪等性マーカー削除に失敗: %w", err)
	}
	return nil
}
