package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/FGover/damai-sub000/internal/domain/seat"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

// seatPartitions は座席が取りうる全状態
var seatPartitions = []seat.Status{seat.StatusNoSold, seat.StatusLocked, seat.StatusSold}

// InventoryStore は座席在庫の分散キャッシュ層
// チケット種別ごとに、状態別の座席パーティション（ハッシュ）と
// 残数カウンタ（文字列キー）を保持する。残数カウンタの存在を
// 「投入済み」の目印として扱う。
type InventoryStore struct {
	client *redis.Client
}

// NewInventoryStore は新しいInventoryStoreを作成する
func NewInventoryStore(client *redis.Client) *InventoryStore {
	return &InventoryStore{client: client}
}

// GetRemaining はチケット種別の残数を取得する
func (s *InventoryStore) GetRemaining(ctx context.Context, programID, categoryID string) (int, error) {
	val, err := s.client.Get(ctx, remainingKey(programID, categoryID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCacheMiss
		}
		return 0, fmt.Errorf("残数キャッシュ取得に失敗: %w", err)
	}
	return val, nil
}

// GetSeats はチケット種別の全座席を全状態パーティションから取得する
// 未投入の場合は ErrCacheMiss を返す
func (s *InventoryStore) GetSeats(ctx context.Context, programID, categoryID string) ([]*seat.Seat, error) {
	// 残数キーの存在確認と各パーティションの取得をまとめて行う
	pipe := s.client.Pipeline()
	existsCmd := pipe.Exists(ctx, remainingKey(programID, categoryID))
	hashCmds := make([]*redis.MapStringStringCmd, len(seatPartitions))
	for i, status := range seatPartitions {
		hashCmds[i] = pipe.HGetAll(ctx, seatPartitionKey(programID, categoryID, status))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("座席キャッシュ取得に失敗: %w", err)
	}

	if existsCmd.Val() == 0 {
		return nil, ErrCacheMiss
	}

	var seats []*seat.Seat
	for _, cmd := range hashCmds {
		for _, raw := range cmd.Val() {
			se, err := seat.Unmarshal([]byte(raw))
			if err != nil {
				return nil, fmt.Errorf("座席キャッシュのデコードに失敗: %w", err)
			}
			seats = append(seats, se)
		}
	}
	return seats, nil
}

// Populate はチケット種別の座席と残数をキャッシュに投入する
// 既存のパーティションを破棄して置き換え、全キーに同一のTTLを設定する
func (s *InventoryStore) Populate(ctx context.Context, programID, categoryID string, seats []*seat.Seat, remaining int, ttl time.Duration) error {
	byStatus := make(map[seat.Status][]interface{})
	for _, se := range seats {
		data, err := se.Marshal()
		if err != nil {
			return fmt.Errorf("座席のエンコードに失敗: %w", err)
		}
		byStatus[se.Status] = append(byStatus[se.Status], se.ID, string(data))
	}

	pipe := s.client.TxPipeline()
	for _, status := range seatPartitions {
		key := seatPartitionKey(programID, categoryID, status)
		pipe.Del(ctx, key)
		if fields, ok := byStatus[status]; ok {
			pipe.HSet(ctx, key, fields...)
			pipe.PExpire(ctx, key, ttl)
		}
	}
	pipe.Set(ctx, remainingKey(programID, categoryID), remaining, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("座席キャッシュ投入に失敗: %w", err)
	}
	return nil
}

// Invalidate はチケット種別のキャッシュを無効化する
func (s *InventoryStore) Invalidate(ctx context.Context, programID, categoryID string) error {
	keys := []string{remainingKey(programID, categoryID)}
	for _, status := range seatPartitions {
		keys = append(keys, seatPartitionKey(programID, categoryID, status))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

// InvalidateProgram は公演の全チケット種別のキャッシュを無効化する（公演削除時）
func (s *InventoryStore) InvalidateProgram(ctx context.Context, programID string, categoryIDs []string) error {
	for _, categoryID := range categoryIDs {
		if err := s.Invalidate(ctx, programID, categoryID); err != nil {
			return err
		}
	}
	return nil
}
