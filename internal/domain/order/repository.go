package order

import (
	"context"
	"time"

	"github.com/FGover/damai-sub000/internal/domain/transaction"
)

// Repository は注文リポジトリのインターフェース
// 注文テーブルはシャーディングされているため、リポジトリ実装が
// 注文番号からシャードを解決する。シャードを跨ぐロックは提供されない。
type Repository interface {
	// Create は注文と明細を作成する（トランザクション必須）
	Create(ctx context.Context, tx transaction.Tx, o *Order) error

	// GetByOrderNumber は注文番号から注文を取得する（明細込み）
	GetByOrderNumber(ctx context.Context, orderNumber int64) (*Order, error)

	// GetByUserID はユーザーの注文一覧を取得する
	GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*Order, error)

	// Update は注文の状態・タイムスタンプを更新する（トランザクション必須）
	Update(ctx context.Context, tx transaction.Tx, o *Order) error

	// CountByUserAndProgram はユーザーが公演に対して購入済みの枚数を取得する
	// キャンセル・返金済みの注文は数えない
	CountByUserAndProgram(ctx context.Context, userID, programID string) (int, error)

	// GetUnpaidCreatedBefore は指定時刻より前に作成された未払い注文を取得する
	GetUnpaidCreatedBefore(ctx context.Context, before time.Time, limit int) ([]*Order, error)
}
