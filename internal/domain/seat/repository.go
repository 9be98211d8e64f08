package seat

import (
	"context"

	"github.com/FGover/damai-sub000/internal/domain/transaction"
)

// Repository は座席リポジトリのインターフェース
type Repository interface {
	// Create は新しい座席を作成する
	Create(ctx context.Context, seat *Seat) error

	// CreateBulk は複数の座席を一括作成する
	CreateBulk(ctx context.Context, seats []*Seat) error

	// GetByID はIDから座席を取得する
	GetByID(ctx context.Context, id string) (*Seat, error)

	// GetByProgramID は公演IDから座席一覧を取得する
	GetByProgramID(ctx context.Context, programID string) ([]*Seat, error)

	// GetByCategoryID は公演ID・チケット種別IDから座席一覧を取得する
	GetByCategoryID(ctx context.Context, programID, categoryID string) ([]*Seat, error)

	// UpdateStatusBulk は座席の状態を一括更新する（トランザクション必須）
	UpdateStatusBulk(ctx context.Context, tx transaction.Tx, seatIDs []string, status Status) error

	// CountByStatus はチケット種別内の指定状態の座席数を取得する
	CountByStatus(ctx context.Context, programID, categoryID string, status Status) (int, error)

	// DeleteByProgramID は公演の全座席を削除する（公演削除時のみ）
	DeleteByProgramID(ctx context.Context, programID string) error
}
