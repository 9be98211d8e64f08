package program

import "context"

// Repository は公演リポジトリのインターフェース
type Repository interface {
	// Create は新しい公演を作成する
	Create(ctx context.Context, program *Program) error

	// GetByID はIDから公演を取得する
	GetByID(ctx context.Context, id string) (*Program, error)

	// List は公演一覧を取得する
	List(ctx context.Context, limit, offset int) ([]*Program, error)

	// Update は公演を更新する（楽観的ロック）
	Update(ctx context.Context, program *Program) error

	// Delete は公演を削除する
	Delete(ctx context.Context, id string) error

	// CreateCategory は新しいチケット種別を作成する
	CreateCategory(ctx context.Context, category *TicketCategory) error

	// GetCategoryByID はIDからチケット種別を取得する
	GetCategoryByID(ctx context.Context, id string) (*TicketCategory, error)

	// GetCategoriesByProgramID は公演のチケット種別一覧を取得する
	GetCategoriesByProgramID(ctx context.Context, programID string) ([]*TicketCategory, error)

	// GetRemaining はチケット種別の残数を取得する
	GetRemaining(ctx context.Context, programID, categoryID string) (int, error)

	// UpdateRemaining はチケット種別の残数を更新する
	UpdateRemaining(ctx context.Context, categoryID string, remaining int) error
}
