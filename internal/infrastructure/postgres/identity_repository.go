package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/FGover/damai-sub000/internal/domain/identity"
	"github.com/FGover/damai-sub000/internal/domain/order"
)

type holderRow struct {
	ID     string `db:"id"`
	UserID string `db:"user_id"`
	Name   string `db:"name"`
}

// IdentityRepository は会員サービス参照のPostgreSQL実装
// チケット名義人は自前のテーブル、購入済み枚数は注文リポジトリに委譲する
type IdentityRepository struct {
	db        *sqlx.DB
	orderRepo order.Repository
}

// NewIdentityRepository はIdentityRepositoryを作成する
func NewIdentityRepository(db *sqlx.DB, orderRepo order.Repository) *IdentityRepository {
	return &IdentityRepository{db: db, orderRepo: orderRepo}
}

func (r *IdentityRepository) ListTicketHolders(ctx context.Context, userID string) ([]*identity.TicketHolder, error) {
	var rows []holderRow
	query := `SELECT id, user_id, name FROM ticket_holders WHERE user_id = $1 ORDER BY name`
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("チケット名義人取得に失敗: %w", err)
	}
	holders := make([]*identity.TicketHolder, len(rows))
	for i, row := range rows {
		holders[i] = &identity.TicketHolder{ID: row.ID, UserID: row.UserID, Name: row.Name}
	}
	return holders, nil
}

func (r *IdentityRepository) GetPurchaseCount(ctx context.Context, userID, programID string) (int, error) {
	return r.orderRepo.CountByUserAndProgram(ctx, userID, programID)
}

// CreateTicketHolder はチケット名義人を追加する
func (r *IdentityRepository) CreateTicketHolder(ctx context.Context, h *identity.TicketHolder) error {
	query := `INSERT INTO ticket_holders (user_id, name) VALUES ($1, $2) RETURNING id`
	if err := r.db.QueryRowContext(ctx, query, h.UserID, h.Name).Scan(&h.ID); err != nil {
		return fmt.Errorf("チケット名義人作成に失敗: %w", err)
	}
	return nil
}

var _ identity.Service = (*IdentityRepository)(nil)
