package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/FGover/damai-sub000/internal/domain/order"
	"github.com/FGover/damai-sub000/internal/domain/transaction"
)

type orderRow struct {
	OrderNumber int64      `db:"order_number"`
	UserID      string     `db:"user_id"`
	ProgramID   string     `db:"program_id"`
	TotalPrice  int64      `db:"total_price"`
	Status      string     `db:"status"`
	PayAt       *time.Time `db:"pay_at"`
	CancelAt    *time.Time `db:"cancel_at"`
	RefundAt    *time.Time `db:"refund_at"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

func (r *orderRow) toEntity() *order.Order {
	return &order.Order{
		OrderNumber: r.OrderNumber,
		UserID:      r.UserID,
		ProgramID:   r.ProgramID,
		TotalPrice:  r.TotalPrice,
		Status:      order.Status(r.Status),
		PayAt:       r.PayAt,
		CancelAt:    r.CancelAt,
		RefundAt:    r.RefundAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type lineItemRow struct {
	ID          string  `db:"id"`
	OrderNumber int64   `db:"order_number"`
	SeatID      *string `db:"seat_id"`
	CategoryID  string  `db:"category_id"`
	HolderID    string  `db:"holder_id"`
	Price       int64   `db:"price"`
}

func (r *lineItemRow) toEntity() *order.LineItem {
	var seatID string
	if r.SeatID != nil {
		seatID = *r.SeatID
	}
	return &order.LineItem{
		ID:          r.ID,
		OrderNumber: r.OrderNumber,
		SeatID:      seatID,
		CategoryID:  r.CategoryID,
		HolderID:    r.HolderID,
		Price:       r.Price,
	}
}

// OrderRepository は注文リポジトリのPostgreSQL実装
// 注文テーブルは orders_0 .. orders_{N-1} にシャーディングされ、
// 注文番号の剰余でシャードを解決する。明細は注文と同じシャードに置く。
type OrderRepository struct {
	db         *sqlx.DB
	shardCount int
}

// NewOrderRepository はOrderRepositoryを作成する
// shardCount はマイグレーションで作成済みのシャードテーブル数と一致させる
func NewOrderRepository(db *sqlx.DB, shardCount int) *OrderRepository {
	if shardCount <= 0 {
		shardCount = 1
	}
	return &OrderRepository{db: db, shardCount: shardCount}
}

func (r *OrderRepository) ordersTable(orderNumber int64) string {
	return fmt.Sprintf("orders_%d", orderNumber%int64(r.shardCount))
}

func (r *OrderRepository) itemsTable(orderNumber int64) string {
	return fmt.Sprintf("order_items_%d", orderNumber%int64(r.shardCount))
}

func (r *OrderRepository) Create(ctx context.Context, tx transaction.Tx, o *order.Order) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return fmt.Errorf("トランザクションの型が不正です")
	}

	query := fmt.Sprintf(`INSERT INTO %s (order_number, user_id, program_id, total_price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, r.ordersTable(o.OrderNumber))
	if _, err := sqlxTx.ExecContext(ctx, query,
		o.OrderNumber, o.UserID, o.ProgramID, o.TotalPrice, string(o.Status), o.CreatedAt, o.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return order.ErrDuplicateOrderNumber
		}
		return fmt.Errorf("注文作成に失敗: %w", err)
	}

	return r.createItems(ctx, sqlxTx, o)
}

func (r *OrderRepository) createItems(ctx context.Context, tx *sqlx.Tx, o *order.Order) error {
	if len(o.LineItems) == 0 {
		return nil
	}
	query := fmt.Sprintf(`INSERT INTO %s (order_number, seat_id, category_id, holder_id, price) VALUES `, r.itemsTable(o.OrderNumber))
	args := make([]interface{}, 0, len(o.LineItems)*5)
	placeholders := make([]string, 0, len(o.LineItems))
	for i, it := range o.LineItems {
		base := i * 5
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5))
		var seatID interface{}
		if it.SeatID != "" {
			seatID = it.SeatID
		}
		args = append(args, o.OrderNumber, seatID, it.CategoryID, it.HolderID, it.Price)
	}
	query += strings.Join(placeholders, ", ")
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("注文明細作成に失敗: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetByOrderNumber(ctx context.Context, orderNumber int64) (*order.Order, error) {
	query := fmt.Sprintf(`SELECT order_number, user_id, program_id, total_price, status, pay_at, cancel_at, refund_at, created_at, updated_at
		FROM %s WHERE order_number = $1`, r.ordersTable(orderNumber))
	var row orderRow
	if err := r.db.GetContext(ctx, &row, query, orderNumber); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("注文取得に失敗: %w", err)
	}
	o := row.toEntity()

	itemsQuery := fmt.Sprintf(`SELECT id, order_number, seat_id, category_id, holder_id, price
		FROM %s WHERE order_number = $1 ORDER BY id`, r.itemsTable(orderNumber))
	var itemRows []lineItemRow
	if err := r.db.SelectContext(ctx, &itemRows, itemsQuery, orderNumber); err != nil {
		return nil, fmt.Errorf("注文明細取得に失敗: %w", err)
	}
	o.LineItems = make([]*order.LineItem, len(itemRows))
	for i, ir := range itemRows {
		o.LineItems[i] = ir.toEntity()
	}
	return o, nil
}

// GetByUserID は全シャードを横断してユーザーの注文一覧を取得する
// 各シャードから limit+offset 件まで集めてマージする
func (r *OrderRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*order.Order, error) {
	all := make([]*order.Order, 0, limit)
	for shard := 0; shard < r.shardCount; shard++ {
		query := fmt.Sprintf(`SELECT order_number, user_id, program_id, total_price, status, pay_at, cancel_at, refund_at, created_at, updated_at
			FROM orders_%d WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, shard)
		var rows []orderRow
		if err := r.db.SelectContext(ctx, &rows, query, userID, limit+offset); err != nil {
			return nil, fmt.Errorf("注文一覧取得に失敗: %w", err)
		}
		for i := range rows {
			all = append(all, rows[i].toEntity())
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return []*order.Order{}, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *OrderRepository) Update(ctx context.Context, tx transaction.Tx, o *order.Order) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return fmt.Errorf("トランザクションの型が不正です")
	}
	query := fmt.Sprintf(`UPDATE %s SET status = $1, pay_at = $2, cancel_at = $3, refund_at = $4, updated_at = $5
		WHERE order_number = $6`, r.ordersTable(o.OrderNumber))
	result, err := sqlxTx.ExecContext(ctx, query,
		string(o.Status), o.PayAt, o.CancelAt, o.RefundAt, o.UpdatedAt, o.OrderNumber)
	if err != nil {
		return fmt.Errorf("注文更新に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return order.ErrOrderNotFound
	}
	return nil
}

// CountByUserAndProgram はユーザーが公演に対して購入済みの枚数を全シャード横断で数える
func (r *OrderRepository) CountByUserAndProgram(ctx context.Context, userID, programID string) (int, error) {
	total := 0
	for shard := 0; shard < r.shardCount; shard++ {
		query := fmt.Sprintf(`SELECT COUNT(i.*) FROM order_items_%d i
			JOIN orders_%d o ON o.order_number = i.order_number
			WHERE o.user_id = $1 AND o.program_id = $2 AND o.status IN ('no_pay', 'paid')`, shard, shard)
		var count int
		if err := r.db.GetContext(ctx, &count, query, userID, programID); err != nil {
			return 0, fmt.Errorf("購入済み枚数取得に失敗: %w", err)
		}
		total += count
	}
	return total, nil
}

// GetUnpaidCreatedBefore は指定時刻より前に作成された未払い注文を全シャード横断で取得する
func (r *OrderRepository) GetUnpaidCreatedBefore(ctx context.Context, before time.Time, limit int) ([]*order.Order, error) {
	all := make([]*order.Order, 0, limit)
	for shard := 0; shard < r.shardCount; shard++ {
		query := fmt.Sprintf(`SELECT order_number, user_id, program_id, total_price, status, pay_at, cancel_at, refund_at, created_at, updated_at
			FROM orders_%d WHERE status = 'no_pay' AND created_at < $1 ORDER BY created_at LIMIT $2`, shard)
		var rows []orderRow
		if err := r.db.SelectContext(ctx, &rows, query, before, limit); err != nil {
			return nil, fmt.Errorf("未払い注文取得に失敗: %w", err)
		}
		for i := range rows {
			all = append(all, rows[i].toEntity())
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// isUniqueViolation はPostgreSQLの一意制約違反かを判定する
func isUniqueViolation(err error) bool {
	var pgErr *pq.Error
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ order.Repository = (*OrderRepository)(nil)
