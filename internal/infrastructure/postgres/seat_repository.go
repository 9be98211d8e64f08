package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/FGover/damai-sub000/internal/domain/seat"
	"github.com/FGover/damai-sub000/internal/domain/transaction"
)

type seatRow struct {
	ID         string    `db:"id"`
	ProgramID  string    `db:"program_id"`
	CategoryID string    `db:"category_id"`
	RowNum     int       `db:"row_num"`
	ColNum     int       `db:"col_num"`
	Status     string    `db:"status"`
	Price      int64     `db:"price"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
	Version    int       `db:"version"`
}

func (r *seatRow) toEntity() *seat.Seat {
	return &seat.Seat{
		ID: r.ID, ProgramID: r.ProgramID, CategoryID: r.CategoryID,
		RowNum: r.RowNum, ColNum: r.ColNum,
		Status: seat.Status(r.Status), Price: r.Price,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, Version: r.Version,
	}
}

type SeatRepository struct{ db *sqlx.DB }

func NewSeatRepository(db *sqlx.DB) *SeatRepository { return &SeatRepository{db: db} }

func (r *SeatRepository) Create(ctx context.Context, s *seat.Seat) error {
	query := `INSERT INTO seats (program_id, category_id, row_num, col_num, status, price, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	return r.db.QueryRowContext(ctx, query,
		s.ProgramID, s.CategoryID, s.RowNum, s.ColNum, string(s.Status), s.Price,
		s.CreatedAt, s.UpdatedAt, s.Version,
	).Scan(&s.ID)
}

func (r *SeatRepository) CreateBulk(ctx context.Context, seats []*seat.Seat) error {
	if len(seats) == 0 {
		return nil
	}

	// バッチサイズごとに分割してマルチバリューINSERTを実行
	const batchSize = 1000
	for i := 0; i < len(seats); i += batchSize {
		end := i + batchSize
		if end > len(seats) {
			end = len(seats)
		}
		if err := r.createBulkBatch(ctx, seats[i:end]); err != nil {
			return err
		}
	}
	return nil
}

// createBulkBatch はバッチ単位でマルチバリューINSERTを実行
func (r *SeatRepository) createBulkBatch(ctx context.Context, seats []*seat.Seat) error {
	if len(seats) == 0 {
		return nil
	}

	query := `INSERT INTO seats (program_id, category_id, row_num, col_num, status, price, created_at, updated_at, version) VALUES `
	args := make([]interface{}, 0, len(seats)*9)
	placeholders := make([]string, 0, len(seats))

	for i, s := range seats {
		base := i * 9
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9))
		args = append(args, s.ProgramID, s.CategoryID, s.RowNum, s.ColNum, string(s.Status), s.Price, s.CreatedAt, s.UpdatedAt, s.Version)
	}

	query += strings.Join(placeholders, ", ")
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("座席一括作成に失敗: %w", err)
	}
	return nil
}

func (r *SeatRepository) GetByID(ctx context.Context, id string) (*seat.Seat, error) {
	query := `SELECT id, program_id, category_id, row_num, col_num, status, price, created_at, updated_at, version
		FROM seats WHERE id = $1`
	var row seatRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, seat.ErrSeatNotFound
		}
		return nil, fmt.Errorf("座席取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *SeatRepository) GetByProgramID(ctx context.Context, programID string) ([]*seat.Seat, error) {
	query := `SELECT id, program_id, category_id, row_num, col_num, status, price, created_at, updated_at, version
		FROM seats WHERE program_id = $1 ORDER BY category_id, row_num, col_num`
	var rows []seatRow
	if err := r.db.SelectContext(ctx, &rows, query, programID); err != nil {
		return nil, err
	}
	return toSeats(rows), nil
}

func (r *SeatRepository) GetByCategoryID(ctx context.Context, programID, categoryID string) ([]*seat.Seat, error) {
	query := `SELECT id, program_id, category_id, row_num, col_num, status, price, created_at, updated_at, version
		FROM seats WHERE program_id = $1 AND category_id = $2 ORDER BY row_num, col_num`
	var rows []seatRow
	if err := r.db.SelectContext(ctx, &rows, query, programID, categoryID); err != nil {
		return nil, err
	}
	return toSeats(rows), nil
}

// UpdateStatusBulk は座席の状態を一括更新する
// キャッシュ上の在庫遷移がコミット時検証を担うため、ここでは遷移元の状態を
// 条件にせず全件を指定状態へ揃える
func (r *SeatRepository) UpdateStatusBulk(ctx context.Context, tx transaction.Tx, seatIDs []string, status seat.Status) error {
	if len(seatIDs) == 0 {
		return nil
	}
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return fmt.Errorf("トランザクションの型が不正です")
	}
	query := `UPDATE seats SET status = $1, updated_at = NOW(), version = version + 1 WHERE id = ANY($2)`
	result, err := sqlxTx.ExecContext(ctx, query, string(status), pq.Array(seatIDs))
	if err != nil {
		return fmt.Errorf("座席状態更新に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if int(rows) != len(seatIDs) {
		return seat.ErrSeatNotFound
	}
	return nil
}

func (r *SeatRepository) CountByStatus(ctx context.Context, programID, categoryID string, status seat.Status) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM seats WHERE program_id = $1 AND category_id = $2 AND status = $3`,
		programID, categoryID, string(status))
	return count, err
}

func (r *SeatRepository) DeleteByProgramID(ctx context.Context, programID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM seats WHERE program_id = $1`, programID)
	if err != nil {
		return fmt.Errorf("座席削除に失敗: %w", err)
	}
	return nil
}

func toSeats(rows []seatRow) []*seat.Seat {
	seats := make([]*seat.Seat, len(rows))
	for i, row := range rows {
		seats[i] = row.toEntity()
	}
	return seats
}

var _ seat.Repository = (*SeatRepository)(nil)
