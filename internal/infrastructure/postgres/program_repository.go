package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/FGover/damai-sub000/internal/domain/program"
)

// programRow はDBの行を表す構造体
type programRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description *string   `db:"description"`
	Venue       *string   `db:"venue"`
	ShowAt      time.Time `db:"show_at"`
	SaleStartAt time.Time `db:"sale_start_at"`
	SaleEndAt   time.Time `db:"sale_end_at"`
	ShardCount  int       `db:"shard_count"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
	Version     int       `db:"version"`
}

// toEntity はprogramRowをProgramエンティティに変換する
func (r *programRow) toEntity() *program.Program {
	var desc, venue string
	if r.Description != nil {
		desc = *r.Description
	}
	if r.Venue != nil {
		venue = *r.Venue
	}
	return &program.Program{
		ID:          r.ID,
		Name:        r.Name,
		Description: desc,
		Venue:       venue,
		ShowAt:      r.ShowAt,
		SaleStartAt: r.SaleStartAt,
		SaleEndAt:   r.SaleEndAt,
		ShardCount:  r.ShardCount,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		Version:     r.Version,
	}
}

type categoryRow struct {
	ID         string    `db:"id"`
	ProgramID  string    `db:"program_id"`
	Name       string    `db:"name"`
	Price      int64     `db:"price"`
	TotalCount int       `db:"total_count"`
	Remaining  int       `db:"remaining"`
	HasSeatMap bool      `db:"has_seat_map"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r *categoryRow) toEntity() *program.TicketCategory {
	return &program.TicketCategory{
		ID:         r.ID,
		ProgramID:  r.ProgramID,
		Name:       r.Name,
		Price:      r.Price,
		TotalCount: r.TotalCount,
		Remaining:  r.Remaining,
		HasSeatMap: r.HasSeatMap,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// ProgramRepository は公演リポジトリのPostgreSQL実装
type ProgramRepository struct {
	db *sqlx.DB
}

// NewProgramRepository はProgramRepositoryを作成する
func NewProgramRepository(db *sqlx.DB) *ProgramRepository {
	return &ProgramRepository{db: db}
}

func (r *ProgramRepository) Create(ctx context.Context, p *program.Program) error {
	query := `INSERT INTO programs (name, description, venue, show_at, sale_start_at, sale_end_at, shard_count, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`
	err := r.db.QueryRowContext(ctx, query,
		p.Name, p.Description, p.Venue, p.ShowAt, p.SaleStartAt, p.SaleEndAt, p.ShardCount,
		p.CreatedAt, p.UpdatedAt, p.Version,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("公演作成に失敗: %w", err)
	}
	return nil
}

func (r *ProgramRepository) GetByID(ctx context.Context, id string) (*program.Program, error) {
	query := `SELECT id, name, description, venue, show_at, sale_start_at, sale_end_at, shard_count, created_at, updated_at, version
		FROM programs WHERE id = $1`
	var row programRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, program.ErrProgramNotFound
		}
		return nil, fmt.Errorf("公演取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *ProgramRepository) List(ctx context.Context, limit, offset int) ([]*program.Program, error) {
	query := `SELECT id, name, description, venue, show_at, sale_start_at, sale_end_at, shard_count, created_at, updated_at, version
		FROM programs ORDER BY show_at DESC LIMIT $1 OFFSET $2`
	var rows []programRow
	if err := r.db.SelectContext(ctx, &rows, query, limit, offset); err != nil {
		return nil, err
	}
	programs := make([]*program.Program, len(rows))
	for i, row := range rows {
		programs[i] = row.toEntity()
	}
	return programs, nil
}

// Update は楽観的ロック付きで公演を更新する
func (r *ProgramRepository) Update(ctx context.Context, p *program.Program) error {
	query := `UPDATE programs SET name = $1, description = $2, venue = $3, show_at = $4, sale_start_at = $5, sale_end_at = $6,
		updated_at = NOW(), version = version + 1
		WHERE id = $7 AND version = $8`
	result, err := r.db.ExecContext(ctx, query,
		p.Name, p.Description, p.Venue, p.ShowAt, p.SaleStartAt, p.SaleEndAt, p.ID, p.Version)
	if err != nil {
		return fmt.Errorf("公演更新に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return program.ErrOptimisticLockConflict
	}
	p.Version++
	return nil
}

func (r *ProgramRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM ticket_categories WHERE program_id = $1`, id); err != nil {
		return fmt.Errorf("チケット種別削除に失敗: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM programs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("公演削除に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return program.ErrProgramNotFound
	}
	return nil
}

func (r *ProgramRepository) CreateCategory(ctx context.Context, c *program.TicketCategory) error {
	query := `INSERT INTO ticket_categories (program_id, name, price, total_count, remaining, has_seat_map, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	err := r.db.QueryRowContext(ctx, query,
		c.ProgramID, c.Name, c.Price, c.TotalCount, c.Remaining, c.HasSeatMap, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("チケット種別作成に失敗: %w", err)
	}
	return nil
}

func (r *ProgramRepository) GetCategoryByID(ctx context.Context, id string) (*program.TicketCategory, error) {
	query := `SELECT id, program_id, name, price, total_count, remaining, has_seat_map, created_at, updated_at
		FROM ticket_categories WHERE id = $1`
	var row categoryRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, program.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("チケット種別取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *ProgramRepository) GetCategoriesByProgramID(ctx context.Context, programID string) ([]*program.TicketCategory, error) {
	query := `SELECT id, program_id, name, price, total_count, remaining, has_seat_map, created_at, updated_at
		FROM ticket_categories WHERE program_id = $1 ORDER BY price DESC`
	var rows []categoryRow
	if err := r.db.SelectContext(ctx, &rows, query, programID); err != nil {
		return nil, err
	}
	categories := make([]*program.TicketCategory, len(rows))
	for i, row := range rows {
		categories[i] = row.toEntity()
	}
	return categories, nil
}

func (r *ProgramRepository) GetRemaining(ctx context.Context, programID, categoryID string) (int, error) {
	var remaining int
	query := `SELECT remaining FROM ticket_categories WHERE id = $1 AND program_id = $2`
	if err := r.db.GetContext(ctx, &remaining, query, categoryID, programID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, program.ErrCategoryNotFound
		}
		return 0, fmt.Errorf("残数取得に失敗: %w", err)
	}
	return remaining, nil
}

func (r *ProgramRepository) UpdateRemaining(ctx context.Context, categoryID string, remaining int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE ticket_categories SET remaining = $1, updated_at = NOW() WHERE id = $2`, remaining, categoryID)
	if err != nil {
		return fmt.Errorf("残数更新に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return program.ErrCategoryNotFound
	}
	return nil
}

var _ program.Repository = (*ProgramRepository)(nil)
