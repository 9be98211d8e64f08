package application

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/FGover/damai-sub000/internal/cache"
	"github.com/FGover/damai-sub000/internal/domain/program"
	"github.com/FGover/damai-sub000/internal/domain/seat"
	"github.com/FGover/damai-sub000/internal/pkg/logger"
)

// ProgramService は公演・チケット種別・座席の管理と照会を担う
type ProgramService struct {
	programRepo program.Repository
	seatRepo    seat.Repository
	resolver    *cache.Resolver
}

// NewProgramService は新しいProgramServiceを作成する
func NewProgramService(programRepo program.Repository, seatRepo seat.Repository, resolver *cache.Resolver) *ProgramService {
	return &ProgramService{
		programRepo: programRepo,
		seatRepo:    seatRepo,
		resolver:    resolver,
	}
}

type CreateProgramInput struct {
	Name        string
	Description string
	Venue       string
	ShowAt      time.Time
	SaleStartAt time.Time
	SaleEndAt   time.Time
	ShardCount  int
	Categories  []CreateCategoryInput
}

type CreateCategoryInput struct {
	Name       string
	Price      int64
	TotalCount int
	HasSeatMap bool
	Rows       int // HasSeatMap の場合の座席配置（Rows × Cols）
	Cols       int
}

// CreateProgram は公演とチケット種別、座席をまとめて作成する
func (s *ProgramService) CreateProgram(ctx context.Context, input CreateProgramInput) (*program.Program, error) {
	p := program.NewProgram(input.Name, input.Description, input.Venue, input.ShowAt, input.SaleStartAt, input.SaleEndAt, input.ShardCount)
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("バリデーションエラー: %w", err)
	}
	if err := s.programRepo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("公演作成に失敗しました: %w", err)
	}

	for _, ci := range input.Categories {
		if _, err := s.createCategory(ctx, p.ID, ci); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// AddCategory は既存の公演にチケット種別を追加する
func (s *ProgramService) AddCategory(ctx context.Context, programID string, input CreateCategoryInput) (*program.TicketCategory, error) {
	if _, err := s.programRepo.GetByID(ctx, programID); err != nil {
		return nil, fmt.Errorf("公演取得に失敗: %w", err)
	}
	return s.createCategory(ctx, programID, input)
}

func (s *ProgramService) createCategory(ctx context.Context, programID string, input CreateCategoryInput) (*program.TicketCategory, error) {
	totalCount := input.TotalCount
	if input.HasSeatMap {
		totalCount = input.Rows * input.Cols
	}
	cat := program.NewTicketCategory(programID, input.Name, input.Price, totalCount, input.HasSeatMap)
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("バリデーションエラー: %w", err)
	}
	if err := s.programRepo.CreateCategory(ctx, cat); err != nil {
		return nil, fmt.Errorf("チケット種別作成に失敗しました: %w", err)
	}

	if input.HasSeatMap {
		seats := make([]*seat.Seat, 0, totalCount)
		for row := 1; row <= input.Rows; row++ {
			for col := 1; col <= input.Cols; col++ {
				se := seat.NewSeat(programID, cat.ID, row, col, input.Price)
				if err := se.Validate(); err != nil {
					return nil, err
				}
				seats = append(seats, se)
			}
		}
		if err := s.seatRepo.CreateBulk(ctx, seats); err != nil {
			return nil, fmt.Errorf("座席作成に失敗しました: %w", err)
		}
	}
	return cat, nil
}

// GetProgram はIDから公演を取得する
func (s *ProgramService) GetProgram(ctx context.Context, id string) (*program.Program, error) {
	return s.resolver.GetProgram(ctx, id)
}

// ListPrograms は公演一覧を取得する
func (s *ProgramService) ListPrograms(ctx context.Context, limit, offset int) ([]*program.Program, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.programRepo.List(ctx, limit, offset)
}

// GetCategories は公演のチケット種別一覧を取得する
func (s *ProgramService) GetCategories(ctx context.Context, programID string) ([]*program.TicketCategory, error) {
	return s.resolver.GetProgramCategories(ctx, programID)
}

// GetSeats はチケット種別の座席一覧をキャッシュ経由で取得する
func (s *ProgramService) GetSeats(ctx context.Context, programID, categoryID string) ([]*seat.Seat, error) {
	return s.resolver.GetSeats(ctx, programID, categoryID)
}

// GetRemaining はチケット種別の残数をキャッシュ経由で取得する
func (s *ProgramService) GetRemaining(ctx context.Context, programID, categoryID string) (int, error) {
	return s.resolver.GetRemaining(ctx, programID, categoryID)
}

type UpdateProgramInput struct {
	ID          string
	Name        string
	Description string
	Venue       string
	ShowAt      time.Time
	SaleStartAt time.Time
	SaleEndAt   time.Time
}

// UpdateProgram は公演を更新しキャッシュを無効化する
func (s *ProgramService) UpdateProgram(ctx context.Context, input UpdateProgramInput) (*program.Program, error) {
	p, err := s.programRepo.GetByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	p.Name = input.Name
	p.Description = input.Description
	p.Venue = input.Venue
	p.ShowAt = input.ShowAt
	p.SaleStartAt = input.SaleStartAt
	p.SaleEndAt = input.SaleEndAt
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("バリデーションエラー: %w", err)
	}
	if err := s.programRepo.Update(ctx, p); err != nil {
		return nil, err
	}

	if err := s.invalidateProgram(ctx, p.ID); err != nil {
		logger.Warn("公演キャッシュの無効化に失敗",
			zap.String("program_id", p.ID),
			zap.Error(err),
		)
	}
	return p, nil
}

// DeleteProgram は公演と配下の座席を削除し、全階層のキャッシュを破棄する
func (s *ProgramService) DeleteProgram(ctx context.Context, id string) error {
	if err := s.invalidateProgram(ctx, id); err != nil {
		return fmt.Errorf("公演キャッシュの無効化に失敗: %w", err)
	}
	if err := s.seatRepo.DeleteByProgramID(ctx, id); err != nil {
		return fmt.Errorf("座席削除に失敗: %w", err)
	}
	return s.programRepo.Delete(ctx, id)
}

func (s *ProgramService) invalidateProgram(ctx context.Context, programID string) error {
	categories, err := s.programRepo.GetCategoriesByProgramID(ctx, programID)
	if err != nil {
		return err
	}
	ids := make([]string, len(categories))
	for i, cat := range categories {
		ids[i] = cat.ID
	}
	return s.resolver.InvalidateProgram(ctx, programID, ids)
}
