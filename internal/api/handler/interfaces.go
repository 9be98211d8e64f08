package handler

import (
	"context"
	"time"

	"github.com/FGover/damai-sub000/internal/application"
	"github.com/FGover/damai-sub000/internal/domain/order"
	"github.com/FGover/damai-sub000/internal/domain/program"
	"github.com/FGover/damai-sub000/internal/domain/seat"
)

// ProgramServiceInterface は公演サービスのインターフェース
type ProgramServiceInterface interface {
	CreateProgram(ctx context.Context, input application.CreateProgramInput) (*program.Program, error)
	AddCategory(ctx context.Context, programID string, input application.CreateCategoryInput) (*program.TicketCategory, error)
	GetProgram(ctx context.Context, id string) (*program.Program, error)
	ListPrograms(ctx context.Context, limit, offset int) ([]*program.Program, error)
	GetCategories(ctx context.Context, programID string) ([]*program.TicketCategory, error)
	GetSeats(ctx context.Context, programID, categoryID string) ([]*seat.Seat, error)
	GetRemaining(ctx context.Context, programID, categoryID string) (int, error)
	UpdateProgram(ctx context.Context, input application.UpdateProgramInput) (*program.Program, error)
	DeleteProgram(ctx context.Context, id string) error
}

// OrderServiceInterface は注文サービスのインターフェース
type OrderServiceInterface interface {
	CreateOrder(ctx context.Context, input application.CreateOrderInput) (int64, error)
	GetOrder(ctx context.Context, orderNumber int64) (*order.Order, error)
	GetUserOrders(ctx context.Context, userID string, limit, offset int) ([]*order.Order, error)
	CancelOrder(ctx context.Context, orderNumber int64) (bool, error)
	ReconcileAfterPayment(ctx context.Context, orderNumber int64, outcome application.PaymentOutcome) error
	CancelExpiredUnpaidOrders(ctx context.Context, olderThan time.Duration) (int, error)
}

// OrderNumberIssuer は注文番号の採番インターフェース
type OrderNumberIssuer interface {
	Next(ctx context.Context, userID string) (int64, error)
}
