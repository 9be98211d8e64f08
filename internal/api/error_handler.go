package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/FGover/damai-sub000/internal/application"
	"github.com/FGover/damai-sub000/internal/domain/order"
	"github.com/FGover/damai-sub000/internal/domain/program"
	"github.com/FGover/damai-sub000/internal/domain/seat"
	"github.com/FGover/damai-sub000/internal/idempotency"
	redisinfra "github.com/FGover/damai-sub000/internal/infrastructure/redis"
	"github.com/FGover/damai-sub000/internal/lock"
	"github.com/FGover/damai-sub000/internal/pkg/logger"
)

// ErrorResponse はエラーレスポンスの統一フォーマット
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// CustomHTTPErrorHandler はカスタムエラーハンドラー
// ドメインエラーをHTTPステータスへ写像する。競合（ロック・重複・売り切れ）は
// 409、検証エラーは422、未検出は404を返す。
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code, message := mapError(err)

	// エラーログを出力（5xx エラーの場合）
	if code >= 500 {
		logger.Error("サーバーエラー",
			zap.Int("status", code),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
	}

	if err := c.JSON(code, ErrorResponse{
		Error: message,
		Code:  code,
	}); err != nil {
		logger.Error("エラーレスポンス送信失敗", zap.Error(err))
	}
}

func mapError(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if m, ok := he.Message.(string); ok {
			return he.Code, m
		}
		return he.Code, http.StatusText(he.Code)
	}

	switch {
	case errors.Is(err, lock.ErrResourceBusy),
		errors.Is(err, idempotency.ErrDuplicateOperation),
		errors.Is(err, redisinfra.ErrInsufficientInventory),
		errors.Is(err, redisinfra.ErrSeatStateChanged),
		errors.Is(err, seat.ErrSeatNotAvailable),
		errors.Is(err, order.ErrDuplicateOrderNumber),
		errors.Is(err, application.ErrNotEnoughSeats),
		errors.Is(err, program.ErrOptimisticLockConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, program.ErrProgramNotFound),
		errors.Is(err, program.ErrCategoryNotFound),
		errors.Is(err, seat.ErrSeatNotFound),
		errors.Is(err, order.ErrOrderNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, application.ErrInvalidQuantity),
		errors.Is(err, application.ErrNoSeatsSelected),
		errors.Is(err, application.ErrDuplicateSeatID),
		errors.Is(err, application.ErrPurchaseLimitExceeded),
		errors.Is(err, application.ErrPriceTampered),
		errors.Is(err, application.ErrInvalidTicketHolder),
		errors.Is(err, application.ErrHolderCountMismatch),
		errors.Is(err, program.ErrProgramNotOnSale):
		return http.StatusUnprocessableEntity, err.Error()
	}
	return http.StatusInternalServerError, "内部サーバーエラー"
}
