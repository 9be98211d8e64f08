package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/FGover/damai-sub000/internal/application"
	"github.com/FGover/damai-sub000/internal/domain/order"
)

type OrderHandler struct {
	service OrderServiceInterface
	issuer  OrderNumberIssuer
}

func NewOrderHandler(s OrderServiceInterface, issuer OrderNumberIssuer) *OrderHandler {
	return &OrderHandler{service: s, issuer: issuer}
}

type CreateOrderRequest struct {
	ProgramID  string   `json:"program_id" validate:"required" example:"550e8400-e29b-41d4-a716-446655440000"`
	SeatIDs    []string `json:"seat_ids,omitempty" example:"seat-1,seat-2"`
	CategoryID string   `json:"category_id,omitempty" example:"cat-1"`
	Quantity   int      `json:"quantity,omitempty" example:"2"`
	HolderIDs  []string `json:"holder_ids,omitempty" example:"holder-1,holder-2"`
	TotalPrice int64    `json:"total_price,omitempty" example:"16000"`
	// 省略時はサーバー側で採番する。再送時は同じ番号を指定する
	OrderNumber int64 `json:"order_number,omitempty" example:"100004"`
}

type LineItemResponse struct {
	SeatID     string `json:"seat_id,omitempty"`
	CategoryID string `json:"category_id"`
	HolderID   string `json:"holder_id"`
	Price      int64  `json:"price"`
}

type OrderResponse struct {
	OrderNumber int64              `json:"order_number" example:"100004"`
	UserID      string             `json:"user_id" example:"user-123"`
	ProgramID   string             `json:"program_id"`
	TotalPrice  int64              `json:"total_price" example:"16000"`
	Status      string             `json:"status" example:"no_pay"`
	LineItems   []LineItemResponse `json:"line_items,omitempty"`
	PayAt       *time.Time         `json:"pay_at,omitempty"`
	CancelAt    *time.Time         `json:"cancel_at,omitempty"`
	RefundAt    *time.Time         `json:"refund_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

func toOrderResponse(o *order.Order) OrderResponse {
	items := make([]LineItemResponse, len(o.LineItems))
	for i, it := range o.LineItems {
		items[i] = LineItemResponse{
			SeatID: it.SeatID, CategoryID: it.CategoryID,
			HolderID: it.HolderID, Price: it.Price,
		}
	}
	return OrderResponse{
		OrderNumber: o.OrderNumber, UserID: o.UserID, ProgramID: o.ProgramID,
		TotalPrice: o.TotalPrice, Status: string(o.Status), LineItems: items,
		PayAt: o.PayAt, CancelAt: o.CancelAt, RefundAt: o.RefundAt,
		CreatedAt: o.CreatedAt,
	}
}

// Create godoc
// @Summary 注文を作成
// @Description 座席を予約して注文を作成します（支払いは別途）
// @Tags orders
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param request body CreateOrderRequest true "注文情報"
// @Success 201 {object} OrderResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 409 {object} map[string]string "在庫不足または競合"
// @Router /orders [post]
func (h *OrderHandler) Create(c echo.Context) error {
	userID := c.Request().Header.Get("X-User-ID")
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	var req CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	orderNumber := req.OrderNumber
	if orderNumber == 0 {
		n, err := h.issuer.Next(ctx, userID)
		if err != nil {
			return err
		}
		orderNumber = n
	}

	if _, err := h.service.CreateOrder(ctx, application.CreateOrderInput{
		OrderNumber:      orderNumber,
		UserID:           userID,
		ProgramID:        req.ProgramID,
		SeatIDs:          req.SeatIDs,
		CategoryID:       req.CategoryID,
		Quantity:         req.Quantity,
		HolderIDs:        req.HolderIDs,
		ClientTotalPrice: req.TotalPrice,
	}); err != nil {
		return err
	}

	o, err := h.service.GetOrder(ctx, orderNumber)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toOrderResponse(o))
}

// GetByNumber godoc
// @Summary 注文を取得
// @Description 注文番号から注文を取得します
// @Tags orders
// @Produce json
// @Param number path int true "注文番号"
// @Success 200 {object} OrderResponse
// @Failure 404 {object} map[string]string
// @Router /orders/{number} [get]
func (h *OrderHandler) GetByNumber(c echo.Context) error {
	orderNumber, err := parseOrderNumber(c)
	if err != nil {
		return err
	}
	o, err := h.service.GetOrder(c.Request().Context(), orderNumber)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toOrderResponse(o))
}

// GetUserOrders godoc
// @Summary ユーザーの注文一覧を取得
// @Tags orders
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} OrderResponse
// @Failure 401 {object} map[string]string
// @Router /orders [get]
func (h *OrderHandler) GetUserOrders(c echo.Context) error {
	userID := c.Request().Header.Get("X-User-ID")
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	orders, err := h.service.GetUserOrders(c.Request().Context(), userID, limit, offset)
	if err != nil {
		return err
	}
	resp := make([]OrderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}
	return c.JSON(http.StatusOK, resp)
}

// Cancel godoc
// @Summary 注文をキャンセル
// @Description 未払いの注文をキャンセルし、在庫を復元します
// @Tags orders
// @Produce json
// @Param number path int true "注文番号"
// @Success 200 {object} OrderResponse
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /orders/{number}/cancel [post]
func (h *OrderHandler) Cancel(c echo.Context) error {
	orderNumber, err := parseOrderNumber(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if _, err := h.service.CancelOrder(ctx, orderNumber); err != nil {
		return err
	}
	o, err := h.service.GetOrder(ctx, orderNumber)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toOrderResponse(o))
}

type PaymentCallbackRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=success failed refunded" example:"success"`
}

// PaymentCallback godoc
// @Summary 決済結果を反映
// @Description 決済コラボレーターからのコールバックを受けて注文と在庫を精算します
// @Tags orders
// @Accept json
// @Produce json
// @Param number path int true "注文番号"
// @Param request body PaymentCallbackRequest true "決済結果"
// @Success 200 {object} OrderResponse
// @Failure 404 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /orders/{number}/payment [post]
func (h *OrderHandler) PaymentCallback(c echo.Context) error {
	orderNumber, err := parseOrderNumber(c)
	if err != nil {
		return err
	}
	var req PaymentCallbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	if err := h.service.ReconcileAfterPayment(ctx, orderNumber, application.PaymentOutcome(req.Outcome)); err != nil {
		return err
	}
	o, err := h.service.GetOrder(ctx, orderNumber)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toOrderResponse(o))
}

func parseOrderNumber(c echo.Context) (int64, error) {
	orderNumber, err := strconv.ParseInt(c.Param("number"), 10, 64)
	if err != nil || orderNumber <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "注文番号が不正です")
	}
	return orderNumber, nil
}
