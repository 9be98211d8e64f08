package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FGover/damai-sub000/internal/application"
	"github.com/FGover/damai-sub000/internal/domain/order"
)

// MockOrderService はOrderServiceInterfaceのモック
type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) CreateOrder(ctx context.Context, input application.CreateOrderInput) (int64, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOrderService) GetOrder(ctx context.Context, orderNumber int64) (*order.Order, error) {
	args := m.Called(ctx, orderNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) GetUserOrders(ctx context.Context, userID string, limit, offset int) ([]*order.Order, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*order.Order), args.Error(1)
}

func (m *MockOrderService) CancelOrder(ctx context.Context, orderNumber int64) (bool, error) {
	args := m.Called(ctx, orderNumber)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderService) ReconcileAfterPayment(ctx context.Context, orderNumber int64, outcome application.PaymentOutcome) error {
	args := m.Called(ctx, orderNumber, outcome)
	return args.Error(0)
}

func (m *MockOrderService) CancelExpiredUnpaidOrders(ctx context.Context, olderThan time.Duration) (int, error) {
	args := m.Called(ctx, olderThan)
	return args.Int(0), args.Error(1)
}

// MockOrderNumberIssuer はOrderNumberIssuerのモック
type MockOrderNumberIssuer struct {
	mock.Mock
}

func (m *MockOrderNumberIssuer) Next(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func testOrder(orderNumber int64) *order.Order {
	return &order.Order{
		OrderNumber: orderNumber,
		UserID:      "user-123",
		ProgramID:   "prog-1",
		TotalPrice:  16000,
		Status:      order.StatusNoPay,
		LineItems: []*order.LineItem{
			{SeatID: "seat-1", CategoryID: "cat-1", HolderID: "user-123", Price: 8000},
			{SeatID: "seat-2", CategoryID: "cat-1", HolderID: "user-123", Price: 8000},
		},
		CreatedAt: time.Now(),
	}
}

func TestOrderHandler_Create(t *testing.T) {
	e := NewTestEcho()

	t.Run("注文番号省略時はサーバー側で採番する", func(t *testing.T) {
		mockService := new(MockOrderService)
		mockIssuer := new(MockOrderNumberIssuer)

		mockIssuer.On("Next", mock.Anything, "user-123").Return(int64(100004), nil)
		mockService.On("CreateOrder", mock.Anything, mock.MatchedBy(func(in application.CreateOrderInput) bool {
			return in.OrderNumber == 100004 && in.UserID == "user-123"
		})).Return(int64(100004), nil)
		mockService.On("GetOrder", mock.Anything, int64(100004)).Return(testOrder(100004), nil)

		handler := NewOrderHandler(mockService, mockIssuer)

		reqBody := `{"program_id": "prog-1", "category_id": "cat-1", "quantity": 2}`
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(reqBody))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set("X-User-ID", "user-123")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.Create(c)
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp OrderResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, int64(100004), resp.OrderNumber)
		assert.Equal(t, "no_pay", resp.Status)
		assert.Len(t, resp.LineItems, 2)
		mockService.AssertExpectations(t)
		mockIssuer.AssertExpectations(t)
	})

	t.Run("注文番号指定時は採番しない", func(t *testing.T) {
		mockService := new(MockOrderService)
		mockIssuer := new(MockOrderNumberIssuer)

		mockService.On("CreateOrder", mock.Anything, mock.MatchedBy(func(in application.CreateOrderInput) bool {
			return in.OrderNumber == 200008
		})).Return(int64(200008), nil)
		mockService.On("GetOrder", mock.Anything, int64(200008)).Return(testOrder(200008), nil)

		handler := NewOrderHandler(mockService, mockIssuer)

		reqBody := `{"program_id": "prog-1", "seat_ids": ["seat-1"], "order_number": 200008}`
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(reqBody))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set("X-User-ID", "user-123")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.Create(c)
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, rec.Code)
		mockIssuer.AssertNotCalled(t, "Next")
	})

	t.Run("ユーザーIDヘッダーなしは401", func(t *testing.T) {
		handler := NewOrderHandler(new(MockOrderService), new(MockOrderNumberIssuer))

		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"program_id": "prog-1"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.Create(c)
		require.Error(t, err)
		httpErr, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	})

	t.Run("公演ID未指定はバリデーションエラー", func(t *testing.T) {
		handler := NewOrderHandler(new(MockOrderService), new(MockOrderNumberIssuer))

		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"quantity": 2}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set("X-User-ID", "user-123")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.Create(c)
		assert.Error(t, err)
	})

	t.Run("サービスのエラーはそのまま返す", func(t *testing.T) {
		mockService := new(MockOrderService)
		mockIssuer := new(MockOrderNumberIssuer)
		mockIssuer.On("Next", mock.Anything, "user-123").Return(int64(100005), nil)
		mockService.On("CreateOrder", mock.Anything, mock.Anything).
			Return(int64(0), application.ErrNotEnoughSeats)

		handler := NewOrderHandler(mockService, mockIssuer)

		reqBody := `{"program_id": "prog-1", "category_id": "cat-1", "quantity": 100}`
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(reqBody))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set("X-User-ID", "user-123")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.Create(c)
		assert.ErrorIs(t, err, application.ErrNotEnoughSeats)
	})
}

func TestOrderHandler_GetByNumber(t *testing.T) {
	e := NewTestEcho()

	t.Run("注文を取得できる", func(t *testing.T) {
		mockService := new(MockOrderService)
		mockService.On("GetOrder", mock.Anything, int64(100004)).Return(testOrder(100004), nil)

		handler := NewOrderHandler(mockService, new(MockOrderNumberIssuer))

		req := httptest.NewRequest(http.MethodGet, "/orders/100004", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("number")
		c.SetParamValues("100004")

		err := handler.GetByNumber(c)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp OrderResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, int64(100004), resp.OrderNumber)
	})

	t.Run("不正な注文番号は400", func(t *testing.T) {
		handler := NewOrderHandler(new(MockOrderService), new(MockOrderNumberIssuer))

		req := httptest.NewRequest(http.MethodGet, "/orders/abc", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("number")
		c.SetParamValues("abc")

		err := handler.GetByNumber(c)
		require.Error(t, err)
		httpErr, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, httpErr.Code)
	})

	t.Run("存在しない注文はエラーを伝播する", func(t *testing.T) {
		mockService := new(MockOrderService)
		mockService.On("GetOrder", mock.Anything, int64(999)).Return(nil, order.ErrOrderNotFound)

		handler := NewOrderHandler(mockService, new(MockOrderNumberIssuer))

		req := httptest.NewRequest(http.MethodGet, "/orders/999", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("number")
		c.SetParamValues("999")

		err := handler.GetByNumber(c)
		assert.ErrorIs(t, err, order.ErrOrderNotFound)
	})
}

func TestOrderHandler_GetUserOrders(t *testing.T) {
	e := NewTestEcho()

	t.Run("ユーザーの注文一覧を取得できる", func(t *testing.T) {
		mockService := new(MockOrderService)
		mockService.On("GetUserOrders", mock.Anything, "user-123", 10, 0).
			Return([]*order.Order{testOrder(100004), testOrder(100008)}, nil)

		handler := NewOrderHandler(mockService, new(MockOrderNumberIssuer))

		req := httptest.NewRequest(http.MethodGet, "/orders?limit=10", nil)
		req.Header.Set("X-User-ID", "user-123")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.GetUserOrders(c)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp []OrderResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp, 2)
	})

	t.Run("ユーザーIDヘッダーなしは401", func(t *testing.T) {
		handler := NewOrderHandler(new(MockOrderService), new(MockOrderNumberIssuer))

		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.GetUserOrders(c)
		require.Error(t, err)
		httpErr, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	})
}

func TestOrderHandler_Cancel(t *testing.T) {
	e := NewTestEcho()

	t.Run("注文をキャンセルできる", func(t *testing.T) {
		mockService := new(MockOrderService)
		cancelled := testOrder(100004)
		cancelled.Status = order.StatusCancel
		mockService.On("CancelOrder", mock.Anything, int64(100004)).Return(true, nil)
		mockService.On("GetOrder", mock.Anything, int64(100004)).Return(cancelled, nil)

		handler := NewOrderHandler(mockService, new(MockOrderNumberIssuer))

		req := httptest.NewRequest(http.MethodPost, "/orders/100004/cancel", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("number")
		c.SetParamValues("100004")

		err := handler.Cancel(c)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp OrderResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "cancel", resp.Status)
	})
}

func TestOrderHandler_PaymentCallback(t *testing.T) {
	e := NewTestEcho()

	t.Run("決済成功を反映できる", func(t *testing.T) {
		mockService := new(MockOrderService)
		paid := testOrder(100004)
		paid.Status = order.StatusPaid
		mockService.On("ReconcileAfterPayment", mock.Anything, int64(100004), application.PaymentOutcomeSuccess).
			Return(nil)
		mockService.On("GetOrder", mock.Anything, int64(100004)).Return(paid, nil)

		handler := NewOrderHandler(mockService, new(MockOrderNumberIssuer))

		req := httptest.NewRequest(http.MethodPost, "/orders/100004/payment", strings.NewReader(`{"outcome": "success"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("number")
		c.SetParamValues("100004")

		err := handler.PaymentCallback(c)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp OrderResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "paid", resp.Status)
		mockService.AssertExpectations(t)
	})

	t.Run("不明な決済結果はバリデーションエラー", func(t *testing.T) {
		handler := NewOrderHandler(new(MockOrderService), new(MockOrderNumberIssuer))

		req := httptest.NewRequest(http.MethodPost, "/orders/100004/payment", strings.NewReader(`{"outcome": "unknown"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("number")
		c.SetParamValues("100004")

		err := handler.PaymentCallback(c)
		assert.Error(t, err)
	})
}
