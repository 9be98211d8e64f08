package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/FGover/damai-sub000/internal/api"
	"github.com/FGover/damai-sub000/internal/api/handler"
	"github.com/FGover/damai-sub000/internal/api/middleware"
	"github.com/FGover/damai-sub000/internal/application"
	"github.com/FGover/damai-sub000/internal/cache"
	"github.com/FGover/damai-sub000/internal/config"
	"github.com/FGover/damai-sub000/internal/idempotency"
	"github.com/FGover/damai-sub000/internal/infrastructure/postgres"
	redisinfra "github.com/FGover/damai-sub000/internal/infrastructure/redis"
	"github.com/FGover/damai-sub000/internal/lock"
)

// TestServer はE2Eテスト用のサーバー
type TestServer struct {
	Echo    *echo.Echo
	Cleanup func()
}

// NewTestServer は本番と同じ構成（ブローカーを除く）のテスト用サーバーを作成する
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	cfg := config.Load()

	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		t.Skipf("DB接続エラー: %v", err)
	}
	if err := postgres.RunMigrations(db.DB, "../migrations"); err != nil {
		t.Skipf("マイグレーションエラー: %v", err)
	}

	redisClient := redisinfra.NewClient(&cfg.Redis)
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := redisinfra.Ping(pingCtx, redisClient); err != nil {
		db.Close()
		t.Skipf("Redis接続エラー: %v", err)
	}

	lockProvider := redisinfra.NewLockProviderWithTTL(redisClient, 10*time.Second, 10*time.Millisecond)
	lockManager := lock.NewManager(lockProvider)

	programRepo := postgres.NewProgramRepository(db)
	seatRepo := postgres.NewSeatRepository(db)
	orderRepo := postgres.NewOrderRepository(db, cfg.Reservation.DefaultShardCount)
	identityRepo := postgres.NewIdentityRepository(db, orderRepo)
	txManager := postgres.NewTxManager(db)

	inventoryStore := redisinfra.NewInventoryStore(redisClient)
	resolver := cache.NewResolver(
		cache.NewLocal(cfg.Cache.LocalCapacity),
		inventoryStore, seatRepo, programRepo, lockManager,
		cfg.Cache.LocalTTL, cfg.Cache.RedisTTL, time.Second, nil,
	)
	engine := redisinfra.NewMutationEngine(redisClient)
	guard := idempotency.NewGuard(redisinfra.NewMarkerStore(redisClient), lockManager)
	idGen := redisinfra.NewOrderNumberGenerator(redisClient, cfg.Reservation.DefaultShardCount)

	reservationCfg := cfg.Reservation
	reservationCfg.MaxPerUser = 10

	orderService := application.NewOrderService(
		txManager, orderRepo, seatRepo, resolver, engine, lockManager, guard,
		identityRepo, nil, nil, reservationCfg, time.Second, nil,
	)
	programService := application.NewProgramService(programRepo, seatRepo, resolver)

	programHandler := handler.NewProgramHandler(programService)
	orderHandler := handler.NewOrderHandler(orderService, idGen)
	healthHandler := handler.NewHealthHandler()

	e := echo.New()
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	middleware.SetupMiddleware(e)

	e.GET("/health", healthHandler.Check)

	v1 := e.Group("/api/v1")
	v1.POST("/programs", programHandler.Create)
	v1.GET("/programs", programHandler.List)
	v1.GET("/programs/:id", programHandler.GetByID)
	v1.PUT("/programs/:id", programHandler.Update)
	v1.DELETE("/programs/:id", programHandler.Delete)
	v1.POST("/programs/:id/categories", programHandler.AddCategory)
	v1.GET("/programs/:id/categories", programHandler.GetCategories)
	v1.GET("/programs/:id/categories/:categoryID/seats", programHandler.GetSeats)
	v1.GET("/programs/:id/categories/:categoryID/remaining", programHandler.GetRemaining)

	v1.POST("/orders", orderHandler.Create)
	v1.GET("/orders", orderHandler.GetUserOrders)
	v1.GET("/orders/:number", orderHandler.GetByNumber)
	v1.POST("/orders/:number/cancel", orderHandler.Cancel)
	v1.POST("/orders/:number/payment", orderHandler.PaymentCallback)

	cleanup := func() {
		db.Exec("DELETE FROM order_items_0")
		db.Exec("DELETE FROM order_items_1")
		db.Exec("DELETE FROM order_items_2")
		db.Exec("DELETE FROM order_items_3")
		db.Exec("DELETE FROM orders_0")
		db.Exec("DELETE FROM orders_1")
		db.Exec("DELETE FROM orders_2")
		db.Exec("DELETE FROM orders_3")
		db.Exec("DELETE FROM ticket_holders")
		db.Exec("DELETE FROM seats")
		db.Exec("DELETE FROM ticket_categories")
		db.Exec("DELETE FROM programs")
		redisClient.Close()
		db.Close()
	}

	return &TestServer{Echo: e, Cleanup: cleanup}
}

// Request はHTTPリクエストを実行する
func (s *TestServer) Request(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody []byte
	if body != nil {
		reqBody, _ = json.Marshal(body)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}
