package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/FGover/damai-sub000/internal/api"
	"github.com/FGover/damai-sub000/internal/api/handler"
	apimiddleware "github.com/FGover/damai-sub000/internal/api/middleware"
	"github.com/FGover/damai-sub000/internal/application"
	"github.com/FGover/damai-sub000/internal/cache"
	"github.com/FGover/damai-sub000/internal/config"
	"github.com/FGover/damai-sub000/internal/idempotency"
	"github.com/FGover/damai-sub000/internal/infrastructure/postgres"
	redisinfra "github.com/FGover/damai-sub000/internal/infrastructure/redis"
	"github.com/FGover/damai-sub000/internal/lock"
	"github.com/FGover/damai-sub000/internal/pkg/logger"
	"github.com/FGover/damai-sub000/internal/pkg/metrics"
	"github.com/FGover/damai-sub000/internal/queue"
	"github.com/FGover/damai-sub000/internal/worker"
)

func main() {
	logger.Set(logger.NewLogger(os.Getenv("APP_ENV")))
	defer logger.Sync()

	cfg := config.Load()

	// PostgreSQL
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("データベース接続に失敗", zap.Error(err))
	}
	defer db.Close()

	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "migrations"
	}
	if err := postgres.RunMigrations(db.DB, migrationsPath); err != nil {
		logger.Fatal("マイグレーションに失敗", zap.Error(err))
	}

	// Redis
	redisClient := redisinfra.NewClient(&cfg.Redis)
	defer redisClient.Close()
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisinfra.Ping(ctx, redisClient); err != nil {
			cancel()
			logger.Fatal("Redis接続に失敗", zap.Error(err))
		}
		cancel()
	}

	m := metrics.Init()

	// ロック階層: プロセス内 → Redis分散ロック
	lockProvider := redisinfra.NewLockProviderWithTTL(redisClient, cfg.Lock.TTL, cfg.Lock.PollInterval)
	lockManager := lock.NewManager(lockProvider)

	// 3層キャッシュ
	programRepo := postgres.NewProgramRepository(db)
	seatRepo := postgres.NewSeatRepository(db)
	inventoryStore := redisinfra.NewInventoryStore(redisClient)
	localCache := cache.NewLocal(cfg.Cache.LocalCapacity)
	resolver := cache.NewResolver(
		localCache, inventoryStore, seatRepo, programRepo, lockManager,
		cfg.Cache.LocalTTL, cfg.Cache.RedisTTL, cfg.Lock.WaitTime, m,
	)

	// 在庫エンジンと冪等性ガード
	engine := redisinfra.NewMutationEngine(redisClient)
	guard := idempotency.NewGuard(redisinfra.NewMarkerStore(redisClient), lockManager)

	// 注文まわり
	orderRepo := postgres.NewOrderRepository(db, cfg.Reservation.DefaultShardCount)
	identityRepo := postgres.NewIdentityRepository(db, orderRepo)
	txManager := postgres.NewTxManager(db)
	idGen := redisinfra.NewOrderNumberGenerator(redisClient, cfg.Reservation.DefaultShardCount)

	// 遅延キャンセル確認のスケジューラー（ブローカー未起動でも起動は続行する）
	var scheduler application.DelayScheduler
	delayScheduler, err := queue.NewDelayScheduler(&cfg.RabbitMQ)
	if err != nil {
		logger.Warn("ブローカー接続に失敗、遅延キャンセルはスイーパーのみで動作します", zap.Error(err))
	} else {
		scheduler = delayScheduler
		defer delayScheduler.Close()
	}

	orderService := application.NewOrderService(
		txManager, orderRepo, seatRepo, resolver, engine, lockManager, guard,
		identityRepo, scheduler, nil,
		cfg.Reservation, cfg.Lock.WaitTime, m,
	)
	programService := application.NewProgramService(programRepo, seatRepo, resolver)

	// バックグラウンドワーカー
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := worker.NewUnpaidOrderSweeper(orderService, cfg.Reservation.SweepInterval, cfg.Reservation.PayTimeout)
	go sweeper.Start(ctx)

	if delayScheduler != nil {
		consumer := queue.NewCancelCheckConsumer(&cfg.RabbitMQ, orderService)
		go func() {
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("キャンセル確認消費者が停止", zap.Error(err))
			}
		}()
	}

	// Echo セットアップ
	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	apimiddleware.SetupMiddleware(e)
	e.Use(apimiddleware.PrometheusMiddleware(m))

	programHandler := handler.NewProgramHandler(programService)
	orderHandler := handler.NewOrderHandler(orderService, idGen)
	healthHandler := handler.NewHealthHandler()

	e.GET("/health", healthHandler.Check)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), apimiddleware.MetricsBasicAuth())

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

	// サーバー起動
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("サーバーシャットダウンエラー", zap.Error(err))
	}

	cancel()
	sweeper.Stop()

	logger.Info("サーバーが正常にシャットダウンしました")
}
