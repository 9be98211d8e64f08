//go:build integration
// +build integration

package application

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FGover/damai-sub000/internal/cache"
	"github.com/FGover/damai-sub000/internal/config"
	"github.com/FGover/damai-sub000/internal/domain/order"
	"github.com/FGover/damai-sub000/internal/idempotency"
	"github.com/FGover/damai-sub000/internal/infrastructure/postgres"
	redisinfra "github.com/FGover/damai-sub000/internal/infrastructure/redis"
	"github.com/FGover/damai-sub000/internal/lock"
)

func setupTestEnv(t *testing.T) (*OrderService, *ProgramService, *redisinfra.OrderNumberGenerator, func()) {
	cfg := config.Load()

	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		t.Skipf("DB接続エラー: %v", err)
	}
	if err := postgres.RunMigrations(db.DB, "../../migrations"); err != nil {
		t.Skipf("マイグレーションエラー: %v", err)
	}

	redisClient := redisinfra.NewClient(&cfg.Redis)
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := redisinfra.Ping(pingCtx, redisClient); err != nil {
		t.Skipf("Redis接続エラー: %v", err)
	}

	lockProvider := redisinfra.NewLockProviderWithTTL(redisClient, 10*time.Second, 10*time.Millisecond)
	lockManager := lock.NewManager(lockProvider)

	programRepo := postgres.NewProgramRepository(db)
	seatRepo := postgres.NewSeatRepository(db)
	orderRepo := postgres.NewOrderRepository(db, cfg.Reservation.DefaultShardCount)
	identityRepo := postgres.NewIdentityRepository(db, orderRepo)
	txManager := postgres.NewTxManager(db)

	store := redisinfra.NewInventoryStore(redisClient)
	resolver := cache.NewResolver(
		cache.NewLocal(cfg.Cache.LocalCapacity),
		store, seatRepo, programRepo, lockManager,
		cfg.Cache.LocalTTL, cfg.Cache.RedisTTL, time.Second, nil,
	)
	engine := redisinfra.NewMutationEngine(redisClient)
	guard := idempotency.NewGuard(redisinfra.NewMarkerStore(redisClient), lockManager)

	reservationCfg := cfg.Reservation
	reservationCfg.MaxPerUser = 10

	orderService := NewOrderService(
		txManager, orderRepo, seatRepo, resolver, engine, lockManager, guard,
		identityRepo, nil, nil, reservationCfg, time.Second, nil,
	)
	programService := NewProgramService(programRepo, seatRepo, resolver)
	orderNumbers := redisinfra.NewOrderNumberGenerator(redisClient, cfg.Reservation.DefaultShardCount)

	cleanup := func() {
		for i := 0; i < cfg.Reservation.DefaultShardCount; i++ {
			db.Exec(fmt.Sprintf("DELETE FROM order_items_%d", i))
			db.Exec(fmt.Sprintf("DELETE FROM orders_%d", i))
		}
		db.Exec("DELETE FROM ticket_holders")
		db.Exec("DELETE FROM seats")
		db.Exec("DELETE FROM ticket_categories")
		db.Exec("DELETE FROM programs")
		redisClient.Close()
		db.Close()
	}

	return orderService, programService, orderNumbers, cleanup
}

// createTestProgram は販売中の公演を作成する
func createTestProgram(t *testing.T, programService *ProgramService, categories []CreateCategoryInput) string {
	t.Helper()
	ctx := context.Background()
	p, err := programService.CreateProgram(ctx, CreateProgramInput{
		Name:        "統合テスト公演",
		Venue:       "テスト会場",
		ShowAt:      time.Now().Add(48 * time.Hour),
		SaleStartAt: time.Now().Add(-time.Hour),
		SaleEndAt:   time.Now().Add(24 * time.Hour),
		ShardCount:  4,
		Categories:  categories,
	})
	require.NoError(t, err)
	return p.ID
}

func TestOrderFlow_Integration(t *testing.T) {
	orderService, programService, orderNumbers, cleanup := setupTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	programID := createTestProgram(t, programService, []CreateCategoryInput{
		{Name: "S席", Price: 8000, HasSeatMap: true, Rows: 2, Cols: 5},
	})

	categories, err := programService.GetCategories(ctx, programID)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	categoryID := categories[0].ID

	orderNumber, err := orderNumbers.Next(ctx, "user-flow")
	require.NoError(t, err)

	t.Run("枚数指定の注文が成立する", func(t *testing.T) {
		got, err := orderService.CreateOrder(ctx, CreateOrderInput{
			OrderNumber: orderNumber,
			UserID:      "user-flow",
			ProgramID:   programID,
			CategoryID:  categoryID,
			Quantity:    2,
		})
		require.NoError(t, err)
		assert.Equal(t, orderNumber, got)

		o, err := orderService.GetOrder(ctx, orderNumber)
		require.NoError(t, err)
		assert.Equal(t, order.StatusNoPay, o.Status)
		assert.Len(t, o.LineItems, 2)
		assert.Equal(t, int64(16000), o.TotalPrice)

		remaining, err := programService.GetRemaining(ctx, programID, categoryID)
		require.NoError(t, err)
		assert.Equal(t, 8, remaining)
	})

	t.Run("同一注文番号の再送は重複として棄却される", func(t *testing.T) {
		_, err := orderService.CreateOrder(ctx, CreateOrderInput{
			OrderNumber: orderNumber,
			UserID:      "user-flow",
			ProgramID:   programID,
			CategoryID:  categoryID,
			Quantity:    2,
		})
		assert.ErrorIs(t, err, idempotency.ErrDuplicateOperation)

		remaining, err := programService.GetRemaining(ctx, programID, categoryID)
		require.NoError(t, err)
		assert.Equal(t, 8, remaining, "重複リクエストは在庫を動かさないこと")
	})

	t.Run("決済成功で注文と座席が確定する", func(t *testing.T) {
		require.NoError(t, orderService.ReconcileAfterPayment(ctx, orderNumber, PaymentOutcomeSuccess))

		o, err := orderService.GetOrder(ctx, orderNumber)
		require.NoError(t, err)
		assert.Equal(t, order.StatusPaid, o.Status)

		// 支払い確定では残数は戻らない
		remaining, err := programService.GetRemaining(ctx, programID, categoryID)
		require.NoError(t, err)
		assert.Equal(t, 8, remaining)
	})

	t.Run("返金で在庫が復元される", func(t *testing.T) {
		require.NoError(t, orderService.ReconcileAfterPayment(ctx, orderNumber, PaymentOutcomeRefunded))

		o, err := orderService.GetOrder(ctx, orderNumber)
		require.NoError(t, err)
		assert.Equal(t, order.StatusRefund, o.Status)

		remaining, err := programService.GetRemaining(ctx, programID, categoryID)
		require.NoError(t, err)
		assert.Equal(t, 10, remaining)
	})
}

func TestOrderCancel_Integration(t *testing.T) {
	orderService, programService, orderNumbers, cleanup := setupTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	programID := createTestProgram(t, programService, []CreateCategoryInput{
		{Name: "A席", Price: 5000, HasSeatMap: true, Rows: 1, Cols: 4},
	})
	categories, err := programService.GetCategories(ctx, programID)
	require.NoError(t, err)
	categoryID := categories[0].ID

	orderNumber, err := orderNumbers.Next(ctx, "user-cancel")
	require.NoError(t, err)

	_, err = orderService.CreateOrder(ctx, CreateOrderInput{
		OrderNumber: orderNumber,
		UserID:      "user-cancel",
		ProgramID:   programID,
		CategoryID:  categoryID,
		Quantity:    3,
	})
	require.NoError(t, err)

	t.Run("キャンセルで在庫が復元される", func(t *testing.T) {
		cancelled, err := orderService.CancelOrder(ctx, orderNumber)
		require.NoError(t, err)
		assert.True(t, cancelled)

		o, err := orderService.GetOrder(ctx, orderNumber)
		require.NoError(t, err)
		assert.Equal(t, order.StatusCancel, o.Status)

		remaining, err := programService.GetRemaining(ctx, programID, categoryID)
		require.NoError(t, err)
		assert.Equal(t, 4, remaining)
	})

	t.Run("終端状態の注文の再キャンセルはfalse", func(t *testing.T) {
		cancelled, err := orderService.CancelOrder(ctx, orderNumber)
		require.NoError(t, err)
		assert.False(t, cancelled)
	})

	t.Run("キャンセル後は同じ座席を再度予約できる", func(t *testing.T) {
		next, err := orderNumbers.Next(ctx, "user-cancel-2")
		require.NoError(t, err)

		_, err = orderService.CreateOrder(ctx, CreateOrderInput{
			OrderNumber: next,
			UserID:      "user-cancel-2",
			ProgramID:   programID,
			CategoryID:  categoryID,
			Quantity:    4,
		})
		require.NoError(t, err)
	})
}

func TestConcurrentOrders_Integration(t *testing.T) {
	orderService, programService, orderNumbers, cleanup := setupTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	t.Run("カウンタ種別の並行注文は在庫を超えない", func(t *testing.T) {
		const capacity = 10
		const attempts = 50

		programID := createTestProgram(t, programService, []CreateCategoryInput{
			{Name: "立ち見", Price: 3000, TotalCount: capacity, HasSeatMap: false},
		})
		categories, err := programService.GetCategories(ctx, programID)
		require.NoError(t, err)
		categoryID := categories[0].ID

		var success int32
		var wg sync.WaitGroup
		wg.Add(attempts)
		for i := 0; i < attempts; i++ {
			go func(i int) {
				defer wg.Done()
				userID := fmt.Sprintf("user-conc-%d", i)
				orderNumber, err := orderNumbers.Next(ctx, userID)
				if err != nil {
					t.Errorf("注文番号の採番に失敗: %v", err)
					return
				}
				_, err = orderService.CreateOrder(ctx, CreateOrderInput{
					OrderNumber: orderNumber,
					UserID:      userID,
					ProgramID:   programID,
					CategoryID:  categoryID,
					Quantity:    1,
				})
				if err == nil {
					atomic.AddInt32(&success, 1)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(capacity), success, "成功数は在庫数と一致すること")

		remaining, err := programService.GetRemaining(ctx, programID, categoryID)
		require.NoError(t, err)
		assert.Equal(t, 0, remaining)
	})

	t.Run("1席への並行予約は1件のみ成功する", func(t *testing.T) {
		programID := createTestProgram(t, programService, []CreateCategoryInput{
			{Name: "VIP", Price: 20000, HasSeatMap: true, Rows: 1, Cols: 1},
		})
		categories, err := programService.GetCategories(ctx, programID)
		require.NoError(t, err)
		seats, err := programService.GetSeats(ctx, programID, categories[0].ID)
		require.NoError(t, err)
		require.Len(t, seats, 1)
		seatID := seats[0].ID

		const attempts = 10
		var success int32
		var wg sync.WaitGroup
		wg.Add(attempts)
		for i := 0; i < attempts; i++ {
			go func(i int) {
				defer wg.Done()
				userID := fmt.Sprintf("user-seat-%d", i)
				orderNumber, err := orderNumbers.Next(ctx, userID)
				if err != nil {
					return
				}
				_, err = orderService.CreateOrder(ctx, CreateOrderInput{
					OrderNumber: orderNumber,
					UserID:      userID,
					ProgramID:   programID,
					SeatIDs:     []string{seatID},
				})
				if err == nil {
					atomic.AddInt32(&success, 1)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), success, "成功は1件だけ")
	})
}

func TestUnpaidSweep_Integration(t *testing.T) {
	orderService, programService, orderNumbers, cleanup := setupTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	programID := createTestProgram(t, programService, []CreateCategoryInput{
		{Name: "B席", Price: 4000, HasSeatMap: true, Rows: 1, Cols: 2},
	})
	categories, err := programService.GetCategories(ctx, programID)
	require.NoError(t, err)
	categoryID := categories[0].ID

	orderNumber, err := orderNumbers.Next(ctx, "user-sweep")
	require.NoError(t, err)
	_, err = orderService.CreateOrder(ctx, CreateOrderInput{
		OrderNumber: orderNumber,
		UserID:      "user-sweep",
		ProgramID:   programID,
		CategoryID:  categoryID,
		Quantity:    1,
	})
	require.NoError(t, err)

	t.Run("期限を過ぎた未払い注文をキャンセルする", func(t *testing.T) {
		// 作成直後の注文も対象になるよう負の猶予を渡す
		count, err := orderService.CancelExpiredUnpaidOrders(ctx, -time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		o, err := orderService.GetOrder(ctx, orderNumber)
		require.NoError(t, err)
		assert.Equal(t, order.StatusCancel, o.Status)

		remaining, err := programService.GetRemaining(ctx, programID, categoryID)
		require.NoError(t, err)
		assert.Equal(t, 2, remaining)
	})

	t.Run("支払い済み注文は対象外", func(t *testing.T) {
		next, err := orderNumbers.Next(ctx, "user-sweep-2")
		require.NoError(t, err)
		_, err = orderService.CreateOrder(ctx, CreateOrderInput{
			OrderNumber: next,
			UserID:      "user-sweep-2",
			ProgramID:   programID,
			CategoryID:  categoryID,
			Quantity:    1,
		})
		require.NoError(t, err)
		require.NoError(t, orderService.ReconcileAfterPayment(ctx, next, PaymentOutcomeSuccess))

		count, err := orderService.CancelExpiredUnpaidOrders(ctx, -time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestCompensation_Integration(t *testing.T) {
	orderService, programService, orderNumbers, cleanup := setupTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	cfg := config.Load()
	db, err := postgres.NewConnection(&cfg.Database)
	require.NoError(t, err)
	defer db.Close()

	programID := createTestProgram(t, programService, []CreateCategoryInput{
		{Name: "自由席", Price: 3000, HasSeatMap: false, TotalCount: 10},
	})

	categories, err := programService.GetCategories(ctx, programID)
	require.NoError(t, err)
	categoryID := categories[0].ID

	orderNumber, err := orderNumbers.Next(ctx, "user-comp")
	require.NoError(t, err)

	// 同じ注文番号の行を先に差し込んで永続化を一意制約違反で失敗させる
	shard := orderNumber % int64(cfg.Reservation.DefaultShardCount)
	_, err = db.Exec(fmt.Sprintf(
		`INSERT INTO orders_%d (order_number, user_id, program_id, total_price, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`, shard),
		orderNumber, "other-user", programID, int64(0), "no_pay")
	require.NoError(t, err)

	t.Run("永続化失敗時は在庫が逆遷移で復元される", func(t *testing.T) {
		_, err := orderService.CreateOrder(ctx, CreateOrderInput{
			OrderNumber: orderNumber,
			UserID:      "user-comp",
			ProgramID:   programID,
			CategoryID:  categoryID,
			Quantity:    3,
		})
		assert.ErrorIs(t, err, order.ErrDuplicateOrderNumber)

		remaining, err := programService.GetRemaining(ctx, programID, categoryID)
		require.NoError(t, err)
		assert.Equal(t, 10, remaining, "確保済み在庫が補償で戻ること")
	})
}

func TestCancelAfterCacheExpiry_Integration(t *testing.T) {
	orderService, programService, orderNumbers, cleanup := setupTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	cfg := config.Load()
	redisClient := redisinfra.NewClient(&cfg.Redis)
	defer redisClient.Close()
	store := redisinfra.NewInventoryStore(redisClient)

	programID := createTestProgram(t, programService, []CreateCategoryInput{
		{Name: "S席", Price: 8000, HasSeatMap: true, Rows: 1, Cols: 4},
	})
	categories, err := programService.GetCategories(ctx, programID)
	require.NoError(t, err)
	categoryID := categories[0].ID

	orderNumber, err := orderNumbers.Next(ctx, "user-expiry")
	require.NoError(t, err)
	_, err = orderService.CreateOrder(ctx, CreateOrderInput{
		OrderNumber: orderNumber,
		UserID:      "user-expiry",
		ProgramID:   programID,
		CategoryID:  categoryID,
		Quantity:    2,
	})
	require.NoError(t, err)

	t.Run("キャッシュ失効後のキャンセルも正常に完了する", func(t *testing.T) {
		// TTL失効を無効化で再現する。永続ストア側は確定済みのため、
		// キャッシュ上の遷移先がなくてもキャンセルは成立する
		require.NoError(t, store.Invalidate(ctx, programID, categoryID))

		cancelled, err := orderService.CancelOrder(ctx, orderNumber)
		require.NoError(t, err)
		assert.True(t, cancelled)

		o, err := orderService.GetOrder(ctx, orderNumber)
		require.NoError(t, err)
		assert.Equal(t, order.StatusCancel, o.Status)

		// 次の読み取りは更新済みの永続ストアから再投入される
		remaining, err := programService.GetRemaining(ctx, programID, categoryID)
		require.NoError(t, err)
		assert.Equal(t, 4, remaining)
	})
}
