package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/FGover/damai-sub000/internal/cache"
	"github.com/FGover/damai-sub000/internal/config"
	"github.com/FGover/damai-sub000/internal/domain/identity"
	"github.com/FGover/damai-sub000/internal/domain/order"
	"github.com/FGover/damai-sub000/internal/domain/program"
	"github.com/FGover/damai-sub000/internal/domain/seat"
	"github.com/FGover/damai-sub000/internal/domain/transaction"
	"github.com/FGover/damai-sub000/internal/idempotency"
	redisinfra "github.com/FGover/damai-sub000/internal/infrastructure/redis"
	"github.com/FGover/damai-sub000/internal/lock"
	"github.com/FGover/damai-sub000/internal/pkg/logger"
	"github.com/FGover/damai-sub000/internal/pkg/metrics"
)

// 冪等性ガードのスコープ
const (
	scopeCreateOrder = "create_order"
	scopeCancelOrder = "cancel_order"
)

// DelayScheduler は遅延メッセージのスケジューラー
// 未払い注文のキャンセル確認を予約するために使用する
type DelayScheduler interface {
	ScheduleAfter(ctx context.Context, delay time.Duration, orderNumber int64) error
}

// PaymentGateway は決済コラボレーターのインターフェース
// 予約成功後に決済ハンドルを取得する。この層では中身に関知しない。
type PaymentGateway interface {
	CreatePayment(ctx context.Context, orderNumber int64, amount int64) (string, error)
}

// PaymentOutcome は決済の結果を表す
type PaymentOutcome string

const (
	PaymentOutcomeSuccess  PaymentOutcome = "success"
	PaymentOutcomeFailed   PaymentOutcome = "failed"
	PaymentOutcomeRefunded PaymentOutcome = "refunded"
)

// OrderService は在庫予約と注文作成のプロトコルを実装する
type OrderService struct {
	txManager transaction.Manager
	orderRepo order.Repository
	seatRepo  seat.Repository
	resolver  *cache.Resolver
	engine    *redisinfra.MutationEngine
	locks     *lock.Manager
	guard     *idempotency.Guard
	identity  identity.Service
	scheduler DelayScheduler
	payment   PaymentGateway
	cfg       config.ReservationConfig
	lockWait  time.Duration
	metrics   *metrics.Metrics
}

// NewOrderService は新しいOrderServiceを作成する
func NewOrderService(
	txManager transaction.Manager,
	orderRepo order.Repository,
	seatRepo seat.Repository,
	resolver *cache.Resolver,
	engine *redisinfra.MutationEngine,
	locks *lock.Manager,
	guard *idempotency.Guard,
	identitySvc identity.Service,
	scheduler DelayScheduler,
	payment PaymentGateway,
	cfg config.ReservationConfig,
	lockWait time.Duration,
	m *metrics.Metrics,
) *OrderService {
	return &OrderService{
		txManager: txManager,
		orderRepo: orderRepo,
		seatRepo:  seatRepo,
		resolver:  resolver,
		engine:    engine,
		locks:     locks,
		guard:     guard,
		identity:  identitySvc,
		scheduler: scheduler,
		payment:   payment,
		cfg:       cfg,
		lockWait:  lockWait,
		metrics:   m,
	}
}

// CreateOrderInput は注文作成のリクエスト
// 座席指定（SeatIDs）か枚数指定（CategoryID + Quantity）のいずれかを使う
type CreateOrderInput struct {
	OrderNumber      int64 // 外部のID生成器から供給された注文番号
	UserID           string
	ProgramID        string
	SeatIDs          []string
	CategoryID       string
	Quantity         int
	HolderIDs        []string
	ClientTotalPrice int64 // クライアント申告の合計金額（改ざん検知用）
}

// reservationPlan はロック保持中に確定した予約内容
// reserve は在庫エンジンへ渡す遷移バッチ、items は注文明細の元になる
type reservationPlan struct {
	reserve     []redisinfra.CategoryMutation
	items       []*order.LineItem
	total       int64
	categoryIDs []string
}

// CreateOrder は座席を予約して注文を作成する
// 同一注文番号の重複リクエストは冪等性ガードにより高々1回しか実行されない
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (int64, error) {
	if input.OrderNumber <= 0 {
		return 0, order.ErrOrderNumberRequired
	}
	if len(input.SeatIDs) == 0 && input.Quantity <= 0 {
		return 0, ErrNoSeatsSelected
	}
	// 同一座席の重複指定は遷移バッチを壊すため入力検証で棄却する
	if len(input.SeatIDs) > 1 {
		seen := make(map[string]bool, len(input.SeatIDs))
		for _, id := range input.SeatIDs {
			if seen[id] {
				return 0, ErrDuplicateSeatID
			}
			seen[id] = true
		}
	}

	err := s.guard.Execute(ctx, scopeCreateOrder, strconv.FormatInt(input.OrderNumber, 10), s.cfg.IdempotencyTTL,
		func(ctx context.Context) error {
			return s.createOrderGuarded(ctx, input)
		})
	if err != nil {
		s.observeOrder(outcomeLabel(err))
		return 0, err
	}
	s.observeOrder("success")
	return input.OrderNumber, nil
}

// createOrderGuarded は冪等性ガード内で実行される注文作成の本体
func (s *OrderService) createOrderGuarded(ctx context.Context, input CreateOrderInput) error {
	prog, err := s.resolver.GetProgram(ctx, input.ProgramID)
	if err != nil {
		return fmt.Errorf("公演取得に失敗: %w", err)
	}
	if !prog.IsOnSale() {
		return program.ErrProgramNotOnSale
	}

	switch s.cfg.Strategy {
	case config.LockStrategyProgram:
		// 戦略A: 公演単位の公平ロック1本で予約全体を覆う
		handle, err := s.locks.Acquire(ctx, programLockKey(input.ProgramID), lock.KindFair, s.lockWait)
		if err != nil {
			return err
		}
		defer handle.Release(ctx)
		return s.reserveAndPersist(ctx, input)
	default:
		// 戦略B: チケット種別単位のハイブリッドロックを取得する
		// 対象種別はロック前に先読みし、昇順の正準順で取得する（デッドロック防止）
		plan, err := s.buildPlan(ctx, input)
		if err != nil {
			return err
		}
		handles := make([]*lock.Handle, 0, len(plan.categoryIDs))
		defer func() {
			// 取得の逆順で解放する
			for i := len(handles) - 1; i >= 0; i-- {
				handles[i].Release(ctx)
			}
		}()
		for _, categoryID := range plan.categoryIDs {
			handle, err := s.locks.Acquire(ctx, categoryLockKey(input.ProgramID, categoryID), lock.KindExclusive, s.lockWait)
			if err != nil {
				return err
			}
			handles = append(handles, handle)
		}
		return s.reserveAndPersist(ctx, input)
	}
}

func programLockKey(programID string) string {
	return "order:program:" + programID
}

func categoryLockKey(programID, categoryID string) string {
	return "order:category:" + programID + ":" + categoryID
}

func orderLockKey(orderNumber int64) string {
	return "order:number:" + strconv.FormatInt(orderNumber, 10)
}

// buildPlan はリクエストから予約内容を確定する
// 座席指定の場合はキャッシュ上の座席を検証し、枚数指定の場合は
// 座席マッチング（座席管理なしの種別は残数カウンタのみ）で選定する
func (s *OrderService) buildPlan(ctx context.Context, input CreateOrderInput) (*reservationPlan, error) {
	if len(input.SeatIDs) > 0 {
		return s.planChosenSeats(ctx, input)
	}
	return s.planByQuantity(ctx, input)
}

// planChosenSeats は指定された座席IDをキャッシュ上の座席と突き合わせる
func (s *OrderService) planChosenSeats(ctx context.Context, input CreateOrderInput) (*reservationPlan, error) {
	categories, err := s.resolver.GetProgramCategories(ctx, input.ProgramID)
	if err != nil {
		return nil, err
	}

	seatMap := make(map[string]*seat.Seat)
	for _, cat := range categories {
		if !cat.HasSeatMap {
			continue
		}
		seats, err := s.resolver.GetSeats(ctx, input.ProgramID, cat.ID)
		if err != nil {
			return nil, err
		}
		for _, se := range seats {
			seatMap[se.ID] = se
		}
	}

	chosen := make([]*seat.Seat, 0, len(input.SeatIDs))
	for _, id := range input.SeatIDs {
		se, ok := seatMap[id]
		if !ok {
			return nil, seat.ErrSeatNotFound
		}
		if !se.IsAvailable() {
			return nil, seat.ErrSeatNotAvailable
		}
		chosen = append(chosen, se)
	}
	return planFromSeats(chosen), nil
}

// planByQuantity は枚数指定のリクエストから座席を選定する
func (s *OrderService) planByQuantity(ctx context.Context, input CreateOrderInput) (*reservationPlan, error) {
	cat, err := s.findCategory(ctx, input.ProgramID, input.CategoryID)
	if err != nil {
		return nil, err
	}

	if !cat.HasSeatMap {
		// 座席管理なし: 残数カウンタのみを減算する（実在庫はエンジンが検証する）
		items := make([]*order.LineItem, input.Quantity)
		for i := range items {
			items[i] = &order.LineItem{CategoryID: cat.ID, Price: cat.Price}
		}
		return &reservationPlan{
			reserve: []redisinfra.CategoryMutation{{
				CategoryID: cat.ID,
				From:       seat.StatusNoSold,
				To:         seat.StatusLocked,
				Delta:      -input.Quantity,
			}},
			items:       items,
			total:       cat.Price * int64(input.Quantity),
			categoryIDs: []string{cat.ID},
		}, nil
	}

	seats, err := s.resolver.GetSeats(ctx, input.ProgramID, cat.ID)
	if err != nil {
		return nil, err
	}
	matched, err := MatchSeats(seats, input.Quantity)
	if err != nil {
		return nil, err
	}
	return planFromSeats(matched), nil
}

func (s *OrderService) findCategory(ctx context.Context, programID, categoryID string) (*program.TicketCategory, error) {
	categories, err := s.resolver.GetProgramCategories(ctx, programID)
	if err != nil {
		return nil, err
	}
	for _, cat := range categories {
		if cat.ID == categoryID {
			return cat, nil
		}
	}
	return nil, program.ErrCategoryNotFound
}

// planFromSeats は座席実体の集まりから予約内容を組み立てる
func planFromSeats(seats []*seat.Seat) *reservationPlan {
	plan := &reservationPlan{items: make([]*order.LineItem, 0, len(seats))}
	byCategory := make(map[string][]string)
	for _, se := range seats {
		byCategory[se.CategoryID] = append(byCategory[se.CategoryID], se.ID)
		plan.items = append(plan.items, &order.LineItem{
			SeatID:     se.ID,
			CategoryID: se.CategoryID,
			Price:      se.Price,
		})
		plan.total += se.Price
	}
	for categoryID, ids := range byCategory {
		plan.categoryIDs = append(plan.categoryIDs, categoryID)
		plan.reserve = append(plan.reserve, redisinfra.CategoryMutation{
			CategoryID: categoryID,
			SeatIDs:    ids,
			From:       seat.StatusNoSold,
			To:         seat.StatusLocked,
			Delta:      -len(ids),
		})
	}
	sort.Strings(plan.categoryIDs)
	return plan
}

// reserveAndPersist はロック保持中の予約確定処理
// 検証 → 不可分な在庫遷移 → 注文永続化 → 失敗時は逆遷移で補償
func (s *OrderService) reserveAndPersist(ctx context.Context, input CreateOrderInput) error {
	// ロック取得までの間に在庫が動いている可能性があるため保持中に再構築する
	plan, err := s.buildPlan(ctx, input)
	if err != nil {
		return err
	}
	if err := s.validatePurchase(ctx, input, plan); err != nil {
		return err
	}

	// 在庫の不可分遷移（未販売→確保中、残数減算）
	// エンジンがコミット時に座席状態と残数を再検証する
	if err := s.engine.Apply(ctx, input.ProgramID, plan.reserve); err != nil {
		s.observeMutation("reserve", err)
		return err
	}
	s.observeMutation("reserve", nil)
	s.resolver.InvalidateLocal(input.ProgramID, plan.categoryIDs...)

	if err := s.persistOrder(ctx, input, plan); err != nil {
		// 在庫は確保済みのため逆遷移で必ず復元する
		s.compensate(ctx, input.ProgramID, input.OrderNumber, plan.reserve)
		return err
	}

	s.scheduleCancelCheck(ctx, input.OrderNumber)

	if s.payment != nil {
		if _, err := s.payment.CreatePayment(ctx, input.OrderNumber, plan.total); err != nil {
			// 決済ハンドルの取得失敗は注文を壊さない（支払い時に再試行できる）
			logger.Warn("決済ハンドル取得に失敗",
				zap.Int64("order_number", input.OrderNumber),
				zap.Error(err),
			)
		}
	}
	return nil
}

// validatePurchase は購入者・名義人・購入上限・金額の検証を行う
func (s *OrderService) validatePurchase(ctx context.Context, input CreateOrderInput, plan *reservationPlan) error {
	if len(input.HolderIDs) > 0 {
		if len(input.HolderIDs) != len(plan.items) {
			return ErrHolderCountMismatch
		}
		holders, err := s.identity.ListTicketHolders(ctx, input.UserID)
		if err != nil {
			return fmt.Errorf("チケット名義人の取得に失敗: %w", err)
		}
		valid := make(map[string]bool, len(holders))
		for _, h := range holders {
			valid[h.ID] = true
		}
		for _, id := range input.HolderIDs {
			if !valid[id] {
				return ErrInvalidTicketHolder
			}
		}
	}

	count, err := s.identity.GetPurchaseCount(ctx, input.UserID, input.ProgramID)
	if err != nil {
		return fmt.Errorf("購入済み枚数の取得に失敗: %w", err)
	}
	if count+len(plan.items) > s.cfg.MaxPerUser {
		return ErrPurchaseLimitExceeded
	}

	if input.ClientTotalPrice > 0 && input.ClientTotalPrice > plan.total {
		return ErrPriceTampered
	}
	return nil
}

// persistOrder は注文と明細をトランザクションで永続化し、
// 永続ストア側の座席状態も確保中へ更新する
func (s *OrderService) persistOrder(ctx context.Context, input CreateOrderInput, plan *reservationPlan) error {
	for i, it := range plan.items {
		it.HolderID = input.UserID
		if i < len(input.HolderIDs) {
			it.HolderID = input.HolderIDs[i]
		}
	}
	o := order.NewOrder(input.OrderNumber, input.UserID, input.ProgramID, plan.items)
	if err := o.Validate(); err != nil {
		return err
	}

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if err := s.orderRepo.Create(ctx, tx, o); err != nil {
		return err
	}
	if ids := o.SeatIDs(); len(ids) > 0 {
		if err := s.seatRepo.UpdateStatusBulk(ctx, tx, ids, seat.StatusLocked); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}

	if s.metrics != nil {
		s.metrics.UnpaidOrders.Inc()
	}
	return nil
}

// compensate は予約済み在庫を逆遷移で復元する
// 補償自体の失敗は在庫と永続ストアの不整合を意味するため、
// 手動リコンシリエーション要としてエラーログに残す
func (s *OrderService) compensate(ctx context.Context, programID string, orderNumber int64, reserve []redisinfra.CategoryMutation) {
	inverse := make([]redisinfra.CategoryMutation, len(reserve))
	for i, m := range reserve {
		inverse[i] = redisinfra.CategoryMutation{
			CategoryID: m.CategoryID,
			SeatIDs:    m.SeatIDs,
			From:       m.To,
			To:         m.From,
			Delta:      -m.Delta,
		}
	}
	err := s.engine.Apply(ctx, programID, inverse)
	if err == nil {
		categoryIDs := make([]string, 0, len(inverse))
		for _, m := range inverse {
			categoryIDs = append(categoryIDs, m.CategoryID)
		}
		s.resolver.InvalidateLocal(programID, categoryIDs...)
		if s.metrics != nil {
			s.metrics.CompensationsTotal.WithLabelValues("success").Inc()
		}
		return
	}
	if s.metrics != nil {
		s.metrics.CompensationsTotal.WithLabelValues("failed").Inc()
	}
	logger.Error("補償遷移に失敗しました",
		zap.Int64("order_number", orderNumber),
		zap.String("program_id", programID),
		zap.Bool("manual_reconciliation_required", true),
		zap.Error(err),
	)
}

// scheduleCancelCheck は未払いキャンセル確認を遅延スケジュールする
// スケジューラーが利用できない場合も注文は成立させる（スイーパーが後詰め）
func (s *OrderService) scheduleCancelCheck(ctx context.Context, orderNumber int64) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.ScheduleAfter(ctx, s.cfg.PayTimeout, orderNumber); err != nil {
		logger.Warn("キャンセル確認のスケジュールに失敗",
			zap.Int64("order_number", orderNumber),
			zap.Error(err),
		)
	}
}

// CancelOrder は未払い注文をキャンセルし在庫を復元する
// 既に終端状態の場合は false を返す
func (s *OrderService) CancelOrder(ctx context.Context, orderNumber int64) (bool, error) {
	cancelled := false
	err := s.guard.Execute(ctx, scopeCancelOrder, strconv.FormatInt(orderNumber, 10), 0,
		func(ctx context.Context) error {
			var err error
			cancelled, err = s.cancelGuarded(ctx, orderNumber)
			return err
		})
	if err != nil {
		return false, err
	}
	return cancelled, nil
}

// cancelGuarded はキャンセルの本体
// 公平ロックで注文単位の操作順序を保証する
func (s *OrderService) cancelGuarded(ctx context.Context, orderNumber int64) (bool, error) {
	handle, err := s.locks.Acquire(ctx, orderLockKey(orderNumber), lock.KindFair, s.lockWait)
	if err != nil {
		return false, err
	}
	defer handle.Release(ctx)

	o, err := s.orderRepo.GetByOrderNumber(ctx, orderNumber)
	if err != nil {
		return false, err
	}
	if o.IsTerminal() {
		return false, nil
	}
	if err := o.Cancel(); err != nil {
		return false, err
	}
	if err := s.transitionOrder(ctx, o, seat.StatusLocked, seat.StatusNoSold); err != nil {
		return false, err
	}
	if s.metrics != nil {
		s.metrics.UnpaidOrders.Dec()
	}
	return true, nil
}

// ReconcileAfterPayment は決済結果に応じて注文と座席の状態を精算する
//   - success:  未払い → 支払い済み、座席は確保中 → 販売済み
//   - failed:   未払い → キャンセル、座席は確保中 → 未販売（在庫復元）
//   - refunded: 支払い済み → 返金、座席は販売済み → 未販売（在庫復元）
func (s *OrderService) ReconcileAfterPayment(ctx context.Context, orderNumber int64, outcome PaymentOutcome) error {
	handle, err := s.locks.Acquire(ctx, orderLockKey(orderNumber), lock.KindFair, s.lockWait)
	if err != nil {
		return err
	}
	defer handle.Release(ctx)

	o, err := s.orderRepo.GetByOrderNumber(ctx, orderNumber)
	if err != nil {
		return err
	}

	switch outcome {
	case PaymentOutcomeSuccess:
		if err := o.MarkPaid(); err != nil {
			return err
		}
		if err := s.transitionOrder(ctx, o, seat.StatusLocked, seat.StatusSold); err != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.UnpaidOrders.Dec()
		}
		return nil
	case PaymentOutcomeFailed:
		if o.IsTerminal() {
			return nil
		}
		if err := o.Cancel(); err != nil {
			return err
		}
		if err := s.transitionOrder(ctx, o, seat.StatusLocked, seat.StatusNoSold); err != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.UnpaidOrders.Dec()
		}
		return nil
	case PaymentOutcomeRefunded:
		if err := o.Refund(); err != nil {
			return err
		}
		return s.transitionOrder(ctx, o, seat.StatusSold, seat.StatusNoSold)
	}
	return fmt.Errorf("不明な決済結果です: %s", outcome)
}

// transitionOrder は注文の永続化と在庫遷移をまとめて行う
// 永続ストアを先に確定し、その後にキャッシュ上の在庫を遷移させる。
// 在庫遷移の失敗は不整合を意味するため手動リコンシリエーション要として記録する。
func (s *OrderService) transitionOrder(ctx context.Context, o *order.Order, from, to seat.Status) error {
	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if err := s.orderRepo.Update(ctx, tx, o); err != nil {
		return err
	}
	if ids := o.SeatIDs(); len(ids) > 0 {
		if err := s.seatRepo.UpdateStatusBulk(ctx, tx, ids, to); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}

	batch := transitionBatch(o, from, to)
	if len(batch) == 0 {
		return nil
	}
	categoryIDs := make([]string, 0, len(batch))
	for _, m := range batch {
		categoryIDs = append(categoryIDs, m.CategoryID)
	}
	if err := s.engine.Apply(ctx, o.ProgramID, batch); err != nil {
		// キャッシュ未投入（TTL失効後など）は遷移すべき状態がそもそもない。
		// 永続ストアは確定済みのため、次の投入が最新状態を再構築する
		if errors.Is(err, redisinfra.ErrCacheMiss) {
			s.resolver.InvalidateLocal(o.ProgramID, categoryIDs...)
			return nil
		}
		s.observeMutation("release", err)
		logger.Error("在庫遷移に失敗しました",
			zap.Int64("order_number", o.OrderNumber),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Bool("manual_reconciliation_required", true),
			zap.Error(err),
		)
		return fmt.Errorf("在庫遷移に失敗: %w", err)
	}
	s.observeMutation("release", nil)

	s.resolver.InvalidateLocal(o.ProgramID, categoryIDs...)
	return nil
}

// transitionBatch は注文明細から種別ごとの在庫遷移を組み立てる
// 残数カウンタは未販売へ戻るときだけ加算する（座席管理なしの明細も数える）
func transitionBatch(o *order.Order, from, to seat.Status) []redisinfra.CategoryMutation {
	type group struct {
		seatIDs []string
		count   int
	}
	groups := make(map[string]*group)
	categoryIDs := make([]string, 0, 2)
	for _, it := range o.LineItems {
		g, ok := groups[it.CategoryID]
		if !ok {
			g = &group{}
			groups[it.CategoryID] = g
			categoryIDs = append(categoryIDs, it.CategoryID)
		}
		if it.SeatID != "" {
			g.seatIDs = append(g.seatIDs, it.SeatID)
		}
		g.count++
	}
	sort.Strings(categoryIDs)

	batch := make([]redisinfra.CategoryMutation, 0, len(groups))
	for _, categoryID := range categoryIDs {
		g := groups[categoryID]
		delta := 0
		if to == seat.StatusNoSold {
			delta = g.count
		}
		if len(g.seatIDs) == 0 && delta == 0 {
			continue
		}
		batch = append(batch, redisinfra.CategoryMutation{
			CategoryID: categoryID,
			SeatIDs:    g.seatIDs,
			From:       from,
			To:         to,
			Delta:      delta,
		})
	}
	return batch
}

// GetOrder は注文番号から注文を取得する
func (s *OrderService) GetOrder(ctx context.Context, orderNumber int64) (*order.Order, error) {
	return s.orderRepo.GetByOrderNumber(ctx, orderNumber)
}

// GetUserOrders はユーザーの注文一覧を取得する
func (s *OrderService) GetUserOrders(ctx context.Context, userID string, limit, offset int) ([]*order.Order, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.orderRepo.GetByUserID(ctx, userID, limit, offset)
}

// CancelIfUnpaid は未払いのままの注文をキャンセルする
// 遅延メッセージの消費側とスイーパーの両方から呼ばれる
func (s *OrderService) CancelIfUnpaid(ctx context.Context, orderNumber int64) (bool, error) {
	o, err := s.orderRepo.GetByOrderNumber(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return false, nil
		}
		return false, err
	}
	if o.Status != order.StatusNoPay {
		return false, nil
	}
	return s.CancelOrder(ctx, orderNumber)
}

// CancelExpiredUnpaidOrders は支払い期限を過ぎた未払い注文を一括キャンセルする
func (s *OrderService) CancelExpiredUnpaidOrders(ctx context.Context, olderThan time.Duration) (int, error) {
	before := time.Now().Add(-olderThan)
	orders, err := s.orderRepo.GetUnpaidCreatedBefore(ctx, before, 100)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, o := range orders {
		cancelled, err := s.CancelIfUnpaid(ctx, o.OrderNumber)
		if err != nil {
			logger.Error("期限切れ注文のキャンセルに失敗",
				zap.Int64("order_number", o.OrderNumber),
				zap.Error(err),
			)
			continue
		}
		if cancelled {
			count++
		}
	}
	return count, nil
}

// observeOrder は注文作成の結果をメトリクスに記録する
func (s *OrderService) observeOrder(status string) {
	if s.metrics != nil {
		s.metrics.OrdersTotal.WithLabelValues(string(s.cfg.Strategy), status).Inc()
	}
}

func (s *OrderService) observeMutation(operation string, err error) {
	if s.metrics == nil {
		return
	}
	result := "success"
	switch {
	case errors.Is(err, redisinfra.ErrInsufficientInventory):
		result = "insufficient"
	case errors.Is(err, redisinfra.ErrSeatStateChanged):
		result = "seat_changed"
	case err != nil:
		result = "error"
	}
	s.metrics.InventoryMutationsTotal.WithLabelValues(operation, result).Inc()
}

// outcomeLabel はエラーをメトリクス用の結果ラベルへ写像する
func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, redisinfra.ErrInsufficientInventory),
		errors.Is(err, ErrNotEnoughSeats):
		return "insufficient"
	case errors.Is(err, lock.ErrResourceBusy):
		return "busy"
	case errors.Is(err, idempotency.ErrDuplicateOperation):
		return "duplicate"
	case errors.Is(err, ErrPurchaseLimitExceeded),
		errors.Is(err, ErrPriceTampered),
		errors.Is(err, ErrInvalidTicketHolder),
		errors.Is(err, ErrHolderCountMismatch),
		errors.Is(err, ErrDuplicateSeatID):
		return "validation"
	default:
		return "error"
	}
}
