package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/FGover/damai-sub000/internal/pkg/logger"
)

// UnpaidSweepService は支払い期限切れの注文をキャンセルするインターフェース
type UnpaidSweepService interface {
	CancelExpiredUnpaidOrders(ctx context.Context, olderThan time.Duration) (int, error)
}

// UnpaidOrderSweeper は遅延メッセージの取りこぼしを後詰めするワーカー
// 確認キューが正常なら何も仕事がないのが期待状態
type UnpaidOrderSweeper struct {
	orderService UnpaidSweepService
	interval     time.Duration
	payTimeout   time.Duration
	stopCh       chan struct{}
	doneCh       chan struct{}
}

// NewUnpaidOrderSweeper は新しいスイーパーを作成
func NewUnpaidOrderSweeper(
	os UnpaidSweepService,
	interval time.Duration,
	payTimeout time.Duration,
) *UnpaidOrderSweeper {
	return &UnpaidOrderSweeper{
		orderService: os,
		interval:     interval,
		payTimeout:   payTimeout,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start はスイーパーを開始
func (s *UnpaidOrderSweeper) Start(ctx context.Context) {
	logger.Info("未払い注文スイーパー開始",
		zap.Duration("interval", s.interval),
		zap.Duration("pay_timeout", s.payTimeout),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("未払い注文スイーパー停止（コンテキストキャンセル）")
			return
		case <-s.stopCh:
			logger.Info("未払い注文スイーパー停止（シグナル受信）")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Stop はスイーパーを停止
func (s *UnpaidOrderSweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// sweep は支払い期限を過ぎた未払い注文をキャンセル
func (s *UnpaidOrderSweeper) sweep(ctx context.Context) {
	log := logger.Get()
	log.Debug("未払い注文のスイープ開始")

	count, err := s.orderService.CancelExpiredUnpaidOrders(ctx, s.payTimeout)
	if err != nil {
		log.Error("未払い注文のスイープ失敗", zap.Error(err))
		return
	}

	if count > 0 {
		log.Info("期限切れの未払い注文をキャンセル", zap.Int("count", count))
	} else {
		log.Debug("期限切れの未払い注文なし")
	}
}
