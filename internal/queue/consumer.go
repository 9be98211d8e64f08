package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/FGover/damai-sub000/internal/config"
	"github.com/FGover/damai-sub000/internal/pkg/logger"
)

// UnpaidCanceller は未払い注文をキャンセルするハンドラー
type UnpaidCanceller interface {
	CancelIfUnpaid(ctx context.Context, orderNumber int64) (bool, error)
}

// CancelCheckConsumer は確認キューを消費し、支払い期限を過ぎても
// 未払いのままの注文をキャンセルする
type CancelCheckConsumer struct {
	url       string
	canceller UnpaidCanceller
}

// NewCancelCheckConsumer は新しいCancelCheckConsumerを作成する
func NewCancelCheckConsumer(cfg *config.RabbitMQConfig, canceller UnpaidCanceller) *CancelCheckConsumer {
	return &CancelCheckConsumer{url: cfg.URL, canceller: canceller}
}

// Run はコンテキストが取り消されるまで消費を続ける
// 接続断のときは指数バックオフで再接続する
func (c *CancelCheckConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn, err := amqp.Dial(c.url)
		if err != nil {
			logger.Warn("ブローカー接続に失敗、再試行します",
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		if err := c.consumeLoop(ctx, conn); err != nil {
			conn.Close()
			if errors.Is(err, context.Canceled) {
				return err
			}
			logger.Warn("消費ループが終了、再接続します", zap.Error(err))
			continue
		}
	}
}

func (c *CancelCheckConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("チャネル作成に失敗: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(10, 0, false); err != nil {
		return fmt.Errorf("QoS設定に失敗: %w", err)
	}
	if err := declareQueues(ch); err != nil {
		return err
	}

	msgs, err := ch.Consume(checkQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("消費開始に失敗: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("配信チャネルが閉じられました")
			}
			if err := c.handle(ctx, d.Body); err != nil {
				logger.Error("キャンセル確認処理に失敗", zap.Error(err))
				// 再キューはしない（ビジーループ防止。スイーパーが後詰めする）
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *CancelCheckConsumer) handle(ctx context.Context, body []byte) error {
	var ev CancelCheckEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("メッセージ解析に失敗: %w", err)
	}

	cancelled, err := c.canceller.CancelIfUnpaid(ctx, ev.OrderNumber)
	if err != nil {
		return fmt.Errorf("未払いキャンセルに失敗 (order_number=%d): %w", ev.OrderNumber, err)
	}
	if cancelled {
		logger.Info("支払い期限切れの注文をキャンセルしました",
			zap.Int64("order_number", ev.OrderNumber),
		)
	}
	return nil
}
