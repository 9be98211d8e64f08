package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/FGover/damai-sub000/internal/config"
)

// DelayScheduler は RabbitMQ の TTL + デッドレター交換で遅延メッセージを実現する
//
// 待機キューに消費者はいない。メッセージごとの TTL が切れると
// デッドレター設定により確認キューへ転送され、そこで消費される。
type DelayScheduler struct {
	conn *amqp.Connection

	mu sync.Mutex
	ch *amqp.Channel
}

// NewDelayScheduler はブローカーへ接続しキューを宣言する
func NewDelayScheduler(cfg *config.RabbitMQConfig) (*DelayScheduler, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("ブローカー接続に失敗: %w", err)
	}
	s := &DelayScheduler{conn: conn}
	ch, err := s.channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := declareQueues(ch); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// declareQueues は待機キューと確認キューを冪等に宣言する
func declareQueues(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(checkQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("確認キュー宣言に失敗: %w", err)
	}
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": checkQueueName,
	}
	if _, err := ch.QueueDeclare(waitQueueName, true, false, false, false, args); err != nil {
		return fmt.Errorf("待機キュー宣言に失敗: %w", err)
	}
	return nil
}

func (s *DelayScheduler) channel() (*amqp.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil && !s.ch.IsClosed() {
		return s.ch, nil
	}
	ch, err := s.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("チャネル作成に失敗: %w", err)
	}
	s.ch = ch
	return ch, nil
}

// ScheduleAfter は delay 経過後に注文のキャンセル確認が届くようスケジュールする
func (s *DelayScheduler) ScheduleAfter(ctx context.Context, delay time.Duration, orderNumber int64) error {
	body, err := json.Marshal(CancelCheckEvent{
		OrderNumber: orderNumber,
		ScheduledAt: time.Now().Add(delay),
	})
	if err != nil {
		return fmt.Errorf("メッセージ作成に失敗: %w", err)
	}

	ch, err := s.channel()
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Expiration:   strconv.FormatInt(delay.Milliseconds(), 10),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", waitQueueName, false, false, pub); err != nil {
		return fmt.Errorf("遅延メッセージ送信に失敗: %w", err)
	}
	return nil
}

// Close は接続を閉じる
func (s *DelayScheduler) Close() error {
	return s.conn.Close()
}
