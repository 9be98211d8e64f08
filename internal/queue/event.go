package queue

import "time"

// キュー名
const (
	// 遅延待機キュー。消費者を持たず、TTL切れのメッセージが
	// デッドレター交換経由で確認キューへ流れる
	waitQueueName = "order.cancel.wait"
	// キャンセル確認キュー。消費者が未払い注文を検査する
	checkQueueName = "order.cancel.check"
)

// CancelCheckEvent は未払いキャンセル確認のメッセージ
type CancelCheckEvent struct {
	OrderNumber int64     `json:"order_number"`
	ScheduledAt time.Time `json:"scheduled_at"`
}
