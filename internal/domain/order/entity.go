package order

import "time"

// Status は注文の状態を表す
type Status string

const (
	StatusNoPay  Status = "no_pay" // 未払い（支払い待ち）
	StatusPaid   Status = "paid"   // 支払い完了
	StatusCancel Status = "cancel" // キャンセル（終端状態）
	StatusRefund Status = "refund" // 返金済み（終端状態）
)

// Order は注文エンティティを表す
// 注文番号は外部のID生成器から供給されグローバルに一意
type Order struct {
	OrderNumber int64
	UserID      string
	ProgramID   string
	TotalPrice  int64
	Status      Status
	LineItems   []*LineItem
	PayAt       *time.Time
	CancelAt    *time.Time
	RefundAt    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LineItem は注文明細（購入座席・チケット1枚分）を表す
type LineItem struct {
	ID          string
	OrderNumber int64
	SeatID      string
	CategoryID  string
	HolderID    string // 入場者（チケット名義人）ID
	Price       int64
}

// NewOrder は新しい注文を作成する
func NewOrder(orderNumber int64, userID, programID string, items []*LineItem) *Order {
	now := time.Now()
	var total int64
	for _, it := range items {
		it.OrderNumber = orderNumber
		total += it.Price
	}
	return &Order{
		OrderNumber: orderNumber,
		UserID:      userID,
		ProgramID:   programID,
		TotalPrice:  total,
		Status:      StatusNoPay,
		LineItems:   items,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// SeatIDs は注文に含まれる座席IDの一覧を返す
func (o *Order) SeatIDs() []string {
	ids := make([]string, 0, len(o.LineItems))
	for _, it := range o.LineItems {
		if it.SeatID != "" {
			ids = append(ids, it.SeatID)
		}
	}
	return ids
}

// MarkPaid は支払い完了へ遷移させる
// 許可される遷移: no_pay → paid
func (o *Order) MarkPaid() error {
	if o.Status != StatusNoPay {
		return ErrOrderNotPayable
	}
	now := time.Now()
	o.Status = StatusPaid
	o.PayAt = &now
	o.UpdatedAt = now
	return nil
}

// Cancel はキャンセルへ遷移させる
// 許可される遷移: no_pay → cancel
func (o *Order) Cancel() error {
	switch o.Status {
	case StatusCancel:
		return ErrOrderAlreadyCancelled
	case StatusRefund:
		return ErrOrderAlreadyRefunded
	case StatusPaid:
		return ErrOrderAlreadyPaid
	}
	now := time.Now()
	o.Status = StatusCancel
	o.CancelAt = &now
	o.UpdatedAt = now
	return nil
}

// Refund は返金済みへ遷移させる（支払い後キャンセルの精算）
// 許可される遷移: paid → refund
func (o *Order) Refund() error {
	if o.Status != StatusPaid {
		return ErrOrderNotRefundable
	}
	now := time.Now()
	o.Status = StatusRefund
	o.RefundAt = &now
	o.UpdatedAt = now
	return nil
}

// IsTerminal は終端状態（cancel / refund）かを返す
func (o *Order) IsTerminal() bool {
	return o.Status == StatusCancel || o.Status == StatusRefund
}

// Validate は注文の検証を行う
func (o *Order) Validate() error {
	if o.OrderNumber <= 0 {
		return ErrOrderNumberRequired
	}
	if o.UserID == "" {
		return ErrUserIDRequired
	}
	if o.ProgramID == "" {
		return ErrProgramIDRequired
	}
	if len(o.LineItems) == 0 {
		return ErrLineItemsRequired
	}
	return nil
}
