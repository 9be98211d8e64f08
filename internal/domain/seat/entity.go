package seat

import (
	"encoding/json"
	"time"
)

// Status は座席の販売状態を表す
type Status string

const (
	StatusNoSold Status = "no_sold" // 未販売（購入可能）
	StatusLocked Status = "locked"  // 予約確保中（支払い待ち）
	StatusSold   Status = "sold"    // 販売済み
)

// IsValid は定義済みの状態かを返す
func (s Status) IsValid() bool {
	switch s {
	case StatusNoSold, StatusLocked, StatusSold:
		return true
	}
	return false
}

// Seat は座席エンティティを表す
// 状態の変更は在庫ミューテーションエンジン経由でのみ行う
type Seat struct {
	ID         string    `json:"id"`
	ProgramID  string    `json:"program_id"`
	CategoryID string    `json:"category_id"`
	RowNum     int       `json:"row_num"`
	ColNum     int       `json:"col_num"`
	Price      int64     `json:"price"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Version    int       `json:"version"` // 楽観的ロック用
}

// NewSeat は新しい座席を作成する
func NewSeat(programID, categoryID string, rowNum, colNum int, price int64) *Seat {
	now := time.Now()
	return &Seat{
		ProgramID:  programID,
		CategoryID: categoryID,
		RowNum:     rowNum,
		ColNum:     colNum,
		Price:      price,
		Status:     StatusNoSold,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    0,
	}
}

// IsAvailable は座席が購入可能かを返す
func (s *Seat) IsAvailable() bool {
	return s.Status == StatusNoSold
}

// CanTransitionTo は状態遷移が許可されているかを返す
// 許可される遷移:
//   - no_sold → locked （予約確保）
//   - locked  → sold   （支払い確定）
//   - locked  → no_sold（支払い前キャンセル）
//   - sold    → no_sold（支払い後キャンセル・返金）
func (s *Seat) CanTransitionTo(target Status) bool {
	switch s.Status {
	case StatusNoSold:
		return target == StatusLocked
	case StatusLocked:
		return target == StatusSold || target == StatusNoSold
	case StatusSold:
		return target == StatusNoSold
	}
	return false
}

// TransitionTo は状態を遷移させる
func (s *Seat) TransitionTo(target Status) error {
	if !s.CanTransitionTo(target) {
		return ErrInvalidTransition
	}
	s.Status = target
	s.UpdatedAt = time.Now()
	return nil
}

// Validate は座席の検証を行う
func (s *Seat) Validate() error {
	if s.ProgramID == "" {
		return ErrProgramIDRequired
	}
	if s.CategoryID == "" {
		return ErrCategoryIDRequired
	}
	if s.RowNum <= 0 || s.ColNum <= 0 {
		return ErrInvalidCoordinate
	}
	if s.Price < 0 {
		return ErrInvalidPrice
	}
	return nil
}

// Marshal は座席をJSONにエンコードする（キャッシュ格納用）
func (s *Seat) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// Unmarshal はJSONから座席をデコードする
func Unmarshal(data []byte) (*Seat, error) {
	var s Seat
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
