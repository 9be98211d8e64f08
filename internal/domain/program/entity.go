package program

import "time"

// Program は公演（イベント）エンティティを表す
type Program struct {
	ID          string
	Name        string
	Description string
	Venue       string
	ShowAt      time.Time // 開演時刻（キャッシュTTLの上限を決める）
	SaleStartAt time.Time
	SaleEndAt   time.Time
	ShardCount  int // 注文テーブルのシャード数
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int // 楽観的ロック用
}

// NewProgram は新しい公演を作成する
func NewProgram(name, description, venue string, showAt, saleStartAt, saleEndAt time.Time, shardCount int) *Program {
	now := time.Now()
	return &Program{
		Name:        name,
		Description: description,
		Venue:       venue,
		ShowAt:      showAt,
		SaleStartAt: saleStartAt,
		SaleEndAt:   saleEndAt,
		ShardCount:  shardCount,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     0,
	}
}

// IsOnSale は現在が販売期間内かを返す
func (p *Program) IsOnSale() bool {
	now := time.Now()
	return now.After(p.SaleStartAt) && now.Before(p.SaleEndAt)
}

// TimeUntilShow は開演までの残り時間を返す（開演後は0）
func (p *Program) TimeUntilShow() time.Duration {
	d := time.Until(p.ShowAt)
	if d < 0 {
		return 0
	}
	return d
}

// Validate は公演の検証を行う
func (p *Program) Validate() error {
	if p.Name == "" {
		return ErrProgramNameRequired
	}
	if p.ShowAt.Before(p.SaleEndAt) {
		return ErrInvalidSalePeriod
	}
	if p.SaleEndAt.Before(p.SaleStartAt) {
		return ErrInvalidSalePeriod
	}
	if p.ShardCount <= 0 {
		p.ShardCount = 1
	}
	return nil
}

// TicketCategory は公演内の価格帯（チケット種別）を表す
type TicketCategory struct {
	ID         string
	ProgramID  string
	Name       string
	Price      int64 // 単位: 円
	TotalCount int
	Remaining  int  // 残数（座席管理ありの場合は NO_SOLD 座席数と一致する）
	HasSeatMap bool // false の場合は残数カウンタのみで管理する
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Version    int
}

// NewTicketCategory は新しいチケット種別を作成する
func NewTicketCategory(programID, name string, price int64, totalCount int, hasSeatMap bool) *TicketCategory {
	now := time.Now()
	return &TicketCategory{
		ProgramID:  programID,
		Name:       name,
		Price:      price,
		TotalCount: totalCount,
		Remaining:  totalCount,
		HasSeatMap: hasSeatMap,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    0,
	}
}

// Validate はチケット種別の検証を行う
func (c *TicketCategory) Validate() error {
	if c.ProgramID == "" {
		return ErrProgramIDRequired
	}
	if c.Name == "" {
		return ErrCategoryNameRequired
	}
	if c.Price < 0 {
		return ErrInvalidPrice
	}
	if c.TotalCount <= 0 {
		return ErrInvalidTotalCount
	}
	return nil
}
