package application

import (
	"sort"

	"github.com/FGover/damai-sub000/internal/domain/seat"
)

// MatchSeats は数量指定のリクエストに対して座席を選定する
// 同一行の連続した座席を優先し、見つからなければ行・列順で任意の座席を埋める。
// 購入可能な座席が枚数に満たない場合は ErrNotEnoughSeats を返す。
func MatchSeats(seats []*seat.Seat, quantity int) ([]*seat.Seat, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	available := make([]*seat.Seat, 0, len(seats))
	for _, se := range seats {
		if se.IsAvailable() {
			available = append(available, se)
		}
	}
	if len(available) < quantity {
		return nil, ErrNotEnoughSeats
	}

	sort.Slice(available, func(i, j int) bool {
		if available[i].RowNum != available[j].RowNum {
			return available[i].RowNum < available[j].RowNum
		}
		return available[i].ColNum < available[j].ColNum
	})

	// 同一行の連続区間を探す
	if run := findContiguousRun(available, quantity); run != nil {
		return run, nil
	}

	// 連続で取れない場合は前方から任意に埋める
	return available[:quantity], nil
}

// findContiguousRun は行・列順に整列済みの座席から、同一行で列番号が
// 連続する長さ quantity の区間を探す
func findContiguousRun(sorted []*seat.Seat, quantity int) []*seat.Seat {
	runStart := 0
	for i := 1; i <= len(sorted); i++ {
		if i < len(sorted) &&
			sorted[i].RowNum == sorted[i-1].RowNum &&
			sorted[i].ColNum == sorted[i-1].ColNum+1 {
			continue
		}
		if i-runStart >= quantity {
			return sorted[runStart : runStart+quantity]
		}
		runStart = i
	}
	return nil
}
