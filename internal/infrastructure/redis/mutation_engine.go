package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/FGover/damai-sub000/internal/domain/seat"
)

var (
	ErrInsufficientInventory = errors.New("在庫が不足しています")
	ErrSeatStateChanged      = errors.New("座席の状態が変更されています")
)

// CategoryMutation はチケット種別1つ分の状態遷移を表す
// Delta は残数カウンタへの増減（予約確保なら -len(SeatIDs)、解放なら +len(SeatIDs)、
// 確保中→販売済みの確定なら 0）。座席管理なしの種別は SeatIDs を空にして
// カウンタのみを増減する。
type CategoryMutation struct {
	CategoryID string
	SeatIDs    []string
	From       seat.Status
	To         seat.Status
	Delta      int
}

// MutationEngine は座席状態と残数カウンタの複数キー遷移を
// 1回の Lua 実行として不可分に適用するエンジン
//
// エンジン自身はロックを取らない。コミット時に全座席が期待する遷移元
// パーティションに存在すること・残数が足りることを再検証し、1つでも
// 失敗すればバッチ全体を棄却する。この不可分性が、ロックで直列化されて
// いない並行予約の下でも売り越しを防ぐ。ロックは無駄な楽観的試行を
// 減らすための手段であり、正しさの条件ではない。
type MutationEngine struct {
	client *redis.Client
}

// NewMutationEngine は新しいMutationEngineを作成する
func NewMutationEngine(client *redis.Client) *MutationEngine {
	return &MutationEngine{client: client}
}

// mutationScript はバッチ全体を2パスで適用する
// 1パス目で全種別を検証し、2パス目で移動と残数更新を行う。
// 1パス目で失敗した場合は一切書き込まない。
//
// KEYSレイアウト（種別ごとに3キー）: remainKey, fromKey, toKey
// ARGVレイアウト: [種別数, (座席数, delta, 遷移先状態, 座席ID...)...]
//
// 戻り値: 1=成功, -1=残数不足, -2=座席が遷移元に存在しない（重複指定を含む）, -3=キャッシュ未投入
const mutationScript = `
local nc = tonumber(ARGV[1])

-- 1パス目: 検証
-- 同一座席の重複は2パス目で遷移元から消えた後に参照されるため、ここで棄却する
local ai = 2
local seen = {}
for c = 1, nc do
	local base = (c - 1) * 3
	local remainKey = KEYS[base + 1]
	local fromKey = KEYS[base + 2]
	local nseats = tonumber(ARGV[ai])
	local delta = tonumber(ARGV[ai + 1])
	local remain = redis.call("GET", remainKey)
	if remain == false then
		return -3
	end
	if delta < 0 and tonumber(remain) + delta < 0 then
		return -1
	end
	for i = 1, nseats do
		local seatID = ARGV[ai + 2 + i]
		local seenKey = fromKey .. "|" .. seatID
		if seen[seenKey] then
			return -2
		end
		seen[seenKey] = true
		if redis.call("HEXISTS", fromKey, seatID) == 0 then
			return -2
		end
	end
	ai = ai + 3 + nseats
end

-- 2パス目: 適用
ai = 2
for c = 1, nc do
	local base = (c - 1) * 3
	local remainKey = KEYS[base + 1]
	local fromKey = KEYS[base + 2]
	local toKey = KEYS[base + 3]
	local nseats = tonumber(ARGV[ai])
	local delta = tonumber(ARGV[ai + 1])
	local toStatus = ARGV[ai + 2]
	for i = 1, nseats do
		local seatID = ARGV[ai + 2 + i]
		local raw = redis.call("HGET", fromKey, seatID)
		local obj = cjson.decode(raw)
		obj["status"] = toStatus
		redis.call("HDEL", fromKey, seatID)
		redis.call("HSET", toKey, seatID, cjson.encode(obj))
	end
	if delta ~= 0 then
		redis.call("INCRBY", remainKey, delta)
	end
	ai = ai + 3 + nseats
end
return 1
`

// Apply はバッチ全体を1回の不可分操作として適用する
func (e *MutationEngine) Apply(ctx context.Context, programID string, batch []CategoryMutation) error {
	if len(batch) == 0 {
		return nil
	}

	keys := make([]string, 0, len(batch)*3)
	args := make([]interface{}, 0, 16)
	args = append(args, len(batch))
	for _, m := range batch {
		keys = append(keys,
			remainingKey(programID, m.CategoryID),
			seatPartitionKey(programID, m.CategoryID, m.From),
			seatPartitionKey(programID, m.CategoryID, m.To),
		)
		args = append(args, len(m.SeatIDs), m.Delta, string(m.To))
		for _, id := range m.SeatIDs {
			args = append(args, id)
		}
	}

	result, err := e.client.Eval(ctx, mutationScript, keys, args...).Int64()
	if err != nil {
		return fmt.Errorf("在庫遷移スクリプト実行に失敗: %w", err)
	}
	switch result {
	case 1:
		return nil
	case -1:
		return ErrInsufficientInventory
	case -2:
		return ErrSeatStateChanged
	case -3:
		return ErrCacheMiss
	default:
		return fmt.Errorf("在庫遷移スクリプトが不明な結果を返しました: %d", result)
	}
}

// Reserve は座席を未販売→確保中へ移し、残数を減らす
func (e *MutationEngine) Reserve(ctx context.Context, programID string, selections map[string][]string) error {
	batch := make([]CategoryMutation, 0, len(selections))
	for categoryID, seatIDs := range selections {
		batch = append(batch, CategoryMutation{
			CategoryID: categoryID,
			SeatIDs:    seatIDs,
			From:       seat.StatusNoSold,
			To:         seat.StatusLocked,
			Delta:      -len(seatIDs),
		})
	}
	return e.Apply(ctx, programID, batch)
}

// Release は座席を指定の遷移元から遷移先へ移す
// 遷移先が未販売の場合は残数を戻し、販売済みへの確定では残数は変えない
func (e *MutationEngine) Release(ctx context.Context, programID string, selections map[string][]string, from, to seat.Status) error {
	batch := make([]CategoryMutation, 0, len(selections))
	for categoryID, seatIDs := range selections {
		delta := 0
		if to == seat.StatusNoSold {
			delta = len(seatIDs)
		}
		batch = append(batch, CategoryMutation{
			CategoryID: categoryID,
			SeatIDs:    seatIDs,
			From:       from,
			To:         to,
			Delta:      delta,
		})
	}
	return e.Apply(ctx, programID, batch)
}
