package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/FGover/damai-sub000/internal/domain/program"
	"github.com/FGover/damai-sub000/internal/domain/seat"
	redisinfra "github.com/FGover/damai-sub000/internal/infrastructure/redis"
	"github.com/FGover/damai-sub000/internal/lock"
	"github.com/FGover/damai-sub000/internal/pkg/metrics"
)

// Resolver は座席在庫の3層リードスルーキャッシュ
// プロセス内 → 分散キャッシュ → 永続ストアの順に解決する。
//
// 分散キャッシュのミス時の投入は (公演ID, チケット種別ID) 単位の
// 排他ロック + ダブルチェックで直列化し、同一キーへの
// 永続ストア問い合わせをリクエスト数に関わらず1回に抑える。
// 投入の書き込み自体は読み書きロックの書き込み側で行い、
// 読み取り中のリクエストと複数キー投入が交錯しないようにする。
type Resolver struct {
	local       *Local
	store       *redisinfra.InventoryStore
	seatRepo    seat.Repository
	programRepo program.Repository
	locks       *lock.Manager
	localTTL    time.Duration
	redisTTL    time.Duration
	lockWait    time.Duration
	metrics     *metrics.Metrics

	// 公演メタデータは分散ロックを介さないため、プロセス内の
	// 同時ミスだけ singleflight で1回の問い合わせにまとめる
	flight singleflight.Group
}

// NewResolver は新しいResolverを作成する
func NewResolver(
	local *Local,
	store *redisinfra.InventoryStore,
	seatRepo seat.Repository,
	programRepo program.Repository,
	locks *lock.Manager,
	localTTL, redisTTL, lockWait time.Duration,
	m *metrics.Metrics,
) *Resolver {
	return &Resolver{
		local:       local,
		store:       store,
		seatRepo:    seatRepo,
		programRepo: programRepo,
		locks:       locks,
		localTTL:    localTTL,
		redisTTL:    redisTTL,
		lockWait:    lockWait,
		metrics:     m,
	}
}

// minCacheTTL は開演直前でもキャッシュが即座に失効しないための下限
const minCacheTTL = 10 * time.Second

func localSeatsKey(programID, categoryID string) string {
	return fmt.Sprintf("seats:%s:%s", programID, categoryID)
}

func localRemainingKey(programID, categoryID string) string {
	return fmt.Sprintf("remain:%s:%s", programID, categoryID)
}

func localProgramKey(programID string) string {
	return fmt.Sprintf("program:%s", programID)
}

func localCategoriesKey(programID string) string {
	return fmt.Sprintf("categories:%s", programID)
}

// populationLockKey は分散キャッシュ投入を直列化するロックキー
func populationLockKey(programID, categoryID string) string {
	return fmt.Sprintf("cache:populate:%s:%s", programID, categoryID)
}

// readWriteLockKey は投入の書き込みと読み取りを調停するロックキー
func readWriteLockKey(programID, categoryID string) string {
	return fmt.Sprintf("cache:rw:%s:%s", programID, categoryID)
}

// GetSeats はチケット種別の全座席を取得する
func (r *Resolver) GetSeats(ctx context.Context, programID, categoryID string) ([]*seat.Seat, error) {
	if v, ok := r.local.Get(localSeatsKey(programID, categoryID)); ok {
		r.observeTier("local", "hit")
		return v.([]*seat.Seat), nil
	}
	r.observeTier("local", "miss")

	seats, err := r.readDistributedSeats(ctx, programID, categoryID)
	if err == nil {
		r.observeTier("redis", "hit")
		r.setLocalSeats(programID, categoryID, seats)
		return seats, nil
	}
	if !errors.Is(err, redisinfra.ErrCacheMiss) {
		return nil, err
	}
	r.observeTier("redis", "miss")

	seats, _, err = r.populate(ctx, programID, categoryID)
	if err != nil {
		return nil, err
	}
	r.setLocalSeats(programID, categoryID, seats)
	return seats, nil
}

// GetRemaining はチケット種別の残数を取得する
func (r *Resolver) GetRemaining(ctx context.Context, programID, categoryID string) (int, error) {
	if v, ok := r.local.Get(localRemainingKey(programID, categoryID)); ok {
		r.observeTier("local", "hit")
		return v.(int), nil
	}
	r.observeTier("local", "miss")

	remaining, err := r.readDistributedRemaining(ctx, programID, categoryID)
	if err == nil {
		r.observeTier("redis", "hit")
		r.local.Set(localRemainingKey(programID, categoryID), remaining, r.remainingLocalTTL())
		return remaining, nil
	}
	if !errors.Is(err, redisinfra.ErrCacheMiss) {
		return 0, err
	}
	r.observeTier("redis", "miss")

	_, remaining, err = r.populate(ctx, programID, categoryID)
	if err != nil {
		return 0, err
	}
	r.local.Set(localRemainingKey(programID, categoryID), remaining, r.remainingLocalTTL())
	return remaining, nil
}

// readDistributedSeats は読み取りロックの下で分散キャッシュを読む
func (r *Resolver) readDistributedSeats(ctx context.Context, programID, categoryID string) ([]*seat.Seat, error) {
	handle, err := r.locks.Acquire(ctx, readWriteLockKey(programID, categoryID), lock.KindRead, r.lockWait)
	if err != nil {
		return nil, err
	}
	defer handle.Release(ctx)
	return r.store.GetSeats(ctx, programID, categoryID)
}

func (r *Resolver) readDistributedRemaining(ctx context.Context, programID, categoryID string) (int, error) {
	handle, err := r.locks.Acquire(ctx, readWriteLockKey(programID, categoryID), lock.KindRead, r.lockWait)
	if err != nil {
		return 0, err
	}
	defer handle.Release(ctx)
	return r.store.GetRemaining(ctx, programID, categoryID)
}

// populate は分散キャッシュのミス時に永続ストアから読み込んで投入する
// 排他ロックの取得後に分散キャッシュを再確認（ダブルチェック）し、
// 依然としてミスの場合のみ永続ストアを問い合わせる
func (r *Resolver) populate(ctx context.Context, programID, categoryID string) ([]*seat.Seat, int, error) {
	handle, err := r.locks.Acquire(ctx, populationLockKey(programID, categoryID), lock.KindExclusive, r.lockWait)
	if err != nil {
		return nil, 0, err
	}
	defer handle.Release(ctx)

	// ロック待機中に先行リクエストが投入を終えている可能性がある
	seats, err := r.store.GetSeats(ctx, programID, categoryID)
	if err == nil {
		remaining, rerr := r.store.GetRemaining(ctx, programID, categoryID)
		if rerr == nil {
			return seats, remaining, nil
		}
		if !errors.Is(rerr, redisinfra.ErrCacheMiss) {
			return nil, 0, rerr
		}
	} else if !errors.Is(err, redisinfra.ErrCacheMiss) {
		return nil, 0, err
	}

	prog, err := r.programRepo.GetByID(ctx, programID)
	if err != nil {
		return nil, 0, fmt.Errorf("公演取得に失敗: %w", err)
	}

	seats, err = r.seatRepo.GetByCategoryID(ctx, programID, categoryID)
	if err != nil {
		return nil, 0, fmt.Errorf("座席取得に失敗: %w", err)
	}

	remaining := 0
	if len(seats) > 0 {
		for _, se := range seats {
			if se.Status == seat.StatusNoSold {
				remaining++
			}
		}
	} else {
		// 座席管理なしのチケット種別はカウンタのみを持つ
		remaining, err = r.programRepo.GetRemaining(ctx, programID, categoryID)
		if err != nil {
			return nil, 0, fmt.Errorf("残数取得に失敗: %w", err)
		}
	}

	ttl := r.distributedTTL(prog)

	// 複数キーの投入中に読み取りが走らないよう書き込みロックを取る
	wh, err := r.locks.Acquire(ctx, readWriteLockKey(programID, categoryID), lock.KindWrite, r.lockWait)
	if err != nil {
		return nil, 0, err
	}
	defer wh.Release(ctx)

	if err := r.store.Populate(ctx, programID, categoryID, seats, remaining, ttl); err != nil {
		return nil, 0, err
	}
	return seats, remaining, nil
}

// distributedTTL は分散キャッシュのTTLを開演時刻から導出する
func (r *Resolver) distributedTTL(prog *program.Program) time.Duration {
	ttl := r.redisTTL
	if until := prog.TimeUntilShow(); until > 0 && until < ttl {
		ttl = until
	}
	if ttl < minCacheTTL {
		ttl = minCacheTTL
	}
	return ttl
}

// setLocalSeats は座席一覧をプロセス内キャッシュに格納する
func (r *Resolver) setLocalSeats(programID, categoryID string, seats []*seat.Seat) {
	r.local.Set(localSeatsKey(programID, categoryID), seats, r.localTTL)
}

// remainingLocalTTL は残数のプロセス内TTL
// 残数は変化が激しいため座席一覧より短命に保つ
func (r *Resolver) remainingLocalTTL() time.Duration {
	ttl := r.localTTL / 10
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

// InvalidateLocal はチケット種別のプロセス内キャッシュだけを無効化する
// 分散キャッシュ上の在庫を直接遷移させた後に呼び、次の読み取りを
// 分散キャッシュまで貫通させる
func (r *Resolver) InvalidateLocal(programID string, categoryIDs ...string) {
	for _, categoryID := range categoryIDs {
		r.local.Delete(
			localSeatsKey(programID, categoryID),
			localRemainingKey(programID, categoryID),
		)
	}
}

// Invalidate はチケット種別のキャッシュを全階層から無効化する
func (r *Resolver) Invalidate(ctx context.Context, programID, categoryID string) error {
	r.local.Delete(
		localSeatsKey(programID, categoryID),
		localRemainingKey(programID, categoryID),
	)
	return r.store.Invalidate(ctx, programID, categoryID)
}

// InvalidateProgram は公演の全チケット種別キャッシュを無効化する（公演削除時）
func (r *Resolver) InvalidateProgram(ctx context.Context, programID string, categoryIDs []string) error {
	r.local.Delete(localProgramKey(programID), localCategoriesKey(programID))
	for _, categoryID := range categoryIDs {
		if err := r.Invalidate(ctx, programID, categoryID); err != nil {
			return err
		}
	}
	return nil
}

// GetProgram は公演をプロセス内キャッシュ併用で取得する
func (r *Resolver) GetProgram(ctx context.Context, programID string) (*program.Program, error) {
	if v, ok := r.local.Get(localProgramKey(programID)); ok {
		return v.(*program.Program), nil
	}
	v, err, _ := r.flight.Do(localProgramKey(programID), func() (interface{}, error) {
		prog, err := r.programRepo.GetByID(ctx, programID)
		if err != nil {
			return nil, err
		}
		r.local.Set(localProgramKey(programID), prog, r.localTTL)
		return prog, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*program.Program), nil
}

// GetProgramCategories は公演のチケット種別一覧をプロセス内キャッシュ併用で取得する
func (r *Resolver) GetProgramCategories(ctx context.Context, programID string) ([]*program.TicketCategory, error) {
	if v, ok := r.local.Get(localCategoriesKey(programID)); ok {
		return v.([]*program.TicketCategory), nil
	}
	v, err, _ := r.flight.Do(localCategoriesKey(programID), func() (interface{}, error) {
		categories, err := r.programRepo.GetCategoriesByProgramID(ctx, programID)
		if err != nil {
			return nil, err
		}
		r.local.Set(localCategoriesKey(programID), categories, r.localTTL)
		return categories, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*program.TicketCategory), nil
}

func (r *Resolver) observeTier(tier, result string) {
	if r.metrics != nil {
		r.metrics.CacheTierRequests.WithLabelValues(tier, result).Inc()
	}
}
