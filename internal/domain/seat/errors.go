package seat

import "errors"

// Seat ドメインのエラー定義
var (
	ErrSeatNotFound           = errors.New("座席が見つかりません")
	ErrSeatNotAvailable       = errors.New("座席は購入できません")
	ErrInvalidTransition      = errors.New("許可されていない座席状態遷移です")
	ErrProgramIDRequired      = errors.New("公演IDは必須です")
	ErrCategoryIDRequired     = errors.New("チケット種別IDは必須です")
	ErrInvalidCoordinate      = errors.New("座席の行・列番号が不正です")
	ErrInvalidPrice           = errors.New("価格は0以上である必要があります")
	ErrOptimisticLockConflict = errors.New("楽観的ロックの競合が発生しました")
)
