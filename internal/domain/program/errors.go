package program

import "errors"

// Program ドメインのエラー定義
var (
	ErrProgramNotFound        = errors.New("公演が見つかりません")
	ErrCategoryNotFound       = errors.New("チケット種別が見つかりません")
	ErrProgramNameRequired    = errors.New("公演名は必須です")
	ErrProgramIDRequired      = errors.New("公演IDは必須です")
	ErrCategoryNameRequired   = errors.New("チケット種別名は必須です")
	ErrInvalidPrice           = errors.New("価格は0以上である必要があります")
	ErrInvalidTotalCount      = errors.New("総数は1以上である必要があります")
	ErrInvalidSalePeriod      = errors.New("販売期間が不正です")
	ErrProgramNotOnSale       = errors.New("公演の販売期間外です")
	ErrOptimisticLockConflict = errors.New("楽観的ロックの競合が発生しました")
)
