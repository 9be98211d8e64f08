package order

import "errors"

// Order ドメインのエラー定義
var (
	ErrOrderNotFound         = errors.New("注文が見つかりません")
	ErrOrderNotPayable       = errors.New("注文は支払い可能な状態ではありません")
	ErrOrderNotRefundable    = errors.New("注文は返金可能な状態ではありません")
	ErrOrderAlreadyPaid      = errors.New("注文は既に支払い済みです")
	ErrOrderAlreadyCancelled = errors.New("注文は既にキャンセルされています")
	ErrOrderAlreadyRefunded  = errors.New("注文は既に返金されています")
	ErrOrderNumberRequired   = errors.New("注文番号は必須です")
	ErrUserIDRequired        = errors.New("ユーザーIDは必須です")
	ErrProgramIDRequired     = errors.New("公演IDは必須です")
	ErrLineItemsRequired     = errors.New("注文明細は必須です")
	ErrDuplicateOrderNumber  = errors.New("同じ注文番号の注文が既に存在します")
)
