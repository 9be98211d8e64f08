package application

import "errors"

// アプリケーション層のエラー定義
var (
	ErrInvalidQuantity       = errors.New("枚数は1以上である必要があります")
	ErrNotEnoughSeats        = errors.New("要求枚数分の座席がありません")
	ErrNoSeatsSelected       = errors.New("座席または枚数を指定してください")
	ErrDuplicateSeatID       = errors.New("同じ座席が重複して指定されています")
	ErrPurchaseLimitExceeded = errors.New("購入上限枚数を超えています")
	ErrPriceTampered         = errors.New("申告金額が正規の金額を超えています")
	ErrInvalidTicketHolder   = errors.New("チケット名義人が不正です")
	ErrHolderCountMismatch   = errors.New("チケット名義人の数が枚数と一致しません")
)
