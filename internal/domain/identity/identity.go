package identity

import (
	"context"
	"errors"
)

// 外部の会員サービスに対するエラー定義
var (
	ErrUserNotFound   = errors.New("ユーザーが見つかりません")
	ErrHolderNotFound = errors.New("チケット名義人が見つかりません")
)

// TicketHolder はチケット名義人（入場者）を表す
type TicketHolder struct {
	ID     string
	UserID string
	Name   string
}

// PurchaseCountGetter はユーザーの公演ごとの購入済み枚数を取得する
// 購入上限チェックに使用する外部コラボレーター
type PurchaseCountGetter interface {
	GetPurchaseCount(ctx context.Context, userID, programID string) (int, error)
}

// TicketHolderLister はユーザーに紐づくチケット名義人一覧を取得する
type TicketHolderLister interface {
	ListTicketHolders(ctx context.Context, userID string) ([]*TicketHolder, error)
}

// Service は会員サービスへの参照をまとめたインターフェース
type Service interface {
	PurchaseCountGetter
	TicketHolderLister
}
