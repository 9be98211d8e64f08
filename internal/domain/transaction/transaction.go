package transaction

import "context"

// Tx は永続ストアのトランザクションを表す
// 注文の確定と座席の状態遷移を同一トランザクションに束ねるため、
// アプリケーション層はこの抽象を通してのみトランザクションに触れる
type Tx interface {
	Commit() error
	Rollback() error
}

// Manager はトランザクションの開始点
type Manager interface {
	Begin(ctx context.Context) (Tx, error)
}
