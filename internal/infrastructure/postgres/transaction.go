package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/FGover/damai-sub000/internal/domain/transaction"
)

// txWrapper は sqlx.Tx を transaction.Tx として公開する
type txWrapper struct {
	*sqlx.Tx
}

func (t *txWrapper) Commit() error {
	return t.Tx.Commit()
}

func (t *txWrapper) Rollback() error {
	return t.Tx.Rollback()
}

// TxManager は sqlx ベースのトランザクションマネージャー
// 注文書き込みと座席遷移を同一トランザクションに束ねるために使う
type TxManager struct {
	db *sqlx.DB
}

// NewTxManager は新しい TxManager を作成する
func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db}
}

// Begin は新しいトランザクションを開始する
func (m *TxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &txWrapper{Tx: tx}, nil
}

// UnwrapTx は transaction.Tx から sqlx.Tx を取り出す
// このパッケージのリポジトリ実装だけが使う前提で、
// 異なる実装が渡された場合は nil を返す
func UnwrapTx(tx transaction.Tx) *sqlx.Tx {
	if w, ok := tx.(*txWrapper); ok {
		return w.Tx
	}
	return nil
}
