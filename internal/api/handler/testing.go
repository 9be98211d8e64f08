package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/FGover/damai-sub000/internal/api"
)

// NewTestEcho はハンドラーテスト用のEchoインスタンスを作成する
// 本番と同じバリデーターを載せ、バインド＋バリデーションの挙動を揃える
func NewTestEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	return e
}
