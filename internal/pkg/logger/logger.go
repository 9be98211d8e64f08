package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log *zap.Logger
	// pkg はパッケージ関数用（呼び出し元を正しく記録するため1段スキップ）
	pkg *zap.Logger
)

func init() {
	Set(NewLogger("development"))
}

// NewLogger は環境に応じたロガーを作成する
// LOG_LEVEL 環境変数でレベルを上書きできる
func NewLogger(env string) *zap.Logger {
	var config zap.Config
	if env == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(lvl)); err == nil {
			config.Level = zap.NewAtomicLevelAt(level)
		}
	}

	logger, _ := config.Build()
	return logger
}

// Get はグローバルロガーを返す
func Get() *zap.Logger {
	return log
}

// Set はグローバルロガーを差し替える
func Set(l *zap.Logger) {
	log = l
	pkg = l.WithOptions(zap.AddCallerSkip(1))
}

func Info(msg string, fields ...zap.Field) {
	pkg.Info(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	pkg.Error(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	pkg.Debug(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	pkg.Warn(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	pkg.Fatal(msg, fields...)
}

func With(fields ...zap.Field) *zap.Logger {
	return log.With(fields...)
}

func Sync() error {
	return log.Sync()
}
