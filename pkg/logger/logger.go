package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var base = newBase()

func newBase() *zap.SugaredLogger {
	level := zapcore.InfoLevel
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.Lock(os.Stdout), level)
	return zap.New(core).Sugar()
}

func Info(msg string, fields map[string]interface{}) {
	base.Infow(msg, toArgs(fields)...)
}

func Error(msg string, err error) {
	if err == nil {
		base.Error(msg)
		return
	}
	base.Errorw(msg, "error", err.Error())
}

func Warn(msg string, fields map[string]interface{}) {
	base.Warnw(msg, toArgs(fields)...)
}

func toArgs(fields map[string]interface{}) []interface{} {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

// Sync flushes buffered log entries; call before process exit.
func Sync() {
	_ = base.Sync()
}
