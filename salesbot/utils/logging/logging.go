package logging

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Loggers are no-ops until InitLogger runs, so packages can log from tests.
var (
	AppLogger     = zap.NewNop()
	RequestLogger = zap.NewNop()
	TimerLogger   = zap.NewNop()
	ErrorLogger   = zap.NewNop()
)

type ctxKey string

// RequestIDKey carries the chi request id into detached work.
const RequestIDKey ctxKey = "request_id"

// ensureLogsDir makes sure the log folder exists
func ensureLogsDir(dir string) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		panic("Failed to create logs directory: " + err.Error())
	}
}

func InitLogger(dir string) {
	if dir == "" {
		dir = "./logs"
	}
	ensureLogsDir(dir)
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderConfig)

	// app.log also goes to stdout so container logs show the workflow
	appCore := zapcore.NewTee(
		zapcore.NewCore(encoder,
			zapcore.AddSync(&lumberjack.Logger{
				Filename: filepath.Join(dir, "app.log"), MaxSize: 100, MaxAge: 28, Compress: true,
			}),
			zap.InfoLevel,
		),
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), zap.InfoLevel),
	)
	AppLogger = zap.New(appCore)

	requestCore := zapcore.NewCore(encoder,
		zapcore.AddSync(&lumberjack.Logger{
			Filename: filepath.Join(dir, "request.log"), MaxSize: 50, MaxAge: 7, Compress: true,
		}),
		zap.InfoLevel,
	)
	RequestLogger = zap.New(requestCore)

	timerCore := zapcore.NewCore(encoder,
		zapcore.AddSync(&lumberjack.Logger{
			Filename: filepath.Join(dir, "timer.log"), MaxSize: 50, MaxAge: 7, Compress: true,
		}),
		zap.InfoLevel,
	)
	TimerLogger = zap.New(timerCore)

	errorCore := zapcore.NewTee(
		zapcore.NewCore(encoder,
			zapcore.AddSync(&lumberjack.Logger{
				Filename: filepath.Join(dir, "error.log"), MaxSize: 100, MaxAge: 30, Compress: true,
			}),
			zap.ErrorLevel,
		),
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zap.ErrorLevel),
	)
	ErrorLogger = zap.New(errorCore)
}

// Sync flushes every logger. Call it on shutdown.
func Sync() {
	for _, l := range []*zap.Logger{AppLogger, RequestLogger, TimerLogger, ErrorLogger} {
		_ = l.Sync()
	}
}

// LogDuration lets you do: defer logging.LogDuration(ctx, "FuncName")()
func LogDuration(ctx context.Context, name string) func() {
	start := time.Now()
	requestID, _ := ctx.Value(RequestIDKey).(string)

	return func() {
		fields := []zap.Field{
			zap.String("func", name),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		}
		if requestID != "" {
			fields = append(fields, zap.String("request_id", requestID))
		}

		// write ONLY to timer.log
		TimerLogger.Info("Function timed", fields...)
	}
}
