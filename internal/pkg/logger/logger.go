// Package logger 提供带 trace 信息的 zerolog 日志。
package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Init 设置全局日志: 服务名、级别和 Unix 时间戳格式。
func Init(serviceName, level string) {
	InitWithWriter(serviceName, level, os.Stdout)
}

func InitWithWriter(serviceName, level string, w io.Writer) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zlog.Logger = zerolog.New(w).With().Timestamp().Str("service", serviceName).Logger()
}

// Ctx 返回 ctx 里的 logger (没有时用全局 logger)，并附加当前 span 的 trace_id / span_id。
func Ctx(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		l = &zlog.Logger
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	traced := l.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
	return &traced
}
