package llm

import (
	"context"
	"sort"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"
)

// Fields represents structured logging fields.
type Fields map[string]interface{}

// Logger wraps logging behaviour used by the backends.
type Logger interface {
	Debug(ctx context.Context, msg string, fields Fields)
	Info(ctx context.Context, msg string, fields Fields)
	Warn(ctx context.Context, msg string, fields Fields)
	Error(ctx context.Context, err error, fields Fields)
}

type logxLogger struct{}

// NewLogger returns a Logger backed by go-zero's logx.
func NewLogger(level string) Logger {
	logx.SetLevel(parseLevel(level))
	return &logxLogger{}
}

func (l *logxLogger) Debug(ctx context.Context, msg string, fields Fields) {
	logx.WithContext(ctx).Debugw(msg, toLogFields(fields)...)
}

func (l *logxLogger) Info(ctx context.Context, msg string, fields Fields) {
	logx.WithContext(ctx).Infow(msg, toLogFields(fields)...)
}

func (l *logxLogger) Warn(ctx context.Context, msg string, fields Fields) {
	logx.WithContext(ctx).Sloww(msg, toLogFields(fields)...)
}

func (l *logxLogger) Error(ctx context.Context, err error, fields Fields) {
	logx.WithContext(ctx).Errorw(err.Error(), toLogFields(fields)...)
}

func parseLevel(level string) uint32 {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logx.DebugLevel
	case "error":
		return logx.ErrorLevel
	case "severe", "fatal":
		return logx.SevereLevel
	default:
		return logx.InfoLevel
	}
}

// toLogFields orders keys so log lines are stable.
func toLogFields(fields Fields) []logx.LogField {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]logx.LogField, 0, len(keys))
	for _, k := range keys {
		out = append(out, logx.Field(k, fields[k]))
	}
	return out
}
