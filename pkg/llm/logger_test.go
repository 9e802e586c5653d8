package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/logx"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]uint32{
		"debug":   logx.DebugLevel,
		" DEBUG ": logx.DebugLevel,
		"info":    logx.InfoLevel,
		"warn":    logx.InfoLevel,
		"":        logx.InfoLevel,
		"error":   logx.ErrorLevel,
		"fatal":   logx.SevereLevel,
		"severe":  logx.SevereLevel,
	}
	for in, want := range tests {
		require.Equal(t, want, parseLevel(in), in)
	}
}

func TestToLogFieldsIsSorted(t *testing.T) {
	require.Nil(t, toLogFields(nil))

	fields := toLogFields(Fields{"model": "gemini-2.0-flash", "attempt": 2, "duration_ms": 31})
	require.Len(t, fields, 3)
	require.Equal(t, "attempt", fields[0].Key)
	require.Equal(t, "duration_ms", fields[1].Key)
	require.Equal(t, "model", fields[2].Key)
	require.Equal(t, "gemini-2.0-flash", fields[2].Value)
}

func TestLoggerMethods(t *testing.T) {
	logger := &logxLogger{}
	ctx := context.Background()
	require.NotPanics(t, func() {
		logger.Debug(ctx, "debug", Fields{"k": "v"})
		logger.Info(ctx, "info", nil)
		logger.Warn(ctx, "warn", Fields{})
		logger.Error(ctx, errors.New("boom"), Fields{"k": 1})
	})
}
