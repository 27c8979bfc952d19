package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.OTEL = false

	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, logger)

	assert.NotNil(t, logger.zap)
	assert.Equal(t, cfg, logger.config)
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"

	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestLogger_ContextAwareMethods(t *testing.T) {
	core, observed := observer.New(TraceLevel)
	logger := &Logger{
		zap:    zap.New(core),
		config: NewDefaultConfig(),
	}

	ctx := context.Background()

	tests := []struct {
		name    string
		logFunc func()
		level   zapcore.Level
		message string
	}{
		{
			name:    "trace",
			logFunc: func() { logger.Trace(ctx, "trace message", zap.String("key", "val")) },
			level:   TraceLevel,
			message: "trace message",
		},
		{
			name:    "debug",
			logFunc: func() { logger.Debug(ctx, "debug message", zap.String("key", "val")) },
			level:   zapcore.DebugLevel,
			message: "debug message",
		},
		{
			name:    "info",
			logFunc: func() { logger.Info(ctx, "info message", zap.String("key", "val")) },
			level:   zapcore.InfoLevel,
			message: "info message",
		},
		{
			name:    "warn",
			logFunc: func() { logger.Warn(ctx, "warn message", zap.String("key", "val")) },
			level:   zapcore.WarnLevel,
			message: "warn message",
		},
		{
			name:    "error",
			logFunc: func() { logger.Error(ctx, "error message", zap.String("key", "val")) },
			level:   zapcore.ErrorLevel,
			message: "error message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observed.TakeAll()
			tt.logFunc()

			logs := observed.All()
			require.Len(t, logs, 1)
			assert.Equal(t, tt.level, logs[0].Level)
			assert.Equal(t, tt.message, logs[0].Message)
			assert.Len(t, logs[0].Context, 1)
		})
	}
}

func TestLogger_With(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := &Logger{
		zap:    zap.New(core),
		config: NewDefaultConfig(),
	}

	child := logger.With(zap.String("child_field", "value"))
	child.Info(context.Background(), "child log")

	logs := observed.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "child log", logs[0].Message)
	assertFieldExists(t, logs[0].Context, "child_field", "value")
}

func TestLogger_Named(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := &Logger{
		zap:    zap.New(core),
		config: NewDefaultConfig(),
	}

	named := logger.Named("scheduler")
	named.Info(context.Background(), "named log")

	logs := observed.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "scheduler", logs[0].LoggerName)
}

func TestLogger_Enabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Level = zapcore.InfoLevel

	core, _ := observer.New(cfg.Level)
	logger := &Logger{
		zap:    zap.New(core),
		config: cfg,
	}

	assert.False(t, logger.Enabled(TraceLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Enabled(zapcore.ErrorLevel))
}

func TestLogger_AutoInjectContextFields(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := &Logger{zap: zap.New(core), config: NewDefaultConfig()}

	ctx := WithWorkspaceID(context.Background(), "ws_memoryagent_a1b2c3d4")
	ctx = WithFilePath(ctx, "internal/server/server.go")

	logger.Info(ctx, "file indexed", zap.Int("entities", 3))

	logs := observed.All()
	require.Len(t, logs, 1)

	assertFieldExists(t, logs[0].Context, "workspace.id", "ws_memoryagent_a1b2c3d4")
	assertFieldExists(t, logs[0].Context, "file.path", "internal/server/server.go")
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		input   string
		want    zapcore.Level
		wantErr bool
	}{
		{"trace", TraceLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := LevelFromString(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// assertFieldExists checks for a string field in a log entry's context.
func assertFieldExists(t *testing.T, fields []zapcore.Field, key, expected string) {
	t.Helper()
	for _, field := range fields {
		if field.Key == key && field.String == expected {
			return
		}
	}
	t.Errorf("field %q=%q not found in %+v", key, expected, fields)
}
