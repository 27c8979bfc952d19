package logging

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithWorkspaceID_RoundTrip(t *testing.T) {
	ctx := WithWorkspaceID(context.Background(), "ws_memoryagent_0f3a9b2c")
	assert.Equal(t, "ws_memoryagent_0f3a9b2c", WorkspaceIDFromContext(ctx))
}

func TestWorkspaceIDFromContext_Missing(t *testing.T) {
	assert.Empty(t, WorkspaceIDFromContext(context.Background()))
}

func TestWithWorkspaceID_Invalid(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"empty", ""},
		{"uppercase", "WS_ABC"},
		{"hyphen", "ws-abc"},
		{"too long", strings.Repeat("a", 65)},
		{"path separator", "ws/abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Panics(t, func() {
				WithWorkspaceID(context.Background(), tt.id)
			})
		})
	}
}

func TestWithFilePath_RoundTrip(t *testing.T) {
	ctx := WithFilePath(context.Background(), "internal/planner/planner.go")
	assert.Equal(t, "internal/planner/planner.go", FilePathFromContext(ctx))
}

func TestWithFilePath_Invalid(t *testing.T) {
	assert.Panics(t, func() { WithFilePath(context.Background(), "") })
	assert.Panics(t, func() { WithFilePath(context.Background(), string([]byte{0xff, 0xfe})) })
	assert.Panics(t, func() { WithFilePath(context.Background(), strings.Repeat("d", 5000)) })
}

func TestContextFields_Empty(t *testing.T) {
	fields := ContextFields(context.Background())
	assert.Empty(t, fields)
}

func TestContextFields_WorkspaceAndFile(t *testing.T) {
	ctx := WithWorkspaceID(context.Background(), "ws_demo_12345678")
	ctx = WithFilePath(ctx, "pkg/api/handler.go")

	fields := ContextFields(ctx)
	require.Len(t, fields, 2)
	assert.Equal(t, "workspace.id", fields[0].Key)
	assert.Equal(t, "ws_demo_12345678", fields[0].String)
	assert.Equal(t, "file.path", fields[1].Key)
	assert.Equal(t, "pkg/api/handler.go", fields[1].String)
}

func TestWithLogger_FromContext(t *testing.T) {
	logger := NewTestLogger()
	ctx := WithLogger(context.Background(), logger.Logger)

	got := FromContext(ctx)
	assert.Same(t, logger.Logger, got)
}

func TestFromContext_MissingReturnsNop(t *testing.T) {
	got := FromContext(context.Background())
	require.NotNil(t, got)

	// Nop logger must not panic on use
	got.Info(context.Background(), "dropped")
}
