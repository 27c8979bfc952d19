// internal/logging/context.go
package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	// Trace correlation (from OpenTelemetry)
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	// Workspace context
	if workspaceID := WorkspaceIDFromContext(ctx); workspaceID != "" {
		fields = append(fields, zap.String("workspace.id", workspaceID))
	}

	// File being indexed or queried
	if filePath := FilePathFromContext(ctx); filePath != "" {
		fields = append(fields, zap.String("file.path", filePath))
	}

	return fields
}

// Context key types
type workspaceCtxKey struct{}
type filePathCtxKey struct{}

// Validation constants
const (
	maxWorkspaceIDLen = 64
	maxFilePathLen    = 4096
)

// workspaceIDPattern matches namespace-safe identifiers.
var workspaceIDPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// validateWorkspaceID validates a workspace identifier.
func validateWorkspaceID(id string) error {
	if id == "" {
		return fmt.Errorf("workspace ID cannot be empty")
	}
	if len(id) > maxWorkspaceIDLen {
		return fmt.Errorf("workspace ID exceeds max length %d", maxWorkspaceIDLen)
	}
	if !workspaceIDPattern.MatchString(id) {
		return fmt.Errorf("workspace ID contains invalid characters (must be lowercase alphanumeric, underscore)")
	}
	return nil
}

// validateFilePath validates a file path for log correlation.
func validateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if !utf8.ValidString(path) {
		return fmt.Errorf("file path contains invalid UTF-8")
	}
	if len(path) > maxFilePathLen {
		return fmt.Errorf("file path exceeds max length %d", maxFilePathLen)
	}
	return nil
}

// WorkspaceIDFromContext extracts workspace ID from context.
func WorkspaceIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(workspaceCtxKey{}).(string); ok {
		return id
	}
	return ""
}

// WithWorkspaceID adds workspace ID to context.
// Panics if workspaceID is empty or contains invalid characters.
func WithWorkspaceID(ctx context.Context, workspaceID string) context.Context {
	if err := validateWorkspaceID(workspaceID); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, workspaceCtxKey{}, workspaceID)
}

// FilePathFromContext extracts file path from context.
func FilePathFromContext(ctx context.Context) string {
	if p, ok := ctx.Value(filePathCtxKey{}).(string); ok {
		return p
	}
	return ""
}

// WithFilePath adds a file path to context.
// Panics if path is empty or not valid UTF-8.
func WithFilePath(ctx context.Context, path string) context.Context {
	if err := validateFilePath(path); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, filePathCtxKey{}, path)
}

// loggerCtxKey is the context key for Logger.
type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a default nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}
