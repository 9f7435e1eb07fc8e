package logging

import (
	"context"

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
	}

	if runID := RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("run.id", runID))
	}

	if node := NodeFromContext(ctx); node != "" {
		fields = append(fields, zap.String("run.node", node))
	}

	if docID := DocumentFromContext(ctx); docID != "" {
		fields = append(fields, zap.String("document.id", docID))
	}

	return fields
}

// Context key types
type runCtxKey struct{}
type nodeCtxKey struct{}
type documentCtxKey struct{}

// ContextWithRunID attaches a workflow run ID to the context.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		return ctx
	}
	return context.WithValue(ctx, runCtxKey{}, runID)
}

// RunIDFromContext returns the run ID, or "" if absent.
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(runCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// ContextWithNode attaches the currently executing pipeline node.
func ContextWithNode(ctx context.Context, node string) context.Context {
	if node == "" {
		return ctx
	}
	return context.WithValue(ctx, nodeCtxKey{}, node)
}

// NodeFromContext returns the current pipeline node, or "" if absent.
func NodeFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(nodeCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// ContextWithDocument attaches the document ID being processed.
func ContextWithDocument(ctx context.Context, docID string) context.Context {
	if docID == "" {
		return ctx
	}
	return context.WithValue(ctx, documentCtxKey{}, docID)
}

// DocumentFromContext returns the document ID, or "" if absent.
func DocumentFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(documentCtxKey{}).(string); ok {
		return v
	}
	return ""
}
