package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Instrumentation bundles the logger and metrics recorder shared by the
// processor, sweeper, and pipeline trigger.
type Instrumentation struct {
	Logger  Logger
	Metrics MetricsRecorder
}

func NewInstrumentation(logger Logger, metrics MetricsRecorder) *Instrumentation {
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	return &Instrumentation{Logger: logger, Metrics: metrics}
}

func (in *Instrumentation) ObserveOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if in == nil {
		return
	}
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	status := "success"
	if err != nil {
		status = "failure"
	}

	contextFields := cloneFields(fields)
	contextFields["operation"] = operation
	contextFields["status"] = status
	contextFields["duration_ms"] = time.Since(startedAt).Milliseconds()
	if err != nil {
		contextFields["error"] = err.Error()
	}

	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	for _, key := range []string{"provider", "event_type", "event_id", "entity_ref"} {
		if value := strings.TrimSpace(fmt.Sprint(contextFields[key])); value != "" && value != "<nil>" {
			tags[key] = value
		}
	}

	in.IncCounter(ctx, "intake."+operation+".total", 1, tags)
	in.ObserveHistogram(ctx, "intake."+operation+".duration_ms", float64(time.Since(startedAt).Milliseconds()), tags)

	if err != nil {
		in.LogError(ctx, operation+" failed", contextFields)
		return
	}
	in.LogInfo(ctx, operation+" succeeded", contextFields)
}

func (in *Instrumentation) LogInfo(ctx context.Context, message string, fields map[string]any) {
	in.logWithLevel(ctx, "info", message, fields)
}

func (in *Instrumentation) LogWarn(ctx context.Context, message string, fields map[string]any) {
	in.logWithLevel(ctx, "warn", message, fields)
}

func (in *Instrumentation) LogError(ctx context.Context, message string, fields map[string]any) {
	in.logWithLevel(ctx, "error", message, fields)
}

func (in *Instrumentation) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if in == nil || in.Logger == nil {
		return
	}
	logger := in.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (in *Instrumentation) IncCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if in == nil || in.Metrics == nil {
		return
	}
	in.Metrics.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (in *Instrumentation) ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if in == nil || in.Metrics == nil {
		return
	}
	in.Metrics.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeOperation(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	operation = strings.ReplaceAll(operation, " ", "_")
	operation = strings.ReplaceAll(operation, "-", "_")
	return operation
}
