package core

import (
	"context"
	"maps"
	"slices"
	"strings"
	"time"
)

// Observer logs and meters API operations. The zero value is usable and
// drops everything.
type Observer struct {
	Logger  Logger
	Metrics MetricsRecorder
	Prefix  string
	Now     func() time.Time
}

func (o Observer) Observe(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	tags := metricTags(operation, err, fields)
	elapsed := o.now().Sub(startedAt)

	contextFields := cloneFields(fields)
	contextFields["event_type"] = operation
	contextFields["status"] = tags["status"]
	contextFields["duration_ms"] = elapsed.Milliseconds()
	if err != nil {
		contextFields["error"] = err.Error()
		contextFields["error_kind"] = tags["error_kind"]
	}

	if o.Metrics != nil {
		o.Metrics.IncCounter(ctx, metricName(o.Prefix, operation, metricSuffixTotal), 1, maps.Clone(tags))
		o.Metrics.ObserveHistogram(ctx, metricName(o.Prefix, operation, metricSuffixDuration), float64(elapsed.Milliseconds()), maps.Clone(tags))
	}

	if err != nil {
		o.Log(ctx, "error", operation+" failed", contextFields)
		return
	}
	o.Log(ctx, "debug", operation+" succeeded", contextFields)
}

func (o Observer) Log(ctx context.Context, level string, message string, fields map[string]any) {
	if o.Logger == nil {
		return
	}
	logger := o.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	fields = RedactSensitiveMap(fields)
	args := flattenFields(fields)
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
		args = nil
	}
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "warn", "warning":
		logger.Warn(message, args...)
	case "debug":
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (o Observer) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func cloneFields(fields map[string]any) map[string]any {
	copied := make(map[string]any, len(fields))
	maps.Copy(copied, fields)
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := slices.Sorted(maps.Keys(fields))
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
