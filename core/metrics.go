package core

import (
	"context"
	"strings"
)

const (
	metricSuffixTotal    = "total"
	metricSuffixDuration = "duration_ms"

	statusSuccess = "success"
	statusFailure = "failure"
)

// metricTagFields are the observed fields promoted to metric tags. Task
// identifiers are left out to keep tag cardinality bounded.
var metricTagFields = []string{"provider_id", "app_id"}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// metricName builds "<prefix>.<operation>.<suffix>", falling back to the
// service name as prefix.
func metricName(prefix, operation, suffix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultServiceName
	}
	return prefix + "." + operation + "." + suffix
}

// metricTags labels one operation sample. Failures also carry the
// classified error kind.
func metricTags(operation string, err error, fields map[string]any) map[string]string {
	tags := map[string]string{"operation": operation, "status": statusSuccess}
	if err != nil {
		tags["status"] = statusFailure
		tags["error_kind"] = string(Resolve(err).Kind)
	}
	for _, key := range metricTagFields {
		if value, ok := fields[key].(string); ok && strings.TrimSpace(value) != "" {
			tags[key] = strings.TrimSpace(value)
		}
	}
	return tags
}

var _ MetricsRecorder = NopMetricsRecorder{}
