package core

import (
	"context"
	"sort"
	"strings"
	"time"
)

// tagFields are the context fields promoted to metric tags when present.
var tagFields = []string{"result_code", "order_id", "increment_id", "quote_id"}

// observeOperation is deferred by every service operation: it emits one
// counter, one duration histogram, and one structured log line describing
// the call's outcome.
func (s *Service) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if s == nil {
		return
	}
	operation = slugifyOperation(operation)
	status := "success"
	if err != nil {
		status = "failure"
	}
	elapsed := time.Since(startedAt).Milliseconds()

	tags := map[string]string{"operation": operation, "status": status}
	for _, key := range tagFields {
		if value, ok := fields[key].(string); ok && strings.TrimSpace(value) != "" {
			tags[key] = value
		}
	}
	if s.metricsRecorder != nil {
		s.metricsRecorder.IncCounter(ctx, "checkout."+operation+".total", 1, cloneTags(tags))
		s.metricsRecorder.ObserveHistogram(ctx, "checkout."+operation+".duration_ms", float64(elapsed), cloneTags(tags))
	}

	if s.logger == nil {
		return
	}
	entry := make(map[string]any, len(fields)+4)
	for key, value := range fields {
		entry[key] = value
	}
	entry["event_type"] = operation
	entry["status"] = status
	entry["duration_ms"] = elapsed
	if err != nil {
		entry["error"] = err.Error()
		s.emit(ctx, true, operation+" failed", entry)
		return
	}
	s.emit(ctx, false, operation+" succeeded", entry)
}

// emit routes one log line through the context-aware logger, upgrading to
// structured fields when the logger supports them.
func (s *Service) emit(ctx context.Context, isError bool, message string, fields map[string]any) {
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(fields)
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

	if isError {
		logger.Error(message, args...)
		return
	}
	logger.Info(message, args...)
}

func slugifyOperation(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	if operation == "" {
		return "unknown"
	}
	replacer := strings.NewReplacer(" ", "_", "-", "_")
	return replacer.Replace(operation)
}
