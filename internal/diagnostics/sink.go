// Package diagnostics provides the sinks that receive retry attempt events.
// Sinks are never called directly by the retry core unless its trace gate is open.
package diagnostics

import (
	"log/slog"

	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/retry"
)

// LogSink writes attempt events as structured log records.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(event retry.Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{
		"call_id", event.CallID,
		"operation", event.Operation,
		"attempt", event.Attempt,
		"duration_ms", event.Duration.Milliseconds(),
		"refreshed", event.Refreshed,
	}

	if event.Succeeded {
		logger.Debug("Remote call attempt succeeded", attrs...)
		return
	}

	attrs = append(attrs, "classification", event.Classification.String(), "error", event.Err)
	switch event.Classification {
	case retry.RetriableImmediately:
		logger.Warn("Transient error detected, scheduling retry", attrs...)
	case retry.RetriableAfterReauth:
		logger.Warn("Credential rejected, refreshing token", attrs...)
	default:
		logger.Error("Remote call attempt failed", attrs...)
	}
}

// MultiSink fans an event out to several sinks in order.
type MultiSink []retry.Sink

func (m MultiSink) Emit(event retry.Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(event)
		}
	}
}
