package sync

import (
	"context"

	"github.com/agentstation/factmap/pkg/reconciler"
)

// Metrics receives measurements from the orchestrator.
type Metrics interface {
	RecordFetch(ctx context.Context, source, status string, durationMs int64)
	RecordMerge(ctx context.Context, source string, res reconciler.Result)
	RecordRun(ctx context.Context, state string, passes int, durationMs int64)
	RecordError(ctx context.Context, source, errorType string)
}

type noopMetrics struct{}

func (noopMetrics) RecordFetch(context.Context, string, string, int64)     {}
func (noopMetrics) RecordMerge(context.Context, string, reconciler.Result) {}
func (noopMetrics) RecordRun(context.Context, string, int, int64)          {}
func (noopMetrics) RecordError(context.Context, string, string)            {}
