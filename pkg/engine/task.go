package engine

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/teslashibe/go-sonify/pkg/metrics"
)

// Task is a lower-priority job that runs only when the render loop kicks it.
//
// At most one run is pending at a time: a kick that arrives while a run is
// already queued is dropped, so a slow task never builds a backlog.
type Task struct {
	name   string
	fn     func(ctx context.Context)
	kick   chan struct{}
	runs   atomic.Uint64
	logger *slog.Logger

	runsTotal prometheus.Counter
	coalesced prometheus.Counter
}

// NewTask creates a task. fn may block; it must honour ctx.
func NewTask(name string, fn func(ctx context.Context), logger *slog.Logger) *Task {
	if logger == nil {
		logger = slog.Default()
	}
	return &Task{
		name:      name,
		fn:        fn,
		kick:      make(chan struct{}, 1),
		logger:    logger.With("task", name),
		runsTotal: metrics.TaskRunsTotal.WithLabelValues(name),
		coalesced: metrics.TaskKicksCoalescedTotal.WithLabelValues(name),
	}
}

// Kick schedules one run. It never blocks.
func (t *Task) Kick() {
	select {
	case t.kick <- struct{}{}:
	default:
		t.coalesced.Inc()
	}
}

// Run executes kicked runs until ctx is done.
func (t *Task) Run(ctx context.Context) {
	t.logger.Debug("task started")
	defer t.logger.Debug("task stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.kick:
			if ctx.Err() != nil {
				return
			}
			t.fn(ctx)
			t.runs.Add(1)
			t.runsTotal.Inc()
		}
	}
}

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Runs returns the number of completed runs.
func (t *Task) Runs() uint64 { return t.runs.Load() }
