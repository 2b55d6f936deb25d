package motion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/teslashibe/go-sonify/pkg/experiment"
	"github.com/teslashibe/go-sonify/pkg/metrics"
	"github.com/teslashibe/go-sonify/pkg/telemetry"
)

// Source is the part of telemetry.Feed the ingestion task needs.
type Source interface {
	Markers(ctx context.Context) ([]telemetry.Marker, error)
	Receive(ctx context.Context, timeout time.Duration) (*telemetry.Frame, error)
}

// Ingestor refreshes a Buffer from a telemetry Source. Refresh and Reindex
// may be called from different goroutines.
type Ingestor struct {
	source  Source
	buffer  *Buffer
	flags   *experiment.Flags
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	bindings *Bindings
}

// NewIngestor creates an ingestor for the subjects named by labels.
func NewIngestor(source Source, buffer *Buffer, flags *experiment.Flags, labels []string, timeout time.Duration, logger *slog.Logger) (*Ingestor, error) {
	bindings, err := NewBindings(labels)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		source:   source,
		buffer:   buffer,
		flags:    flags,
		timeout:  timeout,
		logger:   logger.With("component", "ingest"),
		bindings: bindings,
	}, nil
}

// Reindex enumerates the labeled markers and binds every subject, or fails
// with every binding invalidated.
func (in *Ingestor) Reindex(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.reindex(ctx)
}

func (in *Ingestor) reindex(ctx context.Context) error {
	markers, err := in.source.Markers(ctx)
	if err != nil {
		in.bindings.Invalidate()
		metrics.ReindexTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("enumerate markers: %w", err)
	}
	if err := in.bindings.Resolve(markers); err != nil {
		metrics.ReindexTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.ReindexTotal.WithLabelValues("ok").Inc()
	for i := 0; i < NumSubjects; i++ {
		idx, _ := in.bindings.Index(i)
		in.logger.Info("marker bound", "subject", in.bindings.Label(i), "index", idx)
	}
	return nil
}

// Refresh receives at most one frame and commits every subject's position.
//
// It returns immediately while streaming is off or sound is muted. A receive
// failure skips the refresh and the last frame stays current. A subject whose
// marker cannot be read triggers one reindex per refresh; if that does not
// help, the subject is written at the origin.
func (in *Ingestor) Refresh(ctx context.Context) error {
	if !in.flags.Streaming() || in.flags.Silence() {
		return nil
	}

	frame, err := in.source.Receive(ctx, in.timeout)
	if err != nil {
		metrics.IngestDroppedTotal.Inc()
		return fmt.Errorf("receive: %w", err)
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	reindexed := false
	for i := 0; i < NumSubjects; i++ {
		p, err := in.read(frame, i)
		if err != nil && !reindexed {
			reindexed = true
			in.logger.Debug("marker read failed, reindexing", "subject", in.bindings.Label(i), "error", err)
			if rerr := in.reindex(ctx); rerr != nil {
				in.logger.Warn("reindex failed", "error", rerr)
			} else {
				p, err = in.read(frame, i)
			}
		}
		if err != nil {
			in.logger.Debug("subject unresolved, using origin", "subject", in.bindings.Label(i), "error", err)
			metrics.IngestFallbacksTotal.Inc()
			p = Vec3{}
		}
		in.buffer.Set(i, p)
	}

	snap := in.buffer.Commit(frame.Number)
	metrics.IngestFramesTotal.Inc()
	for i, m := range snap.MaxStep {
		metrics.SubjectMaxStep.WithLabelValues(strconv.Itoa(i)).Set(float64(m))
	}
	return nil
}

func (in *Ingestor) read(frame *telemetry.Frame, subject int) (Vec3, error) {
	idx, err := in.bindings.Index(subject)
	if err != nil {
		return Vec3{}, err
	}
	p, err := frame.Marker3D(idx)
	if err != nil {
		return Vec3{}, err
	}
	return Vec3(p), nil
}

// Bound reports whether every subject currently has a marker.
func (in *Ingestor) Bound() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.bindings.Valid()
}

// IsTimeout reports whether err is a receive timeout, the common idle case.
func IsTimeout(err error) bool {
	return errors.Is(err, telemetry.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
