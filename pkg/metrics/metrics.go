// Package metrics holds the Prometheus collectors shared by the engine, the
// ingestion and sequencing tasks, and the latency probe.
//
// Collectors are registered with the default registry on import and exposed by
// the status server at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Render path
	RenderBuffersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sonify_render_buffers_total",
			Help: "Total number of audio buffers rendered",
		},
	)

	RenderFramesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sonify_render_frames_total",
			Help: "Total number of audio frames rendered",
		},
	)

	RenderOverrunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sonify_render_overruns_total",
			Help: "Render calls that took longer than the buffer they produced",
		},
	)

	// Ingestion path
	IngestFramesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sonify_ingest_frames_total",
			Help: "Telemetry frames committed to the motion buffer",
		},
	)

	IngestDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sonify_ingest_dropped_total",
			Help: "Refreshes that received no frame (timeout or transport error)",
		},
	)

	IngestFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sonify_ingest_fallbacks_total",
			Help: "Subject positions written as the origin after an unresolved marker",
		},
	)

	ReindexTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonify_reindex_total",
			Help: "Marker reindex attempts by result",
		},
		[]string{"result"},
	)

	SubjectMaxStep = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sonify_subject_max_step",
			Help: "Largest frame-to-frame step seen per subject, in capture units",
		},
		[]string{"subject"},
	)

	// Task scheduling
	TaskRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonify_task_runs_total",
			Help: "Auxiliary task invocations",
		},
		[]string{"task"},
	)

	TaskKicksCoalescedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonify_task_kicks_coalesced_total",
			Help: "Kicks that found the task already pending",
		},
		[]string{"task"},
	)

	// Sequencer
	ExperimentPhase = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sonify_experiment_phase",
			Help: "Current experiment phase ordinal",
		},
	)

	TrialsCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sonify_trials_completed_total",
			Help: "Trials completed",
		},
	)

	SilentTrialsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sonify_silent_trials_total",
			Help: "Sonification trials that ran silent because streaming could not start",
		},
	)

	EventTagsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonify_event_tags_total",
			Help: "Event tags posted to the capture log by tag and result",
		},
		[]string{"tag", "result"},
	)

	// Telemetry commands
	CommandLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sonify_command_latency_seconds",
			Help:    "Round-trip latency of telemetry commands",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)

	ProbeLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sonify_probe_latency_seconds",
			Help:    "Round-trip latency measured by the latency probe",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)

	ProbeFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sonify_probe_failures_total",
			Help: "Latency probe requests that failed",
		},
	)

	// Bridge relay
	RelayClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sonify_relay_clients",
			Help: "Bridge sessions connected to the relay",
		},
	)

	RelayFramesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sonify_relay_frames_total",
			Help: "Frames forwarded from the capture server to bridge sessions",
		},
	)
)
