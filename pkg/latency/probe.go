// Package latency measures the round-trip time of telemetry commands.
package latency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/teslashibe/go-sonify/pkg/metrics"
)

// ErrNoSamples is returned when every request failed.
var ErrNoSamples = errors.New("no successful requests")

// Versioner issues a cheap request/response command.
type Versioner interface {
	Version(ctx context.Context) (string, error)
}

// Config controls a probe run.
type Config struct {
	// Requests is the number of Version commands to issue.
	Requests int `yaml:"requests" json:"requests"`

	// Interval is the pause between requests.
	Interval time.Duration `yaml:"interval" json:"interval"`
}

// DefaultConfig returns 1000 back-to-back requests.
func DefaultConfig() Config {
	return Config{Requests: 1000}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Requests <= 0 {
		return fmt.Errorf("latency: requests must be positive")
	}
	if c.Interval < 0 {
		return fmt.Errorf("latency: interval must not be negative")
	}
	return nil
}

// Result summarises a probe run.
type Result struct {
	Version  string        `json:"version"`
	Requests int           `json:"requests"`
	Failures int           `json:"failures"`
	Min      time.Duration `json:"min"`
	Max      time.Duration `json:"max"`
	Mean     time.Duration `json:"mean"`
	StdDev   time.Duration `json:"stddev"`
	P50      time.Duration `json:"p50"`
	P95      time.Duration `json:"p95"`
}

func (r Result) String() string {
	return fmt.Sprintf("%d requests, %d failed: min %v, avg %v, max %v, p95 %v",
		r.Requests, r.Failures, r.Min, r.Mean, r.Max, r.P95)
}

// Probe issues Version commands and times each round trip.
type Probe struct {
	cfg    Config
	target Versioner
	logger *slog.Logger

	// now is replaced in tests.
	now func() time.Time
}

// New creates a probe against target.
func New(cfg Config, target Versioner, logger *slog.Logger) (*Probe, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Probe{
		cfg:    cfg,
		target: target,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Run issues the configured number of requests. Failed requests are counted
// and skipped; cancellation stops the run and returns what was measured.
func (p *Probe) Run(ctx context.Context) (Result, error) {
	res := Result{Requests: p.cfg.Requests}
	samples := make([]time.Duration, 0, p.cfg.Requests)

	for i := 0; i < p.cfg.Requests; i++ {
		if i > 0 && p.cfg.Interval > 0 {
			select {
			case <-ctx.Done():
				res.Requests = i
				return summarise(res, samples), ctx.Err()
			case <-time.After(p.cfg.Interval):
			}
		}
		if err := ctx.Err(); err != nil {
			res.Requests = i
			return summarise(res, samples), err
		}

		start := p.now()
		version, err := p.target.Version(ctx)
		rtt := p.now().Sub(start)
		if err != nil {
			res.Failures++
			metrics.ProbeFailuresTotal.Inc()
			p.logger.Debug("version request failed", "request", i, "error", err)
			continue
		}
		metrics.ProbeLatencySeconds.Observe(rtt.Seconds())
		res.Version = version
		samples = append(samples, rtt)
	}

	res = summarise(res, samples)
	if len(samples) == 0 {
		return res, ErrNoSamples
	}

	p.logger.Info("latency probe finished",
		"version", res.Version,
		"requests", res.Requests,
		"failures", res.Failures,
		"min", res.Min,
		"avg", res.Mean,
		"max", res.Max,
		"p95", res.P95,
	)
	return res, nil
}

func summarise(res Result, samples []time.Duration) Result {
	if len(samples) == 0 {
		return res
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	var sum float64
	for _, s := range sorted {
		sum += float64(s)
	}
	mean := sum / float64(len(sorted))

	var sq float64
	for _, s := range sorted {
		d := float64(s) - mean
		sq += d * d
	}

	res.Min = sorted[0]
	res.Max = sorted[len(sorted)-1]
	res.Mean = time.Duration(mean)
	res.StdDev = time.Duration(math.Sqrt(sq / float64(len(sorted))))
	res.P50 = percentile(sorted, 0.50)
	res.P95 = percentile(sorted, 0.95)
	return res
}

// percentile uses the nearest-rank method on sorted samples.
func percentile(sorted []time.Duration, q float64) time.Duration {
	rank := int(math.Ceil(q * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
