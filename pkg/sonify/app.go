package sonify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-sonify/pkg/assets"
	"github.com/teslashibe/go-sonify/pkg/audioio"
	"github.com/teslashibe/go-sonify/pkg/engine"
	"github.com/teslashibe/go-sonify/pkg/experiment"
	"github.com/teslashibe/go-sonify/pkg/motion"
	"github.com/teslashibe/go-sonify/pkg/operator"
	"github.com/teslashibe/go-sonify/pkg/telemetry"
	"github.com/teslashibe/go-sonify/pkg/web"
)

// ErrFinished is returned by Continue after the experiment has ended.
var ErrFinished = errors.New("experiment finished")

// App is the sonification application orchestrator.
// It manages all components and their lifecycle.
type App struct {
	config  Config
	logger  *slog.Logger
	session string
	started time.Time

	// Telemetry
	feed     telemetry.Feed
	buffer   *motion.Buffer
	ingestor *motion.Ingestor

	// Experiment
	flags     *experiment.Flags
	cue       *experiment.Cue
	sequencer *experiment.Sequencer
	panel     *operator.Panel

	// Audio
	engine *engine.Engine
	host   audioio.Host
	tasks  []*engine.Task

	// Status server
	webServer *web.Server

	mu       sync.Mutex
	stop     context.CancelFunc
	done     chan struct{}
	doneOnce sync.Once
}

// Option configures an App.
type Option func(*App)

// WithFeed uses f instead of the feed selected by the telemetry config.
func WithFeed(f telemetry.Feed) Option {
	return func(a *App) {
		a.feed = f
	}
}

// New creates a new application with the given configuration.
func New(cfg Config, logger *slog.Logger, opts ...Option) (*App, error) {
	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	session := uuid.NewString()
	a := &App{
		config:  cfg,
		logger:  logger.With("session", session),
		session: session,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Init loads assets, connects the feed and builds every component.
// Call this after New() and before Run(). Feed and asset failures are fatal.
func (a *App) Init(ctx context.Context) error {
	cfg := a.config

	under, _, err := assets.LoadMono(cfg.Undertone, cfg.Audio.SampleRate, a.logger)
	if err != nil {
		return fmt.Errorf("undertone: %w", err)
	}
	over, _, err := assets.LoadMono(cfg.Overtone, cfg.Audio.SampleRate, a.logger)
	if err != nil {
		return fmt.Errorf("overtone: %w", err)
	}

	if err := a.connect(ctx); err != nil {
		return err
	}

	a.flags = experiment.NewFlags()
	a.cue = &experiment.Cue{}
	a.buffer = motion.NewBuffer()
	a.ingestor, err = motion.NewIngestor(a.feed, a.buffer, a.flags, cfg.Subjects, cfg.Telemetry.PacketTimeout, a.logger)
	if err != nil {
		return fmt.Errorf("ingestor: %w", err)
	}
	if err := a.ingestor.Reindex(ctx); err != nil {
		a.logger.Warn("markers not resolved yet, retrying at the first sonified trial", "error", err)
	}

	a.panel, err = operator.Open(ctx, cfg.Operator, a.requestStop, a.logger.With("component", "operator"))
	if err != nil {
		return fmt.Errorf("operator: %w", err)
	}

	a.sequencer, err = experiment.NewSequencer(cfg.Experiment, float64(cfg.Audio.SampleRate), a.flags, a.cue, a.feed, a.panel, a.logger)
	if err != nil {
		return fmt.Errorf("sequencer: %w", err)
	}
	a.sequencer.SetSonification(&streamControl{feed: a.feed, ingestor: a.ingestor, logger: a.logger})
	a.sequencer.SetCapture(a.feed)
	a.sequencer.OnFinish(a.finish)
	a.sequencer.SetObserver(func(experiment.Status) { a.publish() })

	a.engine, err = engine.New(cfg.Engine, a.flags, a.cue, a.buffer, under, over, a.logger)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	a.tasks = []*engine.Task{
		engine.NewTask("ingest", a.ingest, a.logger),
		engine.NewTask("sequencer", a.step, a.logger),
	}
	for _, t := range a.tasks {
		a.engine.Schedule(t)
	}

	a.host, err = audioio.NewHost(cfg.Audio, a.engine, a.logger)
	if err != nil {
		return fmt.Errorf("audio host: %w", err)
	}

	if cfg.Web.Enabled {
		a.webServer = web.NewServer(cfg.Web, a, a.logger.With("component", "web"))
	}

	a.logger.Info("initialized",
		"transport", cfg.Telemetry.Transport,
		"subjects", cfg.Subjects,
		"audio", a.host.Name(),
		"operator", a.panel.Sources(),
	)
	return nil
}

// connect creates the feed if none was injected and opens the session.
func (a *App) connect(ctx context.Context) error {
	cfg := a.config.Telemetry
	if a.feed == nil {
		feed, err := NewFeed(cfg, a.config.Subjects, a.session, a.logger.With("component", "telemetry"))
		if err != nil {
			return err
		}
		a.feed = feed
	}

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	if err := a.feed.Connect(dialCtx); err != nil {
		return fmt.Errorf("connect telemetry: %w", err)
	}

	version, err := a.feed.Version(dialCtx)
	if err != nil {
		a.logger.Warn("capture server version unavailable", "error", err)
	} else {
		a.logger.Info("telemetry connected", "transport", cfg.Transport, "server", version)
	}
	return nil
}

// ingest is the ingestion task body.
func (a *App) ingest(ctx context.Context) {
	if err := a.ingestor.Refresh(ctx); err != nil && !motion.IsTimeout(err) && ctx.Err() == nil {
		a.logger.Debug("refresh failed", "error", err)
	}
}

// step is the sequencer task body.
func (a *App) step(ctx context.Context) {
	a.sequencer.Step(ctx, a.engine.Clock())
}

// Run starts the audio host and the auxiliary tasks.
// Blocks until the experiment ends or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.mu.Lock()
	a.stop = cancel
	a.started = time.Now()
	a.mu.Unlock()

	for _, t := range a.tasks {
		go t.Run(ctx)
	}
	if a.webServer != nil {
		a.webServer.StartAsync(ctx)
	}

	if err := a.host.Start(ctx); err != nil {
		return fmt.Errorf("start audio: %w", err)
	}
	if rate := a.engine.SampleRate(); rate != float64(a.config.Audio.SampleRate) {
		a.logger.Warn("device rate differs from configured rate, durations follow the configured rate",
			"device", rate,
			"configured", a.config.Audio.SampleRate,
		)
	}

	a.logger.Info("waiting for operator to start the experiment", "inputs", a.panel.Sources())

	select {
	case <-ctx.Done():
		a.logger.Info("stopping before the experiment finished", "phase", a.sequencer.Status().Phase)
	case <-a.done:
		a.logger.Info("experiment finished", "elapsed", time.Since(a.started).Round(time.Second))
	}
	return nil
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown() {
	// The host stops first so nothing kicks the tasks while they stop.
	if a.host != nil {
		if err := a.host.Close(); err != nil {
			a.logger.Warn("close audio host", "error", err)
		}
	}
	a.requestStop()

	if a.feed != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.config.Telemetry.CommandTimeout)
		if a.flags != nil && a.flags.Streaming() {
			a.flags.SetStreaming(false)
			if err := a.feed.StopStreaming(ctx); err != nil {
				a.logger.Warn("stop streaming", "error", err)
			}
		}
		cancel()
		if err := a.feed.Close(); err != nil {
			a.logger.Warn("close telemetry", "error", err)
		}
	}
	if a.panel != nil {
		if err := a.panel.Close(); err != nil {
			a.logger.Warn("close operator inputs", "error", err)
		}
	}
	if a.webServer != nil {
		if err := a.webServer.Shutdown(); err != nil {
			a.logger.Warn("stop status server", "error", err)
		}
	}
	a.logger.Info("shutdown complete")
}

// requestStop cancels Run.
func (a *App) requestStop() {
	a.mu.Lock()
	stop := a.stop
	a.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// finish is called by the sequencer at the end of the experiment.
func (a *App) finish() {
	a.doneOnce.Do(func() { close(a.done) })
}

// Done is closed when the experiment ends.
func (a *App) Done() <-chan struct{} {
	return a.done
}

// Session returns the session identifier.
func (a *App) Session() string {
	return a.session
}
