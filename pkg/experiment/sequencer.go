package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/teslashibe/go-sonify/pkg/metrics"
	"github.com/teslashibe/go-sonify/pkg/telemetry"
)

// Tagger posts event tags to the capture log.
type Tagger interface {
	SendEvent(ctx context.Context, tag telemetry.Tag) error
}

// Capture starts and stops the external recording.
type Capture interface {
	StartCapture(ctx context.Context) error
	StopCapture(ctx context.Context) error
}

// Sonification prepares and tears down the telemetry stream for a sonified
// trial. Begin must leave the stream running and every subject resolved, or
// return an error with the stream stopped.
type Sonification interface {
	Begin(ctx context.Context) error
	End(ctx context.Context) error
}

// Operator is the debounced, latched continue input. Pressed reports a press
// at most once.
type Operator interface {
	Pressed() bool
}

// Status is a snapshot of the sequencer published after every transition.
type Status struct {
	Phase           Phase     `json:"phase"`
	Started         bool      `json:"started"`
	Condition       Condition `json:"condition"`
	ConditionIndex  int       `json:"condition_index"`
	Conditions      int       `json:"conditions"`
	Repetition      int       `json:"repetition"`
	Repetitions     int       `json:"repetitions"`
	TrialsCompleted int       `json:"trials_completed"`
	TotalTrials     int       `json:"total_trials"`
	Sonified        bool      `json:"sonified"`
	PhaseStart      uint64    `json:"phase_start"`
}

// Sequencer is the trial/condition state machine.
//
// All fields except status are owned by the goroutine calling Step.
type Sequencer struct {
	cfg    Config
	flags  *Flags
	cue    *Cue
	tagger Tagger
	op     Operator
	logger *slog.Logger

	sonification Sonification
	capture      Capture
	onFinish     func()
	observer     func(Status)

	// Durations in samples
	trialSamples []uint64
	breakSamples uint64
	stepSamples  uint64

	phase      Phase
	started    bool
	condIdx    int
	rep        int
	phaseStart uint64
	tones      []float32
	toneIdx    int
	sonified   bool
	completed  int

	status atomic.Pointer[Status]
}

// NewSequencer creates a sequencer waiting for the operator to start the
// experiment. sampleRate converts configured durations to clock samples.
func NewSequencer(cfg Config, sampleRate float64, flags *Flags, cue *Cue, tagger Tagger, op Operator, logger *slog.Logger) (*Sequencer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid experiment config: %w", err)
	}
	if sampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sequencer{
		cfg:          cfg,
		flags:        flags,
		cue:          cue,
		tagger:       tagger,
		op:           op,
		logger:       logger.With("component", "sequencer"),
		breakSamples: toSamples(cfg.BreakDuration.Seconds(), sampleRate),
		stepSamples:  max(toSamples(cfg.ToneStep.Seconds(), sampleRate), 1),
	}
	for _, d := range cfg.TrialDurations {
		s.trialSamples = append(s.trialSamples, toSamples(d.Seconds(), sampleRate))
	}

	s.flags.SetSilence(true)
	s.flags.SetStreaming(false)
	s.publish()
	return s, nil
}

func toSamples(seconds, sampleRate float64) uint64 {
	return uint64(seconds*sampleRate + 0.5)
}

// SetSonification sets the stream controller used by sonified conditions.
// Without one every trial is silent.
func (s *Sequencer) SetSonification(c Sonification) { s.sonification = c }

// SetCapture sets the recording control used when ControlCapture is on.
func (s *Sequencer) SetCapture(c Capture) { s.capture = c }

// OnFinish registers a callback run once when the experiment ends.
func (s *Sequencer) OnFinish(fn func()) { s.onFinish = fn }

// SetObserver registers a callback run after every transition.
func (s *Sequencer) SetObserver(fn func(Status)) { s.observer = fn }

// Status returns the last published snapshot. Safe for concurrent use.
func (s *Sequencer) Status() Status {
	return *s.status.Load()
}

// Phase returns the current phase. Only valid on the Step goroutine.
func (s *Sequencer) Phase() Phase { return s.phase }

// Started reports whether the operator has started the experiment.
func (s *Sequencer) Started() bool { return s.started }

// Done reports whether the experiment has ended.
func (s *Sequencer) Done() bool { return s.phase == PhaseExperimentEnd }

// Step advances the state machine to sample clock now. It never blocks on a
// timer; side effects are single request/response calls whose failures are
// logged and otherwise ignored.
func (s *Sequencer) Step(ctx context.Context, now uint64) {
	elapsed := now - s.phaseStart

	switch s.phase {
	case PhaseAwaitingOperator:
		if s.op == nil || !s.op.Pressed() {
			return
		}
		if !s.started {
			s.startExperiment(ctx, now)
			return
		}
		s.logger.Info("operator continued", "condition", s.condition())
		s.startCondition(ctx, now)

	case PhaseExperimentStart:
		s.startCondition(ctx, now)

	case PhaseBreak:
		if elapsed >= s.breakSamples {
			s.logger.Info("break ended")
			s.startTrialCue(ctx, now)
		}

	case PhaseStartTone:
		if elapsed < s.stepSamples {
			return
		}
		if s.nextTone(now) {
			return
		}
		s.logger.Debug("start tone complete")
		s.startTrial(ctx, now)

	case PhaseTrialRunning:
		if elapsed >= s.trialDuration() {
			s.endTrial(ctx, now)
		}

	case PhaseEndTone:
		if elapsed < s.stepSamples {
			return
		}
		if s.nextTone(now) {
			return
		}
		s.logger.Debug("end tone complete")
		s.afterTrial(ctx, now)

	case PhaseExperimentEnd:
	}
}

func (s *Sequencer) startExperiment(ctx context.Context, now uint64) {
	s.started = true
	s.condIdx = 0
	s.enter(PhaseExperimentStart, now)

	order := make([]string, len(s.cfg.ConditionOrder))
	for i, c := range s.cfg.ConditionOrder {
		order[i] = fmt.Sprintf("%s x%d", c, s.cfg.TrialCounts[i])
	}
	durations := make([]string, len(s.cfg.TrialDurations))
	for i, d := range s.cfg.TrialDurations {
		durations[i] = d.String()
	}
	s.logger.Info("experiment started",
		"conditions", strings.Join(order, ", "),
		"trial_durations", strings.Join(durations, ", "),
		"break", s.cfg.BreakDuration,
		"total_trials", s.cfg.TotalTrials(),
		"trial_sounds", s.cfg.PlayTrialSounds,
	)

	if s.cfg.ControlCapture && s.capture != nil {
		if err := s.capture.StartCapture(ctx); err != nil {
			s.logger.Warn("failed to start capture", "error", err)
		} else {
			s.logger.Info("capture started")
		}
	}
	s.sendTag(ctx, telemetry.TagExperimentStart)
}

func (s *Sequencer) startCondition(ctx context.Context, now uint64) {
	s.rep = 0
	s.logger.Info("condition started",
		"condition", s.condition(),
		"index", s.condIdx+1,
		"of", len(s.cfg.ConditionOrder),
	)
	s.startTrialCue(ctx, now)
}

// startTrialCue enters the start tone, or the trial itself when cue tones are
// disabled.
func (s *Sequencer) startTrialCue(ctx context.Context, now uint64) {
	if !s.cfg.PlayTrialSounds || len(s.cfg.StartTones) == 0 {
		s.startTrial(ctx, now)
		return
	}
	s.playTones(PhaseStartTone, s.cfg.StartTones, now)
}

func (s *Sequencer) playTones(phase Phase, tones []float32, now uint64) {
	s.tones = tones
	s.toneIdx = 0
	freq := tones[0]
	s.cue.SetTone(freq)
	s.flags.SetSilence(freq == 0)
	s.enter(phase, now)
}

// nextTone moves to the next cue step. It reports false when the sequence is
// finished.
func (s *Sequencer) nextTone(now uint64) bool {
	if s.toneIdx+1 >= len(s.tones) {
		return false
	}
	s.toneIdx++
	freq := s.tones[s.toneIdx]
	s.cue.SetTone(freq)
	s.flags.SetSilence(freq == 0)
	s.phaseStart = now
	return true
}

func (s *Sequencer) stopTones() {
	s.flags.SetSilence(true)
	s.cue.StopTone()
	s.tones = nil
}

func (s *Sequencer) startTrial(ctx context.Context, now uint64) {
	s.stopTones()

	cond := s.condition()
	s.sonified = false
	if cond.Sonified() {
		s.sonified = s.beginSonification(ctx)
	}
	s.sendTag(ctx, cond.Tag())
	s.sendTag(ctx, telemetry.TagTrialStart)

	s.cue.StartTrial(cond)
	s.enter(PhaseTrialRunning, now)

	// The stream is running and markers are resolved before sound is allowed.
	if s.sonified {
		s.flags.SetSilence(false)
	}

	s.logger.Info("trial started",
		"condition", cond,
		"repetition", s.rep+1,
		"of", s.cfg.TrialCounts[s.condIdx],
		"duration", s.cfg.TrialDuration(s.rep),
		"sonified", s.sonified,
	)
}

func (s *Sequencer) beginSonification(ctx context.Context) bool {
	if s.sonification == nil {
		s.logger.Warn("no sonification controller, trial will be silent")
		metrics.SilentTrialsTotal.Inc()
		return false
	}
	if err := s.sonification.Begin(ctx); err != nil {
		s.logger.Warn("failed to start sonification, trial will be silent", "error", err)
		metrics.SilentTrialsTotal.Inc()
		return false
	}
	s.flags.SetStreaming(true)
	return true
}

func (s *Sequencer) endTrial(ctx context.Context, now uint64) {
	// Sound stops before the stream does.
	s.flags.SetSilence(true)
	if s.sonified {
		s.flags.SetStreaming(false)
		if s.sonification != nil {
			if err := s.sonification.End(ctx); err != nil {
				s.logger.Warn("failed to stop sonification", "error", err)
			}
		}
		s.sonified = false
	}

	s.logger.Info("trial ended", "condition", s.condition(), "repetition", s.rep+1)
	s.rep++
	s.completed++
	metrics.TrialsCompletedTotal.Inc()
	s.sendTag(ctx, telemetry.TagTrialEnd)

	if !s.cfg.PlayTrialSounds || len(s.cfg.EndTones) == 0 {
		s.afterTrial(ctx, now)
		return
	}
	s.playTones(PhaseEndTone, s.cfg.EndTones, now)
}

// afterTrial chooses between a break, the operator gate and the end of the
// experiment.
func (s *Sequencer) afterTrial(ctx context.Context, now uint64) {
	s.stopTones()

	if s.rep < s.cfg.TrialCounts[s.condIdx] {
		s.logger.Info("break started", "duration", s.cfg.BreakDuration)
		s.enter(PhaseBreak, now)
		return
	}

	s.logger.Info("condition ended", "condition", s.condition())
	s.condIdx++
	if s.condIdx >= len(s.cfg.ConditionOrder) {
		s.endExperiment(ctx, now)
		return
	}

	// Discard any press made while the condition was running.
	if s.op != nil {
		s.op.Pressed()
	}
	s.logger.Info("waiting for operator", "next_condition", s.condition())
	s.enter(PhaseAwaitingOperator, now)
}

func (s *Sequencer) endExperiment(ctx context.Context, now uint64) {
	s.flags.SetSilence(true)
	s.flags.SetStreaming(false)
	s.enter(PhaseExperimentEnd, now)

	s.sendTag(ctx, telemetry.TagExperimentEnd)
	if s.cfg.ControlCapture && s.capture != nil {
		if err := s.capture.StopCapture(ctx); err != nil {
			s.logger.Warn("failed to stop capture", "error", err)
		} else {
			s.logger.Info("capture stopped")
		}
	}
	s.logger.Info("experiment ended", "trials_completed", s.completed)

	if s.onFinish != nil {
		s.onFinish()
	}
}

func (s *Sequencer) sendTag(ctx context.Context, tag telemetry.Tag) {
	if s.tagger == nil {
		return
	}
	if err := s.tagger.SendEvent(ctx, tag); err != nil {
		metrics.EventTagsTotal.WithLabelValues(tag.String(), "error").Inc()
		s.logger.Warn("failed to send event tag", "tag", tag, "error", err)
		return
	}
	metrics.EventTagsTotal.WithLabelValues(tag.String(), "ok").Inc()
	s.logger.Debug("event tag sent", "tag", tag)
}

func (s *Sequencer) enter(p Phase, now uint64) {
	s.phase = p
	s.phaseStart = now
	metrics.ExperimentPhase.Set(float64(p))
	s.publish()
}

func (s *Sequencer) publish() {
	st := &Status{
		Phase:           s.phase,
		Started:         s.started,
		Condition:       s.condition(),
		ConditionIndex:  s.condIdx,
		Conditions:      len(s.cfg.ConditionOrder),
		Repetition:      s.rep,
		TrialsCompleted: s.completed,
		TotalTrials:     s.cfg.TotalTrials(),
		Sonified:        s.sonified,
		PhaseStart:      s.phaseStart,
	}
	if s.condIdx < len(s.cfg.TrialCounts) {
		st.Repetitions = s.cfg.TrialCounts[s.condIdx]
	}
	s.status.Store(st)
	if s.observer != nil {
		s.observer(*st)
	}
}

// condition returns the current condition, or the last one once every
// condition has run.
func (s *Sequencer) condition() Condition {
	idx := min(s.condIdx, len(s.cfg.ConditionOrder)-1)
	return s.cfg.ConditionOrder[idx]
}

func (s *Sequencer) trialDuration() uint64 {
	rep := min(s.rep, len(s.trialSamples)-1)
	return s.trialSamples[rep]
}
