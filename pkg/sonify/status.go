package sonify

import (
	"github.com/teslashibe/go-sonify/pkg/audioio"
	"github.com/teslashibe/go-sonify/pkg/experiment"
	"github.com/teslashibe/go-sonify/pkg/telemetry"
)

// Status is the operator view of a running session.
type Status struct {
	Session    string              `json:"session"`
	Transport  telemetry.Transport `json:"transport"`
	Experiment experiment.Status   `json:"experiment"`
	Clock      uint64              `json:"clock"`
	Seconds    float64             `json:"seconds"`
	Silence    bool                `json:"silence"`
	Streaming  bool                `json:"streaming"`
	Bound      bool                `json:"markers_bound"`
	Frame      uint32              `json:"frame"`
	Audio      audioio.HostStats   `json:"audio"`
	Operator   OperatorStatus      `json:"operator"`
}

// OperatorStatus describes the operator inputs.
type OperatorStatus struct {
	Sources []string `json:"sources"`
	Presses int64    `json:"presses"`
}

// Status returns a snapshot of the session. Safe for concurrent use after
// Init.
func (a *App) Status() Status {
	st := Status{
		Session:    a.session,
		Transport:  a.config.Telemetry.Transport,
		Experiment: a.sequencer.Status(),
		Clock:      a.engine.Clock(),
		Silence:    a.flags.Silence(),
		Streaming:  a.flags.Streaming(),
		Bound:      a.ingestor.Bound(),
		Audio:      a.host.Stats(),
		Operator: OperatorStatus{
			Sources: a.panel.Sources(),
			Presses: a.panel.Presses(),
		},
	}
	if rate := a.engine.SampleRate(); rate > 0 {
		st.Seconds = float64(st.Clock) / rate
	}
	if snap := a.buffer.Latest(); snap != nil {
		st.Frame = snap.Frame
	}
	return st
}

// Snapshot implements web.Controller.
func (a *App) Snapshot() any {
	return a.Status()
}

// Continue presses the operator button on behalf of a remote operator.
func (a *App) Continue() error {
	if a.sequencer.Status().Phase == experiment.PhaseExperimentEnd {
		return ErrFinished
	}
	a.panel.Press()
	return nil
}

// publish pushes the current status to websocket clients.
func (a *App) publish() {
	if a.webServer != nil {
		a.webServer.Publish(a.Status())
	}
}
