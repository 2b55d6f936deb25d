package audioio

import "log/slog"

// elevate requests realtime scheduling for the calling render thread. Failure
// is logged and otherwise ignored: without CAP_SYS_NICE the host still runs,
// just with ordinary scheduling.
func elevate(prio int, logger *slog.Logger) {
	if prio <= 0 {
		return
	}
	if err := setRealtimePriority(prio); err != nil {
		logger.Warn("render thread stays at normal priority", "priority", prio, "error", err)
		return
	}
	logger.Info("render thread at realtime priority", "priority", prio)
}
