package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/brunovh/grainalloc/internal/domain"
	"github.com/brunovh/grainalloc/internal/run"
)

// RunHandler serves the provisioning run status surface.
type RunHandler struct {
	state     *run.State
	logger    *slog.Logger
	triggerCh chan<- struct{} // when non-nil, sending triggers one full run
}

// NewRunHandler creates a RunHandler reading from the given run state.
func NewRunHandler(state *run.State, logger *slog.Logger) *RunHandler {
	return &RunHandler{state: state, logger: logger}
}

// WithTriggerChannel sets the channel to send on when a trigger is requested.
// The run loop must receive from this channel to execute one run.
func (h *RunHandler) WithTriggerChannel(ch chan<- struct{}) *RunHandler {
	h.triggerCh = ch
	return h
}

// GetRun responds with the full run snapshot: status, progress, log, and
// aggregate statistics.
// GET /api/run
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state.Snapshot())
}

// GetStats responds with only the aggregate statistics of the last run.
// GET /api/run/stats
func (h *RunHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	snap := h.state.Snapshot()
	writeJSON(w, http.StatusOK, snap.Stats)
}

// GetLog responds with the run's append-only log.
// GET /api/run/log
func (h *RunHandler) GetLog(w http.ResponseWriter, r *http.Request) {
	snap := h.state.Snapshot()
	writeJSON(w, http.StatusOK, snap.Log)
}

// TriggerRun enqueues one full provisioning run. A run already in progress
// is reported as a conflict; otherwise a non-blocking send wakes the run
// loop and the request is acknowledged as accepted.
// POST /api/run/trigger
func (h *RunHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	if h.state.Status() == domain.RunRunning {
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}

	h.logger.InfoContext(r.Context(), "handler: run trigger requested")
	if h.triggerCh != nil {
		select {
		case h.triggerCh <- struct{}{}:
		default:
			// already triggered and not yet consumed
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"message":      "run trigger enqueued",
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
