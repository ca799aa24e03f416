package handler

import (
	"net/http"

	"github.com/alanyoungcy/polyalert/internal/monitor"
)

// TickReporter exposes the last monitor tick. *monitor.Monitor satisfies it.
type TickReporter interface {
	LastReport() (monitor.TickReport, bool)
}

// StatusHandler serves the run mode and the last monitor tick.
type StatusHandler struct {
	mode    string
	monitor TickReporter
}

// NewStatusHandler creates a StatusHandler. monitor may be nil when the
// process does not run the monitor.
func NewStatusHandler(mode string, monitor TickReporter) *StatusHandler {
	return &StatusHandler{mode: mode, monitor: monitor}
}

// GetStatus responds with the mode and, once available, the last tick report.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"mode": h.mode}
	if h.monitor != nil {
		if report, ok := h.monitor.LastReport(); ok {
			body["last_tick"] = report
		}
	}
	writeJSON(w, http.StatusOK, body)
}
