// Package http exposes the daemon's admin surface: trigger a poll cycle,
// inspect poller status, and read the processing log.
package http

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/nhle/ordertrack/internal/mailbox"
	"github.com/nhle/ordertrack/internal/model"
	"github.com/nhle/ordertrack/internal/pipeline"
	"github.com/nhle/ordertrack/internal/store"
)

// Runner is the poller surface the handlers drive.
type Runner interface {
	RunNow(ctx context.Context) (int, error)
	Status(ctx context.Context) (pipeline.Status, error)
}

// ProcessingHandler serves the admin endpoints.
type ProcessingHandler struct {
	runner Runner
	store  store.Store
	log    *zap.Logger
}

// NewProcessingHandler wires the handler's dependencies.
func NewProcessingHandler(
	runner Runner, st store.Store, log *zap.Logger,
) *ProcessingHandler {
	return &ProcessingHandler{runner: runner, store: st, log: log}
}

// RunNow triggers a synchronous poll cycle.
//
// POST /api/processing/run
// 200 {"messagesProcessed": n}, 409 when a cycle is already running,
// 502 when the mailbox is unreachable.
func (h *ProcessingHandler) RunNow() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := h.runner.RunNow(r.Context())
		if err == model.ErrCycleRunning {
			http.Error(w, "processing cycle already running", http.StatusConflict)
			return
		}
		if mailbox.IsConnectionError(err) {
			h.log.Error("mailbox unreachable", zap.Error(err))
			http.Error(w, "mailbox unreachable", http.StatusBadGateway)
			return
		}
		if err != nil {
			h.log.Error("manual cycle failed", zap.Error(err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, h.log, map[string]int{"messagesProcessed": n})
	}
}

// GetStatus reports the poller state.
//
// GET /api/processing/status
func (h *ProcessingHandler) GetStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := h.runner.Status(r.Context())
		if err != nil {
			h.log.Error("reading poller status", zap.Error(err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, h.log, st)
	}
}

// GetLog returns the most recent processing-log entries.
//
// GET /api/processing/log
func (h *ProcessingHandler) GetLog() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := h.store.RecentLog(r.Context(), 50)
		if err != nil {
			h.log.Error("reading processing log", zap.Error(err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []model.ProcessingLogEntry{}
		}

		writeJSON(w, h.log, entries)
	}
}

func writeJSON(w http.ResponseWriter, log *zap.Logger, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("encoding response", zap.Error(err))
	}
}
