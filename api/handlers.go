// Package api serves a finished run's trace, snapshots and summary
// over HTTP for external plotting and analysis tools. It holds
// read-only data and emits nothing back into the simulation.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/jkolyakov/blockchain-simulator/simulation"
	"github.com/jkolyakov/blockchain-simulator/stats"
)

type Handler struct {
	result  *simulation.Result
	summary stats.Summary
	log     *zap.Logger
}

func NewHandler(result *simulation.Result, summary stats.Summary, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{result: result, summary: summary, log: log}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("encode response", zap.Error(err))
	}
}

// GetTrace returns the full event trace in emission order.
func (h *Handler) GetTrace(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.result.Trace)
}

// GetNodes returns every node's final ledger snapshot.
func (h *Handler) GetNodes(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.result.Snapshots)
}

// GetNode returns one node's final ledger snapshot.
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	id, err := strconv.Atoi(idStr)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid node id"})
		return
	}
	snap, ok := h.result.Snapshots[simulation.NodeID(id)]
	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "node not found"})
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// GetStats returns the derived summary metrics.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.summary)
}
