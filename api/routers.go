package api

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes wires the read-only result endpoints.
func RegisterRoutes(r *mux.Router, h *Handler) {
	r.HandleFunc("/trace", h.GetTrace).Methods("GET")
	r.HandleFunc("/nodes", h.GetNodes).Methods("GET")
	r.HandleFunc("/nodes/{id}", h.GetNode).Methods("GET")
	r.HandleFunc("/stats", h.GetStats).Methods("GET")
}
