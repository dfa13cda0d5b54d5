package handler

import (
	"encoding/json"
	"net/http"

	"github.com/angeloszaimis/upstream-selector/internal/loadbalancer"
)

// UpstreamsHandler serves the state of every upstream as JSON.
func UpstreamsHandler(lb *loadbalancer.LoadBalancer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, lb.Upstreams())
	}
}

// UnhealthyHandler serves the upstreams whose breaker is OPEN or HALF-OPEN.
func UnhealthyHandler(lb *loadbalancer.LoadBalancer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, lb.Unhealthy())
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
