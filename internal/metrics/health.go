package metrics

import (
	"encoding/json"
	"net/http"
)

// HealthResponse is the body of the health endpoints
type HealthResponse struct {
	Status string `json:"status"`
}

// HealthCheck reports that the process is serving
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, "healthy")
}

// ReadinessCheck returns a handler that reports ready while ready() holds
func ReadinessCheck(ready func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready == nil || !ready() {
			writeHealth(w, http.StatusServiceUnavailable, "not ready")
			return
		}
		writeHealth(w, http.StatusOK, "ready")
	}
}

func writeHealth(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	//nolint:errcheck // Client may have gone away
	_ = json.NewEncoder(w).Encode(HealthResponse{Status: status})
}
