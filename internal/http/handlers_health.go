package httpx

import (
	"io"
	"net/http"
)

// healthHandler answers liveness/readiness probes. HEAD gets the headers
// only, GET gets a tiny static body.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.WriteString(w, `{"status":"ok"}`)
}
