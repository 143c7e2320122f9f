package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// DecodeJSON strictly decodes the request body into dst. Unknown fields are
// rejected. On failure a 400 response has already been written and the
// handler should return.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_json", err)
		return false
	}
	return true
}

// WriteJSON encodes v and writes it with the given status. The body is
// buffered first so an encoding failure never produces a half-written 200.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// WriteError writes the shared error envelope: a short machine-readable code
// plus the human-readable message from err.
func WriteError(w http.ResponseWriter, status int, code string, err error) {
	WriteJSON(w, status, map[string]string{"error": code, "message": err.Error()})
}
