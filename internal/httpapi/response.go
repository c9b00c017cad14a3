package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/alexandria-go/alexidx/internal/logx"
	"github.com/alexandria-go/alexidx/internal/pools"
)

// respondJSON writes payload as JSON via a pooled buffer, grounded in
// entitydb's api.RespondJSON encode-then-write-once pattern.
func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	buf := pools.GetResponseBuffer()
	defer pools.PutResponseBuffer(buf)

	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		logx.Error("httpapi: encoding response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(buf.Bytes())
}

// respondError writes a JSON error envelope (spec §6 status=error).
func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"status": "error", "error": message})
}

// respondBinary writes a raw byte payload (spec §6 "i=<query> → binary
// body ... content-type application/octet-stream").
func respondBinary(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
