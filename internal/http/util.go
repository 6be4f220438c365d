package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
)

// maxUploadBytes bounds one upload body. The biggest firmware chunk is
// ~40KB; this leaves room for large buffered bursts.
const maxUploadBytes = 4 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
}
