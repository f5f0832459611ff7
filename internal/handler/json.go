package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/DukeRupert/dialpool/internal/domain"
)

// maxBodyBytes bounds every JSON request body. Upload batches are the largest.
const maxBodyBytes = 2 << 20

// MessageResponse is the body of simple acknowledgements.
type MessageResponse struct {
	Message string `json:"message"`
}

// decodeJSON reads the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	const op = "handler.decode_json"

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.Invalid(op, "Request body is too large.")
		}
		return domain.Invalid(op, "Request body must be valid JSON.")
	}
	return nil
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// queryLimit parses the optional "limit" query parameter. Zero means "use the default".
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, domain.Invalid("handler.query_limit", "limit must be a positive integer")
	}
	return n, nil
}
