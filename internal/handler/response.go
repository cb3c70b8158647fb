package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/measured-violence/pkg/skirmish"
)

// maxBodySize bounds request bodies; action payloads are small and
// deployment payloads top out at a few hundred bytes per model.
const maxBodySize = 1 << 20

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Error encoding response")
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeRuleViolation writes a rejected or failed action result as 422.
// The full result goes back so the client can show every reason at once.
func writeRuleViolation(w http.ResponseWriter, res *skirmish.ActionResult) {
	writeJSON(w, http.StatusUnprocessableEntity, res)
}

// decodeJSON reads and decodes JSON from a request body.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v)
}
