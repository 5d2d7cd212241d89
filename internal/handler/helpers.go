package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/reelvault/reelvault/internal/config"
	"github.com/reelvault/reelvault/internal/model"
)

// writeJSON encodes v with the given status. Encode errors are dropped:
// the status line is already on the wire by then.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeData writes {"success":true,"data":...} with an optional message.
func writeData(w http.ResponseWriter, status int, data any, message ...string) {
	resp := model.Response{Success: true, Data: data}
	if len(message) > 0 {
		resp.Message = message[0]
	}
	writeJSON(w, status, resp)
}

// writeError writes {"success":false,"message":...}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, model.Response{Success: false, Message: message})
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// queryInt parses an integer query parameter. Absent or unparsable values
// yield def; range checks are the caller's job.
func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return n
}

func queryString(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// classifyDBError turns a store failure into a status and client message.
// Constraint messages differ per driver, so they are matched as text when
// the store did not already tag the error.
func classifyDBError(err error, fallbackMsg string) (int, string) {
	if errors.Is(err, config.ErrConflict) {
		return http.StatusConflict, fallbackMsg + ": already exists"
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	for _, s := range []string{"unique constraint", "duplicate key", "duplicate entry"} {
		if strings.Contains(lower, s) {
			return http.StatusConflict, fallbackMsg + ": already exists"
		}
	}
	for _, s := range []string{"not null constraint", "null value in column", "column cannot be null"} {
		if strings.Contains(lower, s) {
			return http.StatusBadRequest, fallbackMsg + ": " + msg
		}
	}
	return http.StatusInternalServerError, fallbackMsg
}

func clampInt(val, lo, hi int) int {
	return max(lo, min(val, hi))
}
