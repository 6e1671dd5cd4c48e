package devserver

import (
	"encoding/json"
	"net/http"

	"shelfscan/internal/entity"
)

type apiError struct {
	Message string `json:"message"`
}

type jobsEnvelope struct {
	Jobs []entity.Job `json:"jobs"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, apiError{Message: msg})
}
