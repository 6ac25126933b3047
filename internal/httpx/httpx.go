// Package httpx holds the JSON response helpers shared by the handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"swaft/internal/backend"
	"swaft/internal/model"
)

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func Error(w http.ResponseWriter, status int, err error) {
	JSON(w, status, map[string]string{"error": err.Error()})
}

// StatusFor maps the shared sentinel errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrEmptyMessage), errors.Is(err, model.ErrNicknameLength):
		return http.StatusBadRequest
	case errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, backend.ErrNoSession):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Fail logs unexpected errors and writes the mapped status. Internal details
// stay in the log.
func Fail(w http.ResponseWriter, op string, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("❌ %s: %v", op, err)
		Error(w, status, errors.New(op+" failed"))
		return
	}
	Error(w, status, err)
}
