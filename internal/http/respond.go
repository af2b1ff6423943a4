package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/volunhub/api/internal/domain"
)

// envelope is the uniform response body: status repeats the HTTP code,
// data is null when there is no payload.
type envelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// writeSuccess writes a success envelope with the given payload.
func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Status: status, Message: message, Data: data})
}

// writeError sends an error envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Status: status, Message: msg, Data: nil})
}

// writeDomainError maps a coded failure onto an HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch domain.ErrCode(err) {
	case domain.CodeNotFound:
		status = http.StatusNotFound
	case domain.CodeForbidden:
		status = http.StatusForbidden
	case domain.CodeConflict:
		status = http.StatusConflict
	case domain.CodeValidation:
		status = http.StatusBadRequest
	}
	msg := "internal server error"
	var de *domain.Error
	if status != http.StatusInternalServerError && errors.As(err, &de) {
		msg = de.Message
	}
	writeError(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
