package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/alam-gir/wafipix-backend/internal/apperr"
	"github.com/alam-gir/wafipix-backend/internal/util"
)

// Response is the success envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ErrorResponse is the failure envelope. Every error leaving this
// service has this shape, including ones produced before routing.
type ErrorResponse struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	StatusCode int               `json:"statusCode"`
	Timestamp  time.Time         `json:"timestamp"`
	Path       string            `json:"path"`
	Fields     map[string]string `json:"fields,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			util.Error("failed to encode response", zap.Error(err))
		}
	}
}

func respondSuccess(w http.ResponseWriter, status int, data interface{}, message string) {
	respondWithJSON(w, status, Response{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// respondError maps an error kind onto the uniform envelope. Unexpected
// errors are logged with their cause; the client only ever sees the
// generic message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.StatusCode(err)

	if status == http.StatusInternalServerError {
		util.Error("unexpected failure",
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}

	respondWithJSON(w, status, ErrorResponse{
		Success:    false,
		Message:    apperr.MessageOf(err),
		StatusCode: status,
		Timestamp:  time.Now().UTC(),
		Path:       r.URL.Path,
		Fields:     apperr.FieldsOf(err),
	})
}
