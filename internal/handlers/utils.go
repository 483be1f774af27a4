package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jjudge-oj/accounts/types"
)

const maxBodyBytes = 1 << 20

type contextKey string

const contextSubjectKey contextKey = "sub"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Message string             `json:"message"`
	Fields  []types.FieldError `json:"fields,omitempty"`
}

// WithAccountID returns a context carrying an authenticated account id.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, contextSubjectKey, accountID)
}

func accountIDFromContext(ctx context.Context) (string, error) {
	subject, ok := ctx.Value(contextSubjectKey).(string)
	if !ok {
		return "", errors.New("missing subject")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("invalid subject")
	}
	return subject, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Message: message})
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
