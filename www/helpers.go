package www

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"bomdesk/store"
)

func (h *Handlers) jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonCreated(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// errorResponse is the body of every failed domain operation.
type errorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// statusFor maps an error code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case store.CodeValidation:
		return http.StatusBadRequest
	case store.CodeNotFound:
		return http.StatusNotFound
	case store.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports a failed operation. msg names the operation for the
// user; the error itself goes into detail.
func (h *Handlers) writeError(w http.ResponseWriter, msg string, err error) {
	code := store.Code(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		h.log.Error(msg, zap.String("code", code), zap.Error(err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: msg, Code: code, Detail: err.Error()})
}

// decodeJSON reads the request body into v, answering 400 on failure.
func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, "リクエストの形式が正しくありません", &store.ValidationError{Reason: err.Error()})
		return false
	}
	return true
}

func projectParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "projectNumber"))
}
