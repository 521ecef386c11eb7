// internal/app/features/errors/errors.go
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/sheltrhq/sheltr/internal/app/system/auth"
	"github.com/sheltrhq/sheltr/internal/app/system/limits"
	"go.uber.org/zap"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

// ErrorLogger logs handler failures with request context and writes a JSON
// error body. The user-facing message never includes the internal error.
type ErrorLogger struct {
	Log *zap.Logger
}

// NewErrorLogger constructs an ErrorLogger.
func NewErrorLogger(logger *zap.Logger) *ErrorLogger {
	return &ErrorLogger{Log: logger}
}

func (e *ErrorLogger) fields(r *http.Request, err error) []zap.Field {
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	}
	if uid, ok := auth.CurrentUserID(r); ok {
		fields = append(fields, zap.String("user_id", uid.Hex()))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	return fields
}

// LogServerError logs at error level and responds 500.
func (e *ErrorLogger) LogServerError(w http.ResponseWriter, r *http.Request, msg string, err error, userMsg string) {
	e.Log.Error(msg, e.fields(r, err)...)
	WriteError(w, http.StatusInternalServerError, userMsg)
}

// LogBadRequest logs at info level and responds 400.
func (e *ErrorLogger) LogBadRequest(w http.ResponseWriter, r *http.Request, msg string, err error, userMsg string) {
	e.Log.Info(msg, e.fields(r, err)...)
	WriteError(w, http.StatusBadRequest, userMsg)
}

// LogForbidden logs at warn level and responds 403.
func (e *ErrorLogger) LogForbidden(w http.ResponseWriter, r *http.Request, msg string, userMsg string) {
	e.Log.Warn(msg, e.fields(r, nil)...)
	WriteError(w, http.StatusForbidden, userMsg)
}

// NotFound responds 404 without logging.
func NotFound(w http.ResponseWriter, userMsg string) {
	WriteError(w, http.StatusNotFound, userMsg)
}

// Unauthorized responds 401 without logging.
func Unauthorized(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, "Please sign in to continue.")
}

// WriteError writes {"error": msg} with status.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, errorBody{Error: msg})
}

// WriteJSON writes v as JSON with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON reads a size-limited JSON body into v. The request must be
// sent as application/json, which a cross-site HTML form cannot do, and
// unknown fields are rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		return fmt.Errorf("Content-Type must be application/json")
	}
	body := http.MaxBytesReader(w, r.Body, limits.MaxJSONBodySize)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			return fmt.Errorf("request body too large")
		}
		if stderrors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
