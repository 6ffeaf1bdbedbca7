// Package errors holds the API's fallback handlers and the logger handlers
// use to report failures they answer with a 5xx.
package errors

import (
	"net/http"

	"github.com/dalemusser/stratarecipe/internal/app/system/jsonutil"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// ErrorLogger logs handler failures tagged with the request they belong to.
type ErrorLogger struct {
	logger *zap.Logger
}

func NewErrorLogger(logger *zap.Logger) *ErrorLogger {
	return &ErrorLogger{logger: logger}
}

func (e *ErrorLogger) Log(r *http.Request, msg string, err error) {
	e.LogWithFields(r, msg, err)
}

// LogWithFields logs at error level with method, path and request_id
// (when RequestID middleware ran) ahead of fields.
func (e *ErrorLogger) LogWithFields(r *http.Request, msg string, err error, fields ...zap.Field) {
	base := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	}
	if id := chimw.GetReqID(r.Context()); id != "" {
		base = append(base, zap.String("request_id", id))
	}
	if err != nil {
		base = append(base, zap.Error(err))
	}
	e.logger.Error(msg, append(base, fields...)...)
}

// Internal logs err and answers 500 with a generic message. err's text
// never reaches the client.
func (e *ErrorLogger) Internal(w http.ResponseWriter, r *http.Request, msg string, err error, fields ...zap.Field) {
	e.LogWithFields(r, msg, err, fields...)
	jsonutil.InternalError(w, "internal error")
}

// Handler answers what the router could not route, in the API's JSON error shape.
type Handler struct{}

func NewHandler() *Handler { return &Handler{} }

func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	jsonutil.NotFound(w, "not found")
}

func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	jsonutil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
}
