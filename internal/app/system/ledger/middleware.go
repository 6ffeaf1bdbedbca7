// internal/app/system/ledger/middleware.go
package ledger

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	ledgerstore "github.com/dalemusser/stratarecipe/internal/app/store/ledger"
	"github.com/dalemusser/stratarecipe/internal/app/system/auth"
	"github.com/dalemusser/stratarecipe/internal/app/system/network"
	"github.com/dalemusser/stratarecipe/internal/app/system/timeouts"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Recorder persists ledger entries.
type Recorder interface {
	Create(ctx context.Context, entry ledgerstore.Entry) error
}

// Config holds configuration for the ledger middleware.
type Config struct {
	Store  Recorder
	Logger *zap.Logger

	// MaxBodyPreview is how many bytes of the request body and of the error
	// response are kept. 0 disables request body capture.
	MaxBodyPreview int

	// ExcludePaths lists path prefixes that are never recorded.
	ExcludePaths []string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(store Recorder, logger *zap.Logger) Config {
	return Config{
		Store:          store,
		Logger:         logger,
		MaxBodyPreview: 500,
	}
}

// Middleware records every request that ends with a status of 400 or more.
// Entries are written in the background so the response is never delayed.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range cfg.ExcludePaths {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			start := time.Now()
			preview := capturePreview(r, cfg.MaxBodyPreview)

			wrapped := &responseWrapper{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				keep:           cfg.MaxBodyPreview,
			}
			next.ServeHTTP(wrapped, r)

			if wrapped.statusCode < 400 {
				return
			}

			entry := ledgerstore.Entry{
				RequestID:          chimw.GetReqID(r.Context()),
				Method:             r.Method,
				Path:               r.URL.Path,
				Query:              r.URL.RawQuery,
				RemoteIP:           network.GetClientIP(r),
				ActorID:            strings.TrimSpace(r.Header.Get(auth.UserHeader)),
				RequestBodyPreview: preview,
				StatusCode:         wrapped.statusCode,
				ErrorClass:         Classify(wrapped.statusCode),
				ErrorMessage:       strings.TrimSpace(wrapped.body.String()),
				DurationMs:         float64(time.Since(start).Microseconds()) / 1000.0,
				StartedAt:          start.UTC(),
			}

			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), timeouts.Short())
				defer cancel()
				if err := cfg.Store.Create(ctx, entry); err != nil {
					cfg.Logger.Error("failed to store ledger entry",
						zap.String("request_id", entry.RequestID),
						zap.String("path", entry.Path),
						zap.Error(err))
				}
			}()
		})
	}
}

// Classify maps an error status to the class stored on the entry.
func Classify(status int) string {
	switch {
	case status == http.StatusBadRequest:
		return "validation"
	case status == http.StatusUnauthorized:
		return "auth"
	case status == http.StatusForbidden:
		return "forbidden"
	case status == http.StatusNotFound:
		return "not_found"
	case status == http.StatusConflict:
		return "conflict"
	case status >= 500:
		return "internal"
	default:
		return "client_error"
	}
}

// capturePreview reads the request body, restores it for the handler and
// returns at most max bytes of it.
func capturePreview(r *http.Request, max int) string {
	if max <= 0 || r.Body == nil || r.ContentLength == 0 {
		return ""
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return ""
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}

// responseWrapper captures the status code and, once the status is an
// error, the start of the response body.
type responseWrapper struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	keep        int
	body        bytes.Buffer
}

func (rw *responseWrapper) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWrapper) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.wroteHeader = true
	}
	if rw.statusCode >= 400 && rw.body.Len() < rw.keep {
		n := rw.keep - rw.body.Len()
		if n > len(b) {
			n = len(b)
		}
		rw.body.Write(b[:n])
	}
	return rw.ResponseWriter.Write(b)
}

// Flush implements http.Flusher.
func (rw *responseWrapper) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
