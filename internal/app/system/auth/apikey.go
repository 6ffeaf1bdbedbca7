package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/dalemusser/stratarecipe/internal/app/system/jsonutil"
	"github.com/dalemusser/stratarecipe/internal/app/system/network"
	"go.uber.org/zap"
)

// APIKeyAuth rejects requests that do not carry "Authorization: Bearer <key>"
// with the configured key. It sits in front of LoadActor, so the X-User-ID
// header is only trusted from callers holding the key.
//
// An empty key rejects everything; startup logs a warning once.
func APIKeyAuth(key string, logger *zap.Logger) func(http.Handler) http.Handler {
	if key == "" {
		logger.Warn("api_key is empty, every API request will be rejected")
	}
	want := []byte(key)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reject := func(level func(string, ...zap.Field), reason, msg string) {
				level("api key check failed",
					zap.String("reason", reason),
					zap.String("path", r.URL.Path),
					zap.String("ip", network.GetClientIP(r)))
				jsonutil.Unauthorized(w, msg)
			}

			if key == "" {
				reject(logger.Warn, "unconfigured", "API authentication not configured")
				return
			}
			token, ok := bearerToken(r)
			if !ok {
				reject(logger.Debug, "no bearer token", "expected Authorization: Bearer <api-key>")
				return
			}
			if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
				reject(logger.Warn, "mismatch", "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the credential of a Bearer Authorization header.
// The scheme is matched case-insensitively.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
