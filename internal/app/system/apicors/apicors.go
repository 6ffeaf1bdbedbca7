// Package apicors provides CORS middleware for the API-key authenticated
// recipe API. No cookies are involved, so credentials are never allowed.
package apicors

import (
	"net/http"
	"strings"

	"github.com/dalemusser/stratarecipe/internal/app/system/auth"
)

var allowHeaders = strings.Join([]string{
	"Authorization",
	"Content-Type",
	"Accept",
	auth.UserHeader,
}, ", ")

const allowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"

// Middleware returns CORS middleware for API routes. With no origins every
// origin is allowed; otherwise only the listed origins are echoed back.
//
//	r.Route("/api", func(r chi.Router) {
//	    r.Use(apicors.Middleware(appCfg.CORSOrigins...))
//	    r.Use(auth.APIKeyAuth(appCfg.APIKey, logger))
//	})
func Middleware(origins ...string) func(http.Handler) http.Handler {
	originSet := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			originSet[o] = struct{}{}
		}
	}
	anyOrigin := len(originSet) == 0

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if anyOrigin {
				h.Set("Access-Control-Allow-Origin", "*")
			} else if origin := r.Header.Get("Origin"); origin != "" {
				h.Add("Vary", "Origin")
				if _, ok := originSet[origin]; ok {
					h.Set("Access-Control-Allow-Origin", origin)
				}
			}
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
