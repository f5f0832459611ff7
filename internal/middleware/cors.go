package middleware

import (
	"net/http"
	"slices"
	"strings"
)

// CORSMiddleware answers preflight requests and adds CORS headers for the
// browser client. Only origins in the allow-list are echoed back; "*" admits any.
type CORSMiddleware struct {
	allowedOrigins []string
}

// NewCORSMiddleware creates a CORS middleware for origins.
func NewCORSMiddleware(origins []string) *CORSMiddleware {
	return &CORSMiddleware{allowedOrigins: origins}
}

// Handler returns middleware that applies the CORS policy.
func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || !m.allowed(origin) {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		h.Set("Access-Control-Max-Age", "600")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *CORSMiddleware) allowed(origin string) bool {
	return slices.ContainsFunc(m.allowedOrigins, func(o string) bool {
		return o == "*" || strings.EqualFold(o, origin)
	})
}
