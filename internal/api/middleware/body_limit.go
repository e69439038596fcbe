package middleware

import "net/http"

// DefaultMaxBodyBytes bounds admin request bodies; a pattern is a short string.
const DefaultMaxBodyBytes = 16 * 1024

// MaxBodySize limits request bodies of POST, PUT and PATCH requests to limit bytes.
func MaxBodySize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
