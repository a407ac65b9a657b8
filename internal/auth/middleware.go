package auth

import (
	"crypto/subtle"
	"net/http"
)

// QueryParam is the query parameter accepted in place of the header.
const QueryParam = "api_key"

// APIKey returns middleware that enforces API key authentication.
func APIKey(mode, header, key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		// Non-apikey modes or unconfigured key → allow everything.
		if mode != "apikey" || key == "" {
			return next
		}
		want := []byte(key)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(header)
			if got == "" {
				got = r.URL.Query().Get(QueryParam)
			}
			if got == "" {
				unauthorized(w, "missing api key")
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				unauthorized(w, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
