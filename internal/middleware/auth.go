// Package middleware provides HTTP middleware for the API surface.
package middleware

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// APIKey returns middleware that validates the bearer key against a bcrypt
// hash (generate one with `sqlpilot hash-key`). An empty hash disables
// authentication.
func APIKey(keyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if keyHash == "" {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			key, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || key == "" {
				unauthorized(w)
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)); err != nil {
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"invalid or missing api key"}`))
}
