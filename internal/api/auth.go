package api

import (
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// APIKeyHeader carries the API key. Browsers cannot set headers on a
// WebSocket handshake, so the key is also accepted in the api_key query
// parameter.
const APIKeyHeader = "X-API-Key"

// apiKeyAuth returns a middleware that checks the API key against a bcrypt
// hash. An empty hash disables the check.
func apiKeyAuth(hash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if hash == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(APIKeyHeader)
			if got == "" {
				got = r.URL.Query().Get("api_key")
			}
			if got == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(got)) != nil {
				w.Header().Set("WWW-Authenticate", fmt.Sprintf(`ApiKey header="%s"`, APIKeyHeader))
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid or missing API key"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HashAPIKey returns the bcrypt hash to put in the configuration for key.
func HashAPIKey(key string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("api: hash key: %w", err)
	}
	return string(h), nil
}
