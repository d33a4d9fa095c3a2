package middleware

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/debtbook/backend/internal/auth"
	"github.com/debtbook/backend/internal/kvstore"
)

type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Success: false, Message: message})
}

// Auth validates the bearer token, rejects revoked tokens and stores the
// caller's user id on the request context.
func Auth(tokens *auth.TokenIssuer, store kvstore.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			userID, err := tokens.Parse(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			_, err = store.Get(r.Context(), auth.RevokedKey(token))
			switch {
			case err == nil:
				writeError(w, http.StatusUnauthorized, "Token has been revoked")
				return
			case !errors.Is(err, kvstore.ErrNotFound):
				log.Printf("[AUTH] Revocation check failed for user %d: %v", userID, err)
				writeError(w, http.StatusInternalServerError, "An Internal Error Occurred")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
		})
	}
}
