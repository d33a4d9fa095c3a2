package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

const revokedPrefix = "revoked:"

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RevokedKey is the store key marking a logged out token. The token itself is
// hashed so raw credentials never reach the store.
func RevokedKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return revokedPrefix + hex.EncodeToString(sum[:])
}
