package apiclient

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiresAt peeks at a bearer token's exp claim without verifying the
// signature. Only the backend can decide whether a token is valid; this
// exists so callers can warn about an obviously stale session before any
// network I/O. Opaque (non-JWT) tokens report no expiry.
func TokenExpiresAt(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
