package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Verifier checks the admin credential on API requests. The bearer token
// is the configured password itself; an unset password locks every admin
// operation out rather than opening them up.
type Verifier struct {
	password string
}

// NewVerifier creates a Verifier for the configured admin password.
func NewVerifier(password string) *Verifier {
	return &Verifier{password: password}
}

// VerifyPassword reports whether the supplied password matches.
func (v *Verifier) VerifyPassword(password string) bool {
	if v == nil || v.password == "" || password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(v.password), []byte(password)) == 1
}

// VerifyRequest reports whether the request carries a valid admin bearer
// token.
func (v *Verifier) VerifyRequest(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return false
	}
	return v.VerifyPassword(strings.TrimPrefix(header, "Bearer "))
}

// Token exchanges a valid password for an API token.
func (v *Verifier) Token(password string) (string, bool) {
	if !v.VerifyPassword(password) {
		return "", false
	}
	return password, true
}
