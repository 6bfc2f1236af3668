// Package session mints the process-lifetime session token used to
// authenticate the guest to the local proxy.
package session

import (
	"crypto/subtle"

	"github.com/google/uuid"
)

// Token is a fresh random value minted once per process lifetime.
type Token string

// Mint creates a new session token. Uses uuid.New() rather than a
// hand-rolled random-byte generator, following the teacher's own
// reach-for-uuid habit in getRequestID.
func Mint() Token {
	return Token(uuid.New().String())
}

// BearerHeader formats the token as the value the guest should send.
func (t Token) BearerHeader() string {
	return "Bearer " + string(t)
}

// Validate reports whether an inbound Authorization header value matches
// this token.
func (t Token) Validate(authHeader string) bool {
	const prefix = "Bearer "
	if len(authHeader) <= len(prefix) || authHeader[:len(prefix)] != prefix {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(authHeader[len(prefix):]), []byte(t)) == 1
}
