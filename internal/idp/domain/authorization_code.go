package domain

import "time"

// AuthorizationCode is the context handed from the authorize step to the
// token step. It lives in the code cache between issuance and consumption
// and is keyed by the SHA-256 fingerprint of the opaque code, never the code
// itself. Consumable exactly once.
type AuthorizationCode struct {
	CodeFingerprint     string
	Principal           string
	ClientID            string
	Scope               []string
	AuthenticationTime  time.Time
	SessionID           string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	ExpiresAt           time.Time
	CreatedAt           time.Time
}
