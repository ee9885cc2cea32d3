package domain

import "time"

// RefreshToken models the stored issuance context of an opaque refresh
// token. Immutable once stored: rotation would mean issuing a new token and
// revoking this one, never updating in place.
type RefreshToken struct {
	TokenFingerprint string
	Principal        string
	ClientID         string
	Scope            []string
	Expiry           *time.Time // nil means non-expiring
	CreatedAt        time.Time
}
