// Package credential holds the single active session's token set and its
// durable persistence: an encrypted blob for the tokens themselves plus two
// plain expiry stamps that can be checked without unlocking the secure store.
package credential

import "time"

// Credential is the complete token set of the active session.
type Credential struct {
	// Tokens (access is essential, identity and refresh are optional)
	AccessToken   string `json:"accessToken"`
	IdentityToken string `json:"idToken,omitempty"`
	RefreshToken  string `json:"refreshToken,omitempty"`

	// Expiry bookkeeping, persisted outside the encrypted blob
	AccessTokenExpiresAt  time.Time `json:"-"`
	RefreshTokenExpiresAt time.Time `json:"-"`
}

// Valid reports whether the access token may still be used at the given
// instant. Expiry is trusted as stated by the provider; token contents are
// never inspected.
func (c Credential) Valid(now time.Time) bool {
	return now.Before(c.AccessTokenExpiresAt)
}

// CanRefresh reports whether a silent renewal may be attempted at the given
// instant: a refresh token must be present and, when the provider declared a
// refresh lifetime, that lifetime must not have elapsed. An unknown refresh
// expiry (zero value) does not block the attempt.
func (c Credential) CanRefresh(now time.Time) bool {
	if c.RefreshToken == "" {
		return false
	}
	if c.RefreshTokenExpiresAt.IsZero() {
		return true
	}
	return now.Before(c.RefreshTokenExpiresAt)
}
