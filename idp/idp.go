// Package idp declares the boundary to the remote identity provider: the
// configuration describing it, the result shape every token-issuing call
// returns, and the three collaborator interfaces (interactive authorization,
// silent refresh, best-effort revocation) the session core consumes.
package idp

import (
	"context"
	"time"

	"github.com/jrsteele09/go-auth-client/credential"
)

// Config identifies the provider and this client to it. It is carried
// unchanged on every collaborator call.
type Config struct {
	Issuer                string
	ClientID              string
	RedirectURI           string
	Scopes                []string
	UsePKCE               bool
	PostLogoutRedirectURI string

	// AdditionalParameters are provider-specific request parameters (for
	// example a device identifier) appended to authorize and refresh calls.
	AdditionalParameters map[string]string
}

// Result is the normalized outcome of an authorization or refresh exchange.
type Result struct {
	AccessToken   string
	IdentityToken string
	RefreshToken  string

	// AccessTokenExpiresAt is the provider's stated expiry instant.
	AccessTokenExpiresAt time.Time

	// RefreshTokenLifetime is the provider-declared refresh token lifetime,
	// zero when the provider did not state one.
	RefreshTokenLifetime time.Duration

	// ProviderParameters carries any extra response values verbatim.
	ProviderParameters map[string]string
}

// Credential converts the result into the persisted credential shape,
// anchoring the refresh expiry at the given instant when the provider
// declared a lifetime. Without a declared lifetime the refresh expiry stays
// unknown (zero).
func (r Result) Credential(now time.Time) credential.Credential {
	cred := credential.Credential{
		AccessToken:          r.AccessToken,
		IdentityToken:        r.IdentityToken,
		RefreshToken:         r.RefreshToken,
		AccessTokenExpiresAt: r.AccessTokenExpiresAt,
	}
	if r.RefreshTokenLifetime > 0 {
		cred.RefreshTokenExpiresAt = now.Add(r.RefreshTokenLifetime)
	}
	return cred
}

// Revocation describes a best-effort server-side logout request.
type Revocation struct {
	// Token is the token handed to the provider, an identity token where the
	// provider supports RP-initiated logout.
	Token string

	PostLogoutRedirectURI string
}

// Authorizer runs the interactive authorization-code-with-PKCE flow. The
// context cancels the flow; user cancellation surfaces as an error.
type Authorizer interface {
	Authorize(ctx context.Context, cfg Config) (*Result, error)
}

// Refresher exchanges a refresh token for a new token set.
type Refresher interface {
	Refresh(ctx context.Context, cfg Config, refreshToken string) (*Result, error)
}

// Revoker invalidates a session server-side. Callers treat failures as
// non-fatal.
type Revoker interface {
	Revoke(ctx context.Context, cfg Config, revocation Revocation) error
}
