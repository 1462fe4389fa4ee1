package oidcprovider

import (
	"context"

	"github.com/jrsteele09/go-auth-client/idp"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// Refresh exchanges the refresh token for a new token set through the
// provider's token endpoint. Note x/oauth2 carries the presented refresh
// token over into the response when the provider does not rotate, so callers
// always receive a usable refresh token from this implementation.
func (p *Provider) Refresh(ctx context.Context, cfg idp.Config, refreshToken string) (*idp.Result, error) {
	if refreshToken == "" {
		return nil, errors.New("[Refresh] refresh token is required")
	}

	provider, err := p.discover(ctx, cfg.Issuer)
	if err != nil {
		return nil, errors.Wrap(err, "[Refresh] discovery")
	}

	source := oauthConfig(cfg, provider).TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, errors.Wrap(err, "[Refresh] token exchange")
	}

	out := result(token)
	p.logger.Debug().
		Time("accessTokenExpiresAt", out.AccessTokenExpiresAt).
		Bool("refreshTokenRotated", out.RefreshToken != refreshToken).
		Msg("refresh grant complete")
	return out, nil
}
