package oidcprovider

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-auth-client/idp"
	"github.com/pkg/errors"
)

// providerEndpoints are the optional logout-related endpoints discovery may
// advertise beyond the ones go-oidc models directly.
type providerEndpoints struct {
	EndSessionEndpoint string `json:"end_session_endpoint"`
	RevocationEndpoint string `json:"revocation_endpoint"`
}

// Revoke invalidates the session server-side, preferring RP-initiated
// logout (end_session_endpoint with an id_token_hint) and falling back to
// RFC 7009 revocation. Callers treat any error as non-fatal.
func (p *Provider) Revoke(ctx context.Context, cfg idp.Config, revocation idp.Revocation) error {
	if revocation.Token == "" {
		return errors.New("[Revoke] token is required")
	}

	provider, err := p.discover(ctx, cfg.Issuer)
	if err != nil {
		return errors.Wrap(err, "[Revoke] discovery")
	}

	var endpoints providerEndpoints
	if err := provider.Claims(&endpoints); err != nil {
		return errors.Wrap(err, "[Revoke] reading discovery metadata")
	}

	switch {
	case endpoints.EndSessionEndpoint != "":
		return p.endSession(ctx, endpoints.EndSessionEndpoint, cfg, revocation)
	case endpoints.RevocationEndpoint != "":
		return p.revokeToken(ctx, endpoints.RevocationEndpoint, cfg, revocation)
	default:
		return errors.New("[Revoke] provider advertises no logout endpoint")
	}
}

// endSession performs RP-initiated logout.
func (p *Provider) endSession(ctx context.Context, endpoint string, cfg idp.Config, revocation idp.Revocation) error {
	target, err := url.Parse(endpoint)
	if err != nil {
		return errors.Wrap(err, "[endSession] parsing endpoint")
	}

	query := target.Query()
	query.Set("id_token_hint", revocation.Token)
	query.Set("client_id", cfg.ClientID)
	if revocation.PostLogoutRedirectURI != "" {
		query.Set("post_logout_redirect_uri", revocation.PostLogoutRedirectURI)
	}
	target.RawQuery = query.Encode()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return errors.Wrap(err, "[endSession] building request")
	}

	response, err := p.httpClient.Do(request)
	if err != nil {
		return errors.Wrap(err, "[endSession] calling endpoint")
	}
	defer drainAndClose(response.Body)

	if response.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("[endSession] provider responded %d", response.StatusCode)
	}
	p.logger.Debug().Msg("end session complete")
	return nil
}

// revokeToken performs RFC 7009 token revocation.
func (p *Provider) revokeToken(ctx context.Context, endpoint string, cfg idp.Config, revocation idp.Revocation) error {
	form := url.Values{}
	form.Set("token", revocation.Token)
	form.Set("client_id", cfg.ClientID)

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "[revokeToken] building request")
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := p.httpClient.Do(request)
	if err != nil {
		return errors.Wrap(err, "[revokeToken] calling endpoint")
	}
	defer drainAndClose(response.Body)

	if response.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("[revokeToken] provider responded %d", response.StatusCode)
	}
	p.logger.Debug().Msg("token revocation complete")
	return nil
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
