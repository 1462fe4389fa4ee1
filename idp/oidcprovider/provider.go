// Package oidcprovider implements the identity-provider collaborators
// against a real OIDC issuer: discovery and ID-token verification through
// go-oidc, the code exchange and refresh grant through x/oauth2, and
// best-effort revocation through the provider's advertised end-session or
// revocation endpoint.
package oidcprovider

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-auth-client/idp"
	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// URLOpener hands the authorization URL to the user's browser. The default
// is injected by the binary; tests drive the flow with an HTTP client.
type URLOpener func(url string) error

// Provider implements idp.Authorizer, idp.Refresher and idp.Revoker.
type Provider struct {
	httpClient *http.Client
	opener     URLOpener
	logger     zerolog.Logger

	discoveryLock sync.Mutex
	discovered    map[string]*oidc.Provider // issuer -> discovery result
}

var (
	_ idp.Authorizer = (*Provider)(nil)
	_ idp.Refresher  = (*Provider)(nil)
	_ idp.Revoker    = (*Provider)(nil)
)

// ProviderOption defines a function type to modify the Provider instance.
type ProviderOption func(*Provider)

// WithHTTPClient sets the client used for every provider call.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// WithLogger sets the logger. Token values are never logged.
func WithLogger(logger zerolog.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider creates a Provider that opens interactive flows with the given
// opener.
func NewProvider(opener URLOpener, options ...ProviderOption) (*Provider, error) {
	if opener == nil {
		return nil, errors.New("[NewProvider] url opener is required")
	}

	p := &Provider{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		opener:     opener,
		logger:     zerolog.Nop(),
		discovered: make(map[string]*oidc.Provider),
	}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

// discover resolves and caches the issuer's endpoint metadata.
func (p *Provider) discover(ctx context.Context, issuer string) (*oidc.Provider, error) {
	p.discoveryLock.Lock()
	defer p.discoveryLock.Unlock()

	if provider, ok := p.discovered[issuer]; ok {
		return provider, nil
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, p.httpClient), issuer)
	if err != nil {
		return nil, errors.Wrap(err, "[discover] issuer discovery")
	}
	p.discovered[issuer] = provider
	return provider, nil
}

// oauthConfig builds the x/oauth2 configuration for one flow.
func oauthConfig(cfg idp.Config, provider *oidc.Provider) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    cfg.ClientID,
		Endpoint:    provider.Endpoint(),
		RedirectURL: cfg.RedirectURI,
		Scopes:      cfg.Scopes,
	}
}

// clientContext threads the provider's HTTP client through x/oauth2 calls.
func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// result normalizes an x/oauth2 token into the collaborator result shape.
func result(token *oauth2.Token) *idp.Result {
	out := &idp.Result{
		AccessToken:          token.AccessToken,
		RefreshToken:         token.RefreshToken,
		AccessTokenExpiresAt: token.Expiry,
	}
	if idToken, ok := token.Extra("id_token").(string); ok {
		out.IdentityToken = idToken
	}
	if seconds, ok := utils.Int64FromAny(token.Extra("refresh_expires_in")); ok && seconds > 0 {
		out.RefreshTokenLifetime = time.Duration(seconds) * time.Second
	}
	return out
}
