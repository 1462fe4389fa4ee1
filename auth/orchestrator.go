// Package auth drives interactive login and logout against the identity
// provider, normalizing flow results into the persisted credential.
package auth

import (
	"context"
	"time"

	"github.com/jrsteele09/go-auth-client/credential"
	"github.com/jrsteele09/go-auth-client/idp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Orchestrator runs the authorization-code-with-PKCE flow on login and the
// best-effort revocation plus local teardown on logout.
type Orchestrator struct {
	store      *credential.Store
	authorizer idp.Authorizer
	revoker    idp.Revoker
	config     idp.Config
	nowTime    func() time.Time
	logger     zerolog.Logger
}

// OrchestratorOption defines a function type to modify the Orchestrator instance.
type OrchestratorOption func(*Orchestrator)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.nowTime = nowFunc
	}
}

// WithLogger sets the logger. Token values are never logged.
func WithLogger(logger zerolog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator initializes a new Orchestrator with required dependencies.
func NewOrchestrator(store *credential.Store, authorizer idp.Authorizer, revoker idp.Revoker, cfg idp.Config, options ...OrchestratorOption) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("[NewOrchestrator] credential store is required")
	}
	if authorizer == nil {
		return nil, errors.New("[NewOrchestrator] authorizer is required")
	}
	if revoker == nil {
		return nil, errors.New("[NewOrchestrator] revoker is required")
	}

	o := &Orchestrator{
		store:      store,
		authorizer: authorizer,
		revoker:    revoker,
		config:     cfg,
		nowTime:    time.Now,
		logger:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(o)
	}
	return o, nil
}

// Login runs the interactive flow and persists its result. Any failure
// (user cancellation, provider error, storage failure) returns an error and
// leaves whatever session was stored before untouched.
func (o *Orchestrator) Login(ctx context.Context) (*credential.Credential, error) {
	result, err := o.authorizer.Authorize(ctx, o.config)
	if err != nil {
		return nil, errors.Wrap(err, "[Login] authorization flow")
	}

	cred := result.Credential(o.nowTime())
	if err := o.store.Save(ctx, cred); err != nil {
		return nil, errors.Wrap(err, "[Login] persisting credential")
	}

	o.logger.Info().
		Time("accessTokenExpiresAt", cred.AccessTokenExpiresAt).
		Bool("hasRefreshToken", cred.RefreshToken != "").
		Msg("login succeeded")
	return &cred, nil
}

// Logout revokes the session server-side where possible and always tears
// down the local store. It never fails from the caller's point of view:
// revocation errors are logged and swallowed, and the local clear proceeds
// regardless.
func (o *Orchestrator) Logout(ctx context.Context, identityToken string) error {
	if identityToken != "" {
		revocation := idp.Revocation{
			Token:                 identityToken,
			PostLogoutRedirectURI: o.config.PostLogoutRedirectURI,
		}
		if err := o.revoker.Revoke(ctx, o.config, revocation); err != nil {
			o.logger.Warn().Err(err).Msg("token revocation failed, proceeding with local logout")
		}
	}

	if err := o.store.Clear(ctx); err != nil {
		o.logger.Warn().Err(err).Msg("clearing session store failed during logout")
	}
	o.logger.Info().Msg("logged out")
	return nil
}
