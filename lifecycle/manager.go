// Package lifecycle decides whether the stored session is usable: it hands
// out the persisted credential while the access token is valid, silently
// refreshes it when expired, and clears all state the moment the session
// cannot be renewed.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-client/credential"
	"github.com/jrsteele09/go-auth-client/idp"
	interrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Manager serializes every load-decide-refresh-save sequence behind one
// lock, so concurrent triggers (foreground revalidation racing a manual
// token fetch) cannot interleave on the single-slot store.
type Manager struct {
	store     *credential.Store
	refresher idp.Refresher
	config    idp.Config
	nowTime   func() time.Time
	logger    zerolog.Logger
	lock      sync.Mutex
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithLogger sets the logger. Token values are never logged.
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager initializes a new Manager with required dependencies.
func NewManager(store *credential.Store, refresher idp.Refresher, cfg idp.Config, options ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("[NewManager] credential store is required")
	}
	if refresher == nil {
		return nil, errors.New("[NewManager] refresher is required")
	}

	m := &Manager{
		store:     store,
		refresher: refresher,
		config:    cfg,
		nowTime:   time.Now,
		logger:    zerolog.Nop(),
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Tokens returns a currently-valid credential, or (nil, nil) when no usable
// session exists. A stored credential whose access token is still valid is
// returned unchanged without touching the network; an expired one triggers
// exactly one refresh attempt, whose failure clears the store. The outcome
// is deliberately binary: callers cannot tell "never logged in" from
// "refresh failed" here. Only context cancellation surfaces as an error.
func (m *Manager) Tokens(ctx context.Context) (*credential.Credential, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	cred, err := m.store.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Tokens] loading credential")
	}
	if cred == nil {
		return nil, nil
	}

	now := m.nowTime()
	if cred.Valid(now) {
		return cred, nil
	}

	refreshed, err := m.refresh(ctx, *cred, now)
	if err != nil {
		if ctx.Err() != nil {
			// Cancellation is the caller giving up, not the session dying;
			// leave the store alone.
			return nil, ctx.Err()
		}
		m.logger.Warn().Err(err).Msg("refresh failed, clearing session")
		m.clear(ctx)
		return nil, nil
	}
	return refreshed, nil
}

// refresh runs the single renewal attempt and persists its outcome.
func (m *Manager) refresh(ctx context.Context, cred credential.Credential, now time.Time) (*credential.Credential, error) {
	if cred.RefreshToken == "" {
		return nil, interrors.Wrapf(interrors.ErrNoRefreshToken, "[refresh] cannot renew")
	}
	if !cred.CanRefresh(now) {
		return nil, interrors.Wrapf(interrors.ErrRefreshTokenExpired, "[refresh] cannot renew")
	}

	result, err := m.refresher.Refresh(ctx, m.config, cred.RefreshToken)
	if err != nil {
		return nil, interrors.Wrapf(interrors.ErrRefreshRejected, "[refresh] token exchange: %v", err)
	}

	// The provider's refresh token replaces the old one wholesale, even when
	// the response omitted it; see DESIGN.md on the rotation assumption.
	renewed := result.Credential(m.nowTime())
	if err := m.store.Save(ctx, renewed); err != nil {
		return nil, errors.Wrap(err, "[refresh] persisting renewed credential")
	}

	m.logger.Debug().
		Time("accessTokenExpiresAt", renewed.AccessTokenExpiresAt).
		Bool("refreshTokenRotated", renewed.RefreshToken != cred.RefreshToken).
		Msg("session refreshed")
	return &renewed, nil
}

func (m *Manager) clear(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("clearing session store failed")
	}
}
