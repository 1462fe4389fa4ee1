// Package session holds the process-wide observable session state and the
// foreground reconciler that keeps it honest. The Session object is created
// once at process start and injected into consumers; there is no ambient
// singleton.
package session

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/credential"
	"github.com/jrsteele09/go-auth-client/lifecycle"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Phase is the authentication phase of the process.
type Phase string

const (
	PhaseInitializing    Phase = "initializing"
	PhaseAuthenticated   Phase = "authenticated"
	PhaseUnauthenticated Phase = "unauthenticated"
)

// Session is the observable session state: the current phase, the mirrored
// credential while authenticated, and a session-expired signal raised when
// validation outside an explicit user action discovers the session is gone.
type Session struct {
	manager      *lifecycle.Manager
	orchestrator *auth.Orchestrator
	logger       zerolog.Logger

	lock    sync.RWMutex
	phase   Phase
	current *credential.Credential

	expiredLock sync.Mutex
	expired     map[int]chan struct{}
	nextID      int
	closed      bool
}

// SessionOption defines a function type to modify the Session instance.
type SessionOption func(*Session)

// WithLogger sets the logger. Token values are never logged.
func WithLogger(logger zerolog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// New initializes a Session in the initializing phase.
func New(manager *lifecycle.Manager, orchestrator *auth.Orchestrator, options ...SessionOption) (*Session, error) {
	if manager == nil {
		return nil, errors.New("[New] lifecycle manager is required")
	}
	if orchestrator == nil {
		return nil, errors.New("[New] orchestrator is required")
	}

	s := &Session{
		manager:      manager,
		orchestrator: orchestrator,
		logger:       zerolog.Nop(),
		phase:        PhaseInitializing,
		expired:      make(map[int]chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Phase returns the current authentication phase.
func (s *Session) Phase() Phase {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.phase
}

// Current returns the credential mirrored from the store, nil unless
// authenticated. Foreground re-validation may lag, so the credential is not
// guaranteed to still be valid.
func (s *Session) Current() *credential.Credential {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.current == nil {
		return nil
	}
	cred := *s.current
	return &cred
}

// Bootstrap runs the start-up validation once: a usable stored session moves
// the phase to authenticated, anything else to unauthenticated. Only context
// cancellation returns an error, leaving the phase untouched.
func (s *Session) Bootstrap(ctx context.Context) error {
	cred, err := s.manager.Tokens(ctx)
	if err != nil {
		return errors.Wrap(err, "[Bootstrap] validating stored session")
	}

	s.setState(cred)
	s.logger.Info().Str("phase", string(s.Phase())).Msg("session bootstrapped")
	return nil
}

// Login runs the interactive flow. On success the phase becomes
// authenticated with the new credential; on failure the phase is left as it
// was.
func (s *Session) Login(ctx context.Context) error {
	cred, err := s.orchestrator.Login(ctx)
	if err != nil {
		return errors.Wrap(err, "[Login] orchestrator")
	}

	s.setState(cred)
	return nil
}

// Logout tears the session down, revoking server-side where possible. It
// always leaves the phase unauthenticated and never fails.
func (s *Session) Logout(ctx context.Context) error {
	var identityToken string
	if cred := s.Current(); cred != nil {
		identityToken = cred.IdentityToken
	}

	if err := s.orchestrator.Logout(ctx, identityToken); err != nil {
		s.logger.Warn().Err(err).Msg("logout reported an error, state is torn down regardless")
	}

	s.setState(nil)
	return nil
}

// SubscribeExpired registers a listener for the session-expired signal. The
// returned function removes it; every subscription must be paired with its
// teardown.
func (s *Session) SubscribeExpired() (<-chan struct{}, func()) {
	s.expiredLock.Lock()
	defer s.expiredLock.Unlock()

	ch := make(chan struct{}, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextID
	s.nextID++
	s.expired[id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.expiredLock.Lock()
			defer s.expiredLock.Unlock()
			if sub, ok := s.expired[id]; ok {
				delete(s.expired, id)
				close(sub)
			}
		})
	}
	return ch, unsubscribe
}

// Close tears down the session context and every expiry subscription.
func (s *Session) Close() {
	s.expiredLock.Lock()
	defer s.expiredLock.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.expired {
		delete(s.expired, id)
		close(ch)
	}
}

// setState moves the phase to authenticated or unauthenticated depending on
// whether a credential is present.
func (s *Session) setState(cred *credential.Credential) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if cred != nil {
		s.phase = PhaseAuthenticated
		s.current = cred
		return
	}
	s.phase = PhaseUnauthenticated
	s.current = nil
}

// expire is the reconciler's entry point: an asynchronous discovery that the
// session is gone. It transitions to unauthenticated and raises the
// session-expired signal, but only if the session was still authenticated,
// so a race with an explicit logout cannot double-fire.
func (s *Session) expire() {
	s.lock.Lock()
	if s.phase != PhaseAuthenticated {
		s.lock.Unlock()
		return
	}
	s.phase = PhaseUnauthenticated
	s.current = nil
	s.lock.Unlock()

	s.logger.Info().Msg("session expired")
	s.expiredLock.Lock()
	defer s.expiredLock.Unlock()
	for _, ch := range s.expired {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// refresh updates the mirrored credential after a successful revalidation,
// without touching the phase.
func (s *Session) refresh(cred *credential.Credential) {
	if cred == nil {
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.phase == PhaseAuthenticated {
		s.current = cred
	}
}
