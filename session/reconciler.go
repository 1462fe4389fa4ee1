package session

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-client/appstate"
	"github.com/jrsteele09/go-auth-client/lifecycle"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Reconciler revalidates the session whenever the application returns to the
// foreground. A session found dead while the app was backgrounded surfaces
// as the session-expired signal rather than a failing API call later.
type Reconciler struct {
	session *Session
	manager *lifecycle.Manager
	logger  zerolog.Logger

	states      <-chan appstate.State
	unsubscribe func()
	done        chan struct{}
	wg          sync.WaitGroup
}

// ReconcilerOption defines a function type to modify the Reconciler instance.
type ReconcilerOption func(*Reconciler)

// WithReconcilerLogger sets the logger.
func WithReconcilerLogger(logger zerolog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// NewReconciler subscribes to the lifecycle source and starts watching.
// Close releases the subscription.
func NewReconciler(sess *Session, manager *lifecycle.Manager, source appstate.Source, options ...ReconcilerOption) (*Reconciler, error) {
	if sess == nil {
		return nil, errors.New("[NewReconciler] session is required")
	}
	if manager == nil {
		return nil, errors.New("[NewReconciler] lifecycle manager is required")
	}
	if source == nil {
		return nil, errors.New("[NewReconciler] app state source is required")
	}

	r := &Reconciler{
		session: sess,
		manager: manager,
		logger:  zerolog.Nop(),
		done:    make(chan struct{}),
	}
	for _, opt := range options {
		opt(r)
	}

	r.states, r.unsubscribe = source.Subscribe()
	r.wg.Add(1)
	go r.run()
	return r, nil
}

// Close unsubscribes from the lifecycle source and stops the watcher.
func (r *Reconciler) Close() {
	select {
	case <-r.done:
		return
	default:
	}
	close(r.done)
	r.unsubscribe()
	r.wg.Wait()
}

func (r *Reconciler) run() {
	defer r.wg.Done()

	// Transitions are de-duplicated against the last observed state, so a
	// repeated "already foreground" signal does nothing.
	var last appstate.State
	for {
		select {
		case state, ok := <-r.states:
			if !ok {
				return
			}
			if state == last {
				continue
			}
			last = state
			if state == appstate.Foreground {
				r.reconcile()
			}
		case <-r.done:
			return
		}
	}
}

// reconcile runs the usable-tokens check for an authenticated session. An
// absent result means the session died while backgrounded: raise the
// session-expired signal. A transient failure here is indistinguishable and
// handled the same way; the next foreground transition revalidates again.
func (r *Reconciler) reconcile() {
	if r.session.Phase() != PhaseAuthenticated {
		return
	}

	cred, err := r.manager.Tokens(context.Background())
	if err != nil {
		r.logger.Warn().Err(err).Msg("foreground revalidation aborted")
		return
	}
	if cred == nil {
		r.session.expire()
		return
	}

	r.session.refresh(cred)
	r.logger.Debug().Time("accessTokenExpiresAt", cred.AccessTokenExpiresAt).Msg("foreground revalidation ok")
}
