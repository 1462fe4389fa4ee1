// Package idpfake provides scripted collaborator fakes for exercising the
// session core without a provider.
package idpfake

import (
	"context"
	"errors"
	"sync"

	"github.com/jrsteele09/go-auth-client/idp"
)

var (
	_ idp.Authorizer = (*FakeAuthorizer)(nil)
	_ idp.Refresher  = (*FakeRefresher)(nil)
	_ idp.Revoker    = (*FakeRevoker)(nil)
)

// FakeAuthorizer returns a scripted authorization result or error.
type FakeAuthorizer struct {
	lock    sync.Mutex
	calls   int
	configs []idp.Config

	Result *idp.Result
	Err    error
}

func NewFakeAuthorizer() *FakeAuthorizer {
	return &FakeAuthorizer{}
}

func (f *FakeAuthorizer) Authorize(ctx context.Context, cfg idp.Config) (*idp.Result, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.calls++
	f.configs = append(f.configs, cfg)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	result := *f.Result
	return &result, nil
}

// Calls returns how many flows were started.
func (f *FakeAuthorizer) Calls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.calls
}

// LastConfig returns the configuration of the most recent call.
func (f *FakeAuthorizer) LastConfig() idp.Config {
	f.lock.Lock()
	defer f.lock.Unlock()
	if len(f.configs) == 0 {
		return idp.Config{}
	}
	return f.configs[len(f.configs)-1]
}

// FakeRefresher replays scripted results in call order; when the script is
// exhausted the last entry repeats. Err, when set, wins over the script.
type FakeRefresher struct {
	lock   sync.Mutex
	calls  int
	tokens []string

	Results []*idp.Result
	Err     error
}

func NewFakeRefresher(results ...*idp.Result) *FakeRefresher {
	return &FakeRefresher{Results: results}
}

func (f *FakeRefresher) Refresh(ctx context.Context, _ idp.Config, refreshToken string) (*idp.Result, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.calls++
	f.tokens = append(f.tokens, refreshToken)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	if len(f.Results) == 0 {
		return nil, errors.New("no scripted refresh result")
	}
	idx := f.calls - 1
	if idx >= len(f.Results) {
		idx = len(f.Results) - 1
	}
	result := *f.Results[idx]
	return &result, nil
}

// Calls returns how many refresh exchanges were attempted.
func (f *FakeRefresher) Calls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.calls
}

// Tokens returns the refresh tokens presented, in call order.
func (f *FakeRefresher) Tokens() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	out := make([]string, len(f.tokens))
	copy(out, f.tokens)
	return out
}

// FakeRevoker records revocation requests and optionally fails them.
type FakeRevoker struct {
	lock        sync.Mutex
	revocations []idp.Revocation

	Err error
}

func NewFakeRevoker() *FakeRevoker {
	return &FakeRevoker{}
}

func (f *FakeRevoker) Revoke(_ context.Context, _ idp.Config, revocation idp.Revocation) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.revocations = append(f.revocations, revocation)
	return f.Err
}

// Revocations returns every recorded revocation request.
func (f *FakeRevoker) Revocations() []idp.Revocation {
	f.lock.Lock()
	defer f.lock.Unlock()
	out := make([]idp.Revocation, len(f.revocations))
	copy(out, f.revocations)
	return out
}
