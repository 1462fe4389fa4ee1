// Package storefake provides in-memory store fakes with failure injection
// for exercising the persistence and lifecycle paths in tests.
package storefake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-client/credential"
)

var _ credential.SecureStore = (*FakeSecureStore)(nil)

type FakeSecureStore struct {
	lock     sync.RWMutex
	blobs    map[string][]byte
	policies map[string]credential.AccessPolicy
	getCalls int

	// Failure injection: when set, the corresponding operation fails.
	SetErr    error
	GetErr    error
	DeleteErr error
}

func NewFakeSecureStore() *FakeSecureStore {
	return &FakeSecureStore{
		blobs:    make(map[string][]byte),
		policies: make(map[string]credential.AccessPolicy),
	}
}

func (f *FakeSecureStore) Set(_ context.Context, name string, blob []byte, policy credential.AccessPolicy) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.SetErr != nil {
		return f.SetErr
	}
	stored := make([]byte, len(blob))
	copy(stored, blob)
	f.blobs[name] = stored
	f.policies[name] = policy
	return nil
}

func (f *FakeSecureStore) Get(_ context.Context, name string) ([]byte, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.getCalls++
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	blob, ok := f.blobs[name]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, nil
}

func (f *FakeSecureStore) Delete(_ context.Context, name string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	delete(f.blobs, name)
	delete(f.policies, name)
	return nil
}

// Contains reports whether a record exists under the given name.
func (f *FakeSecureStore) Contains(name string) bool {
	f.lock.RLock()
	defer f.lock.RUnlock()
	_, ok := f.blobs[name]
	return ok
}

// Corrupt overwrites a stored record with bytes that will not decode.
func (f *FakeSecureStore) Corrupt(name string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if _, ok := f.blobs[name]; ok {
		f.blobs[name] = []byte("{not json")
	}
}

// Policy returns the access policy recorded for the given name.
func (f *FakeSecureStore) Policy(name string) credential.AccessPolicy {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.policies[name]
}

// GetCalls returns how many reads the store has served.
func (f *FakeSecureStore) GetCalls() int {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.getCalls
}
