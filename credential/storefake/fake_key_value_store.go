package storefake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-client/credential"
)

var _ credential.KeyValueStore = (*FakeKeyValueStore)(nil)

type FakeKeyValueStore struct {
	lock   sync.RWMutex
	values map[string]string

	// Failure injection: when set, the corresponding operation fails.
	SetErr    error
	GetErr    error
	RemoveErr error
}

func NewFakeKeyValueStore() *FakeKeyValueStore {
	return &FakeKeyValueStore{
		values: make(map[string]string),
	}
}

func (f *FakeKeyValueStore) Set(_ context.Context, key, value string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.SetErr != nil {
		return f.SetErr
	}
	f.values[key] = value
	return nil
}

func (f *FakeKeyValueStore) Get(_ context.Context, key string) (string, bool, error) {
	f.lock.RLock()
	defer f.lock.RUnlock()

	if f.GetErr != nil {
		return "", false, f.GetErr
	}
	value, ok := f.values[key]
	return value, ok, nil
}

func (f *FakeKeyValueStore) Remove(_ context.Context, key string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.RemoveErr != nil {
		return f.RemoveErr
	}
	delete(f.values, key)
	return nil
}

// Drop removes an entry directly, bypassing failure injection. Used to
// simulate an interrupted save.
func (f *FakeKeyValueStore) Drop(key string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	delete(f.values, key)
}

// Len returns the number of stored entries.
func (f *FakeKeyValueStore) Len() int {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return len(f.values)
}
