package kvstore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/credential"
	"github.com/jrsteele09/go-auth-client/credential/storefake"
	"github.com/jrsteele09/go-auth-client/kvstore"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *kvstore.SQLiteStore {
	t.Helper()
	store, err := kvstore.NewSQLiteStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	_, err := kvstore.NewSQLiteStore("")
	require.Error(t, err)
}

func TestSQLiteStore_SetGetRemove(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "auth.accessTokenExpiresAt")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(ctx, "auth.accessTokenExpiresAt", "1735689600000"))

	value, ok, err := store.Get(ctx, "auth.accessTokenExpiresAt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1735689600000", value)

	require.NoError(t, store.Remove(ctx, "auth.accessTokenExpiresAt"))
	_, ok, err = store.Get(ctx, "auth.accessTokenExpiresAt")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSQLiteStore_SetOverwrites(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "key", "first"))
	require.NoError(t, store.Set(ctx, "key", "second"))

	value, ok, err := store.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "second", value)
}

func TestSQLiteStore_RemoveMissingKey(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Remove(context.Background(), "never-set"))
}

func TestSQLiteStore_EmptyKeyRejected(t *testing.T) {
	store := newStore(t)
	require.Error(t, store.Set(context.Background(), "", "value"))
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.db")

	store, err := kvstore.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), "auth.deviceId", "device-1"))
	require.NoError(t, store.Close())

	reopened, err := kvstore.NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	value, ok, err := reopened.Get(context.Background(), "auth.deviceId")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "device-1", value)
}

// The SQLite store plugged under the credential store.
func TestSQLiteStore_UnderCredentialStore(t *testing.T) {
	kv := newStore(t)
	secure := storefake.NewFakeSecureStore()
	store, err := credential.NewStore(secure, kv)
	require.NoError(t, err)

	cred := credential.Credential{
		AccessToken:           "A1",
		RefreshToken:          "R1",
		AccessTokenExpiresAt:  time.UnixMilli(time.Now().Add(time.Hour).UnixMilli()),
		RefreshTokenExpiresAt: time.UnixMilli(time.Now().Add(24 * time.Hour).UnixMilli()),
	}
	require.NoError(t, store.Save(context.Background(), cred))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, cred, *loaded)

	require.NoError(t, store.Clear(context.Background()))
	loaded, err = store.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, loaded)
}
