package credential_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/credential"
	"github.com/jrsteele09/go-auth-client/credential/storefake"
	"github.com/stretchr/testify/require"
)

const (
	testAccessToken   = "access-token-1"
	testIdentityToken = "identity-token-1"
	testRefreshToken  = "refresh-token-1"
)

// testFixture holds the store under test with its fake backends
type testFixture struct {
	secure *storefake.FakeSecureStore
	kv     *storefake.FakeKeyValueStore
	store  *credential.Store
}

func setupTestFixture(t *testing.T, opts ...credential.StoreOption) *testFixture {
	t.Helper()

	secure := storefake.NewFakeSecureStore()
	kv := storefake.NewFakeKeyValueStore()

	store, err := credential.NewStore(secure, kv, opts...)
	require.NoError(t, err)

	return &testFixture{
		secure: secure,
		kv:     kv,
		store:  store,
	}
}

// testCredential builds a credential with millisecond-precision expiries,
// matching what survives the plain-store round trip.
func testCredential(accessExpiry, refreshExpiry time.Time) credential.Credential {
	return credential.Credential{
		AccessToken:           testAccessToken,
		IdentityToken:         testIdentityToken,
		RefreshToken:          testRefreshToken,
		AccessTokenExpiresAt:  millis(accessExpiry),
		RefreshTokenExpiresAt: millis(refreshExpiry),
	}
}

func millis(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.UnixMilli(t.UnixMilli())
}

func TestNewStore_RequiresBackends(t *testing.T) {
	_, err := credential.NewStore(nil, storefake.NewFakeKeyValueStore())
	require.Error(t, err)

	_, err = credential.NewStore(storefake.NewFakeSecureStore(), nil)
	require.Error(t, err)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	f := setupTestFixture(t)
	now := time.Now()

	cred := testCredential(now.Add(time.Hour), now.Add(7*24*time.Hour))
	require.NoError(t, f.store.Save(context.Background(), cred))

	loaded, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, cred, *loaded)
}

func TestStore_LoadEmptyStore(t *testing.T) {
	f := setupTestFixture(t)

	loaded, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, loaded)
	require.Zero(t, f.secure.GetCalls(), "empty store must be detected from the plain entries alone")
}

func TestStore_UnknownRefreshExpiry(t *testing.T) {
	f := setupTestFixture(t)

	cred := testCredential(time.Now().Add(time.Hour), time.Time{})
	cred.RefreshToken = ""
	require.NoError(t, f.store.Save(context.Background(), cred))

	loaded, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.True(t, loaded.RefreshTokenExpiresAt.IsZero())
}

func TestStore_SaveValidation(t *testing.T) {
	f := setupTestFixture(t)
	now := time.Now()

	tests := []struct {
		name string
		cred credential.Credential
	}{
		{
			name: "missing access token",
			cred: credential.Credential{AccessTokenExpiresAt: now.Add(time.Hour)},
		},
		{
			name: "missing access token expiry",
			cred: credential.Credential{AccessToken: testAccessToken},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Error(t, f.store.Save(context.Background(), tc.cred))
		})
	}
}

func TestStore_PartialSaveLoadsAsAbsent(t *testing.T) {
	tests := []struct {
		name string
		drop func(f *testFixture)
	}{
		{
			name: "access expiry missing",
			drop: func(f *testFixture) { f.kv.Drop("auth.accessTokenExpiresAt") },
		},
		{
			name: "refresh expiry missing",
			drop: func(f *testFixture) { f.kv.Drop("auth.refreshTokenExpiresAt") },
		},
		{
			name: "secure blob missing",
			drop: func(f *testFixture) {
				require.NoError(t, f.secure.Delete(context.Background(), "auth.credentials"))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := setupTestFixture(t)
			cred := testCredential(time.Now().Add(time.Hour), time.Now().Add(24*time.Hour))
			require.NoError(t, f.store.Save(context.Background(), cred))

			tc.drop(f)

			loaded, err := f.store.Load(context.Background())
			require.NoError(t, err)
			require.Nil(t, loaded)
		})
	}
}

func TestStore_ExpiryMissingSkipsSecureStore(t *testing.T) {
	f := setupTestFixture(t)
	cred := testCredential(time.Now().Add(time.Hour), time.Now().Add(24*time.Hour))
	require.NoError(t, f.store.Save(context.Background(), cred))

	f.kv.Drop("auth.accessTokenExpiresAt")

	loaded, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, loaded)
	require.Zero(t, f.secure.GetCalls())
}

func TestStore_FailedSaveReportsError(t *testing.T) {
	f := setupTestFixture(t)
	cred := testCredential(time.Now().Add(time.Hour), time.Now().Add(24*time.Hour))

	f.secure.SetErr = errors.New("keychain unavailable")
	require.Error(t, f.store.Save(context.Background(), cred))

	loaded, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestStore_ExpiryWriteFailureLoadsAsAbsent(t *testing.T) {
	f := setupTestFixture(t)
	cred := testCredential(time.Now().Add(time.Hour), time.Now().Add(24*time.Hour))

	f.kv.SetErr = errors.New("disk full")
	require.Error(t, f.store.Save(context.Background(), cred))
	f.kv.SetErr = nil

	// The blob was written before the expiry write failed; the incomplete
	// record must still read back as absent.
	loaded, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestStore_CorruptBlobLoadsAsAbsent(t *testing.T) {
	f := setupTestFixture(t)
	cred := testCredential(time.Now().Add(time.Hour), time.Now().Add(24*time.Hour))
	require.NoError(t, f.store.Save(context.Background(), cred))

	f.secure.Corrupt("auth.credentials")

	loaded, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestStore_MalformedExpiryLoadsAsAbsent(t *testing.T) {
	f := setupTestFixture(t)
	cred := testCredential(time.Now().Add(time.Hour), time.Now().Add(24*time.Hour))
	require.NoError(t, f.store.Save(context.Background(), cred))

	require.NoError(t, f.kv.Set(context.Background(), "auth.accessTokenExpiresAt", "not-a-number"))

	loaded, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestStore_Clear(t *testing.T) {
	f := setupTestFixture(t)
	cred := testCredential(time.Now().Add(time.Hour), time.Now().Add(24*time.Hour))
	require.NoError(t, f.store.Save(context.Background(), cred))

	require.NoError(t, f.store.Clear(context.Background()))

	loaded, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, loaded)
	require.False(t, f.secure.Contains("auth.credentials"))
	require.Zero(t, f.kv.Len())
}

func TestStore_ClearIsBestEffort(t *testing.T) {
	f := setupTestFixture(t)
	cred := testCredential(time.Now().Add(time.Hour), time.Now().Add(24*time.Hour))
	require.NoError(t, f.store.Save(context.Background(), cred))

	// A failing secure delete must not stop the plain entries from going.
	f.secure.DeleteErr = errors.New("keychain unavailable")
	require.Error(t, f.store.Clear(context.Background()))
	require.Zero(t, f.kv.Len())

	loaded, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestStore_ClearOnEmptyStore(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.store.Clear(context.Background()))
}

func TestStore_AccessPolicyPassthrough(t *testing.T) {
	policy := credential.AccessPolicy{RequireUnlock: true, Accessibility: "whenUnlockedThisDeviceOnly"}
	f := setupTestFixture(t, credential.WithAccessPolicy(policy))

	cred := testCredential(time.Now().Add(time.Hour), time.Now().Add(24*time.Hour))
	require.NoError(t, f.store.Save(context.Background(), cred))

	require.Equal(t, policy, f.secure.Policy("auth.credentials"))
}

func TestCredential_Valid(t *testing.T) {
	now := time.Now()

	cred := credential.Credential{AccessToken: testAccessToken, AccessTokenExpiresAt: now.Add(time.Minute)}
	require.True(t, cred.Valid(now))
	require.False(t, cred.Valid(now.Add(time.Minute)))
	require.False(t, cred.Valid(now.Add(2*time.Minute)))
}

func TestCredential_CanRefresh(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		cred credential.Credential
		want bool
	}{
		{
			name: "refresh token with future expiry",
			cred: credential.Credential{RefreshToken: testRefreshToken, RefreshTokenExpiresAt: now.Add(time.Hour)},
			want: true,
		},
		{
			name: "refresh token with unknown expiry",
			cred: credential.Credential{RefreshToken: testRefreshToken},
			want: true,
		},
		{
			name: "refresh token expired",
			cred: credential.Credential{RefreshToken: testRefreshToken, RefreshTokenExpiresAt: now.Add(-time.Second)},
			want: false,
		},
		{
			name: "no refresh token",
			cred: credential.Credential{AccessToken: testAccessToken},
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.cred.CanRefresh(now))
		})
	}
}
