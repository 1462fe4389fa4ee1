package oidcprovider_test

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/idp"
	"github.com/jrsteele09/go-auth-client/idp/idptest"
	"github.com/jrsteele09/go-auth-client/idp/oidcprovider"
	interrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/stretchr/testify/require"
)

const testClientID = "go-auth-client"

type testFixture struct {
	idp      *idptest.Server
	provider *oidcprovider.Provider
	config   idp.Config
}

// browserOpener follows the authorization URL the way a browser would:
// fetches it and follows the provider's redirect back to the loopback
// listener.
func browserOpener(t *testing.T) oidcprovider.URLOpener {
	return func(authURL string) error {
		go func() {
			resp, err := http.Get(authURL)
			if err != nil {
				t.Logf("browser fetch failed: %v", err)
				return
			}
			resp.Body.Close()
		}()
		return nil
	}
}

func setupTestFixture(t *testing.T, opener oidcprovider.URLOpener) *testFixture {
	t.Helper()

	server, err := idptest.NewServer(testClientID)
	require.NoError(t, err)
	t.Cleanup(server.Close)

	if opener == nil {
		opener = browserOpener(t)
	}
	provider, err := oidcprovider.NewProvider(opener)
	require.NoError(t, err)

	return &testFixture{
		idp:      server,
		provider: provider,
		config: idp.Config{
			Issuer:      server.Issuer(),
			ClientID:    testClientID,
			RedirectURI: fmt.Sprintf("http://127.0.0.1:%d/callback", freePort(t)),
			Scopes:      []string{"openid", "profile", "offline_access"},
			UsePKCE:     true,
			AdditionalParameters: map[string]string{
				"device_id": "device-1",
			},
		},
	}
}

// freePort reserves a loopback port for the redirect listener.
func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}

func TestNewProvider_RequiresOpener(t *testing.T) {
	_, err := oidcprovider.NewProvider(nil)
	require.Error(t, err)
}

func TestAuthorize_FullFlow(t *testing.T) {
	f := setupTestFixture(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := f.provider.Authorize(ctx, f.config)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.AccessToken)
	require.NotEmpty(t, result.IdentityToken)
	require.NotEmpty(t, result.RefreshToken)
	require.True(t, result.AccessTokenExpiresAt.After(time.Now()))
	require.Equal(t, 30*24*time.Hour, result.RefreshTokenLifetime)
}

func TestAuthorize_CancelledByUser(t *testing.T) {
	// An opener that never produces a redirect: the user closed the browser.
	f := setupTestFixture(t, func(string) error { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := f.provider.Authorize(ctx, f.config)
	require.Error(t, err)
	require.ErrorIs(t, err, interrors.ErrLoginCancelled)
}

func TestAuthorize_OpenerFailure(t *testing.T) {
	f := setupTestFixture(t, func(string) error { return fmt.Errorf("no browser available") })

	_, err := f.provider.Authorize(context.Background(), f.config)
	require.Error(t, err)
}

func TestRefresh_RotatesTokens(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.idp.SeedRefreshToken("rt-seeded")

	result, err := f.provider.Refresh(context.Background(), f.config, "rt-seeded")
	require.NoError(t, err)
	require.NotEmpty(t, result.AccessToken)
	require.NotEmpty(t, result.RefreshToken)
	require.NotEqual(t, "rt-seeded", result.RefreshToken)
	require.True(t, result.AccessTokenExpiresAt.After(time.Now()))
	require.Equal(t, 30*24*time.Hour, result.RefreshTokenLifetime)
	require.Equal(t, 1, f.idp.RefreshCalls())
}

func TestRefresh_InvalidGrant(t *testing.T) {
	f := setupTestFixture(t, nil)

	_, err := f.provider.Refresh(context.Background(), f.config, "rt-unknown")
	require.Error(t, err)
}

func TestRefresh_RequiresToken(t *testing.T) {
	f := setupTestFixture(t, nil)

	_, err := f.provider.Refresh(context.Background(), f.config, "")
	require.Error(t, err)
	require.Zero(t, f.idp.RefreshCalls())
}

func TestRefresh_ProviderWithoutRotationKeepsToken(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.idp.SeedRefreshToken("rt-seeded")
	f.idp.OmitRefreshTokenOnRefresh = true

	result, err := f.provider.Refresh(context.Background(), f.config, "rt-seeded")
	require.NoError(t, err)
	// x/oauth2 carries the presented token forward when the response omits
	// a replacement.
	require.Equal(t, "rt-seeded", result.RefreshToken)
}

func TestRevoke_PrefersEndSession(t *testing.T) {
	f := setupTestFixture(t, nil)

	err := f.provider.Revoke(context.Background(), f.config, idp.Revocation{Token: "id-token-1"})
	require.NoError(t, err)
	require.Equal(t, []string{"id-token-1"}, f.idp.EndSessionHints())
	require.Empty(t, f.idp.Revoked())
}

func TestRevoke_FallsBackToRevocationEndpoint(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.idp.OmitEndSessionEndpoint = true

	err := f.provider.Revoke(context.Background(), f.config, idp.Revocation{Token: "rt-1"})
	require.NoError(t, err)
	require.Equal(t, []string{"rt-1"}, f.idp.Revoked())
	require.Empty(t, f.idp.EndSessionHints())
}

func TestRevoke_ProviderFailure(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.idp.FailRevocation = true

	err := f.provider.Revoke(context.Background(), f.config, idp.Revocation{Token: "id-token-1"})
	require.Error(t, err)
}

func TestRevoke_RequiresToken(t *testing.T) {
	f := setupTestFixture(t, nil)

	err := f.provider.Revoke(context.Background(), f.config, idp.Revocation{})
	require.Error(t, err)
}
