package oidcprovider

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jrsteele09/go-auth-client/idp"
	interrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// callbackResult is what the loopback listener hands back from the redirect.
type callbackResult struct {
	code  string
	state string
	err   error
}

// Authorize runs the interactive authorization-code flow: it starts a
// loopback listener on the redirect URI, opens the authorization URL, waits
// for the provider to redirect back with a code, exchanges the code (with
// the PKCE verifier when enabled), and verifies the returned identity token
// against the request nonce. Cancelling the context abandons the flow.
func (p *Provider) Authorize(ctx context.Context, cfg idp.Config) (*idp.Result, error) {
	provider, err := p.discover(ctx, cfg.Issuer)
	if err != nil {
		return nil, errors.Wrap(err, "[Authorize] discovery")
	}
	oc := oauthConfig(cfg, provider)

	state := uuid.New().String()
	nonce := uuid.New().String()
	verifier := oauth2.GenerateVerifier()

	authOptions := []oauth2.AuthCodeOption{
		oidc.Nonce(nonce),
	}
	if cfg.UsePKCE {
		authOptions = append(authOptions, oauth2.S256ChallengeOption(verifier))
	}
	for name, value := range cfg.AdditionalParameters {
		authOptions = append(authOptions, oauth2.SetAuthURLParam(name, value))
	}

	callback, shutdown, err := p.listenForCallback(cfg.RedirectURI)
	if err != nil {
		return nil, errors.Wrap(err, "[Authorize] starting redirect listener")
	}
	defer shutdown()

	if err := p.opener(oc.AuthCodeURL(state, authOptions...)); err != nil {
		return nil, errors.Wrap(err, "[Authorize] opening authorization url")
	}

	var received callbackResult
	select {
	case received = <-callback:
	case <-ctx.Done():
		return nil, interrors.Wrapf(interrors.ErrLoginCancelled, "[Authorize] %v", ctx.Err())
	}
	if received.err != nil {
		return nil, errors.Wrap(received.err, "[Authorize] authorization response")
	}
	if received.state != state {
		return nil, interrors.Wrapf(interrors.ErrStateMismatch, "[Authorize] state check")
	}

	exchangeOptions := []oauth2.AuthCodeOption{}
	if cfg.UsePKCE {
		exchangeOptions = append(exchangeOptions, oauth2.VerifierOption(verifier))
	}
	token, err := oc.Exchange(p.clientContext(ctx), received.code, exchangeOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "[Authorize] code exchange")
	}

	out := result(token)
	if out.IdentityToken != "" {
		if err := p.verifyIdentityToken(ctx, provider, cfg.ClientID, out.IdentityToken, nonce); err != nil {
			return nil, errors.Wrap(err, "[Authorize] identity token verification")
		}
	}

	p.logger.Info().
		Time("accessTokenExpiresAt", out.AccessTokenExpiresAt).
		Bool("hasRefreshToken", out.RefreshToken != "").
		Msg("authorization flow complete")
	return out, nil
}

// verifyIdentityToken checks the token's signature and claims through the
// provider's JWKS, then matches the nonce against the one this flow sent.
func (p *Provider) verifyIdentityToken(ctx context.Context, provider *oidc.Provider, clientID, rawToken, nonce string) error {
	idToken, err := provider.Verifier(&oidc.Config{ClientID: clientID}).
		Verify(oidc.ClientContext(ctx, p.httpClient), rawToken)
	if err != nil {
		return errors.Wrap(err, "[verifyIdentityToken] verifier")
	}

	var claims struct {
		Nonce string `json:"nonce"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return errors.Wrap(err, "[verifyIdentityToken] extracting claims")
	}
	if claims.Nonce != nonce {
		return interrors.Wrapf(interrors.ErrNonceMismatch, "[verifyIdentityToken] nonce check")
	}
	return nil
}

// listenForCallback serves the redirect URI until one authorization response
// arrives. The returned channel delivers exactly one result; shutdown stops
// the listener.
func (p *Provider) listenForCallback(redirectURI string) (<-chan callbackResult, func(), error) {
	target, err := url.Parse(redirectURI)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[listenForCallback] parsing redirect uri")
	}
	if target.Scheme != "http" {
		return nil, nil, errors.Errorf("[listenForCallback] loopback redirect requires http, got %q", target.Scheme)
	}

	listener, err := net.Listen("tcp", target.Host)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[listenForCallback] binding loopback listener")
	}

	callback := make(chan callbackResult, 1)
	router := mux.NewRouter()
	router.HandleFunc(target.Path, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if errorParam := query.Get("error"); errorParam != "" {
			callback <- callbackResult{err: errors.Errorf("provider returned %q: %s", errorParam, query.Get("error_description"))}
			http.Error(w, "Authorization failed. You can close this window.", http.StatusBadRequest)
			return
		}

		select {
		case callback <- callbackResult{code: query.Get("code"), state: query.Get("state")}:
		default:
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Login complete. You can close this window."))
	}).Methods(http.MethodGet)

	server := &http.Server{Handler: router}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			p.logger.Warn().Err(err).Msg("redirect listener stopped")
		}
	}()

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
	return callback, shutdown, nil
}
