// Package idptest runs a complete in-process identity provider for tests:
// discovery, an auto-approving authorization endpoint, token issuance with
// PKCE verification and refresh-token rotation, RFC 7009 revocation and
// RP-initiated logout. It signs identity tokens with a throwaway RSA key
// published over JWKS, so provider-side verification works end to end
// without a network.
package idptest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
)

const (
	keyID              = "idptest-key-1"
	accessTokenExpiry  = time.Hour
	refreshTokenExpiry = 30 * 24 * time.Hour
)

// authorizedFlow is one approved authorization awaiting its code exchange.
type authorizedFlow struct {
	code          string
	nonce         string
	codeChallenge string
	redirectURI   string
}

// Server is the scripted identity provider.
type Server struct {
	httpServer *httptest.Server
	privateKey *rsa.PrivateKey
	clientID   string

	lock            sync.Mutex
	flows           map[string]*authorizedFlow // keyed by code
	refreshTokens   map[string]bool            // valid refresh tokens
	refreshCalls    int
	revoked         []string
	endSessionHints []string
	subject         string

	// Failure scripting
	FailRefresh               bool
	FailRevocation            bool
	OmitRefreshTokenOnRefresh bool
	OmitEndSessionEndpoint    bool
}

// NewServer starts the provider for the given client id. Callers own the
// returned server and must Close it.
func NewServer(clientID string) (*Server, error) {
	if clientID == "" {
		return nil, errors.New("[NewServer] client id is required")
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, errors.Wrap(err, "[NewServer] generating signing key")
	}

	s := &Server{
		privateKey:    privateKey,
		clientID:      clientID,
		flows:         make(map[string]*authorizedFlow),
		refreshTokens: make(map[string]bool),
		subject:       "user-" + uuid.New().String(),
	}

	router := mux.NewRouter()
	router.HandleFunc("/.well-known/openid-configuration", s.discoveryHandler).Methods(http.MethodGet)
	router.HandleFunc("/authorize", s.authorizeHandler).Methods(http.MethodGet)
	router.HandleFunc("/token", s.tokenHandler).Methods(http.MethodPost)
	router.HandleFunc("/jwks", s.jwksHandler).Methods(http.MethodGet)
	router.HandleFunc("/revoke", s.revokeHandler).Methods(http.MethodPost)
	router.HandleFunc("/endsession", s.endSessionHandler).Methods(http.MethodGet)

	s.httpServer = httptest.NewServer(router)
	return s, nil
}

// Issuer returns the provider's issuer URL.
func (s *Server) Issuer() string {
	return s.httpServer.URL
}

// Close shuts the provider down.
func (s *Server) Close() {
	s.httpServer.Close()
}

// SeedRefreshToken registers a refresh token as valid, as if issued by an
// earlier login.
func (s *Server) SeedRefreshToken(token string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.refreshTokens[token] = true
}

// RefreshCalls returns how many refresh grants were served or rejected.
func (s *Server) RefreshCalls() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.refreshCalls
}

// Revoked returns every token presented to the revocation endpoint.
func (s *Server) Revoked() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	out := make([]string, len(s.revoked))
	copy(out, s.revoked)
	return out
}

// EndSessionHints returns every id_token_hint presented to the end-session
// endpoint.
func (s *Server) EndSessionHints() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	out := make([]string, len(s.endSessionHints))
	copy(out, s.endSessionHints)
	return out
}

func (s *Server) discoveryHandler(w http.ResponseWriter, _ *http.Request) {
	issuer := s.Issuer()
	metadata := map[string]any{
		"issuer":                                issuer,
		"authorization_endpoint":                issuer + "/authorize",
		"token_endpoint":                        issuer + "/token",
		"jwks_uri":                              issuer + "/jwks",
		"revocation_endpoint":                   issuer + "/revoke",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code", "refresh_token"},
		"code_challenge_methods_supported":      []string{"S256"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"subject_types_supported":               []string{"public"},
	}
	if !s.OmitEndSessionEndpoint {
		metadata["end_session_endpoint"] = issuer + "/endsession"
	}
	writeJSON(w, metadata)
}

// authorizeHandler approves every request immediately, standing in for the
// user consenting in a browser.
func (s *Server) authorizeHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	redirectURI := query.Get("redirect_uri")
	if query.Get("client_id") != s.clientID || redirectURI == "" {
		http.Error(w, "invalid_request", http.StatusBadRequest)
		return
	}

	code := uuid.New().String()
	s.lock.Lock()
	s.flows[code] = &authorizedFlow{
		code:          code,
		nonce:         query.Get("nonce"),
		codeChallenge: query.Get("code_challenge"),
		redirectURI:   redirectURI,
	}
	s.lock.Unlock()

	target, err := url.Parse(redirectURI)
	if err != nil {
		http.Error(w, "invalid_request", http.StatusBadRequest)
		return
	}
	values := target.Query()
	values.Set("code", code)
	values.Set("state", query.Get("state"))
	target.RawQuery = values.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (s *Server) tokenHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid_request", http.StatusBadRequest)
		return
	}

	switch r.FormValue("grant_type") {
	case "authorization_code":
		s.serveCodeExchange(w, r)
	case "refresh_token":
		s.serveRefresh(w, r)
	default:
		writeTokenError(w, http.StatusBadRequest, "unsupported_grant_type")
	}
}

func (s *Server) serveCodeExchange(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	flow, ok := s.flows[r.FormValue("code")]
	if ok {
		delete(s.flows, flow.code)
	}
	s.lock.Unlock()

	if !ok {
		writeTokenError(w, http.StatusBadRequest, "invalid_grant")
		return
	}
	if uri := r.FormValue("redirect_uri"); uri != "" && uri != flow.redirectURI {
		writeTokenError(w, http.StatusBadRequest, "invalid_grant")
		return
	}
	if !checkCodeChallenge(flow.codeChallenge, r.FormValue("code_verifier")) {
		writeTokenError(w, http.StatusBadRequest, "invalid_grant")
		return
	}

	s.issueTokens(w, flow.nonce, false)
}

func (s *Server) serveRefresh(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	s.refreshCalls++
	fail := s.FailRefresh
	valid := s.refreshTokens[r.FormValue("refresh_token")]
	if valid {
		// Rotation: a presented token is single-use.
		delete(s.refreshTokens, r.FormValue("refresh_token"))
	}
	s.lock.Unlock()

	if fail || !valid {
		writeTokenError(w, http.StatusBadRequest, "invalid_grant")
		return
	}

	s.issueTokens(w, "", s.OmitRefreshTokenOnRefresh)
}

func (s *Server) issueTokens(w http.ResponseWriter, nonce string, omitRefreshToken bool) {
	idToken, err := s.mintIDToken(nonce)
	if err != nil {
		http.Error(w, "server_error", http.StatusInternalServerError)
		return
	}

	response := map[string]any{
		"access_token":       "at-" + uuid.New().String(),
		"token_type":         "Bearer",
		"expires_in":         int(accessTokenExpiry.Seconds()),
		"id_token":           idToken,
		"refresh_expires_in": int(refreshTokenExpiry.Seconds()),
	}
	if !omitRefreshToken {
		refreshToken := "rt-" + uuid.New().String()
		s.lock.Lock()
		s.refreshTokens[refreshToken] = true
		s.lock.Unlock()
		response["refresh_token"] = refreshToken
	}
	writeJSON(w, response)
}

func (s *Server) mintIDToken(nonce string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": s.Issuer(),
		"sub": s.subject,
		"aud": s.clientID,
		"iat": now.Unix(),
		"exp": now.Add(accessTokenExpiry).Unix(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = keyID
	return token.SignedString(s.privateKey)
}

func (s *Server) jwksHandler(w http.ResponseWriter, _ *http.Request) {
	publicKey := &s.privateKey.PublicKey
	writeJSON(w, map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"use": "sig",
			"kid": keyID,
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(publicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(bigEndianBytes(publicKey.E)),
		}},
	})
}

func (s *Server) revokeHandler(w http.ResponseWriter, r *http.Request) {
	if s.FailRevocation {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid_request", http.StatusBadRequest)
		return
	}

	token := r.FormValue("token")
	s.lock.Lock()
	s.revoked = append(s.revoked, token)
	delete(s.refreshTokens, token)
	s.lock.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) endSessionHandler(w http.ResponseWriter, r *http.Request) {
	if s.FailRevocation {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	query := r.URL.Query()
	s.lock.Lock()
	s.endSessionHints = append(s.endSessionHints, query.Get("id_token_hint"))
	s.lock.Unlock()

	if target := query.Get("post_logout_redirect_uri"); target != "" {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// checkCodeChallenge verifies the S256 challenge/verifier pair. An empty
// challenge means the flow ran without PKCE.
func checkCodeChallenge(storedChallenge, verifier string) bool {
	if storedChallenge == "" {
		return verifier == ""
	}
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:]) == storedChallenge
}

func bigEndianBytes(n int) []byte {
	out := make([]byte, 0, 4)
	for n > 0 {
		out = append([]byte{byte(n & 0xff)}, out...)
		n >>= 8
	}
	return out
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func writeTokenError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
