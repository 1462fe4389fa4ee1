package config

import "strings"

type IdPConfig interface {
	GetIssuer() string
	GetClientID() string
	GetRedirectURI() string
	GetScopes() []string
	GetPostLogoutRedirectURI() string
}

type IdP struct{}

var _ IdPConfig = IdP{}

func (IdP) GetIssuer() string {
	return GetEnv("IDP_ISSUER", "http://localhost:8080")
}

func (IdP) GetClientID() string {
	return GetEnv("IDP_CLIENT_ID", "go-auth-client")
}

func (IdP) GetRedirectURI() string {
	return GetEnv("IDP_REDIRECT_URI", "http://127.0.0.1:8972/callback")
}

func (IdP) GetScopes() []string {
	return strings.Fields(GetEnv("IDP_SCOPES", "openid profile offline_access"))
}

func (IdP) GetPostLogoutRedirectURI() string {
	return GetEnv("IDP_POST_LOGOUT_REDIRECT_URI", "")
}
