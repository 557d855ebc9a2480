package spotify

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// ErrMissingCredentials is returned when client credentials are not configured.
var ErrMissingCredentials = errors.New("missing spotify credentials")

// AuthConfig represents OAuth client configuration.
type AuthConfig struct {
	ClientID     string
	ClientSecret string
	// TokenURL overrides the accounts service token endpoint.
	TokenURL   string
	HTTPClient *http.Client
}

// Token is a user token issued by the accounts service.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"-"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Authenticator exchanges PKCE authorization codes and refresh tokens for
// user tokens.
type Authenticator struct {
	config     oauth2.Config
	httpClient *http.Client
}

// NewAuthenticator creates a new authenticator.
func NewAuthenticator(cfg AuthConfig) *Authenticator {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}
	return &Authenticator{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   spotifyauth.AuthURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
			Scopes: []string{
				spotifyauth.ScopePlaylistModifyPublic,
				spotifyauth.ScopePlaylistModifyPrivate,
				spotifyauth.ScopePlaylistReadPrivate,
			},
		},
		httpClient: cfg.HTTPClient,
	}
}

// Exchange trades an authorization code and its PKCE verifier for a token.
func (a *Authenticator) Exchange(ctx context.Context, code, redirectURI, verifier string) (*Token, error) {
	if a.config.ClientID == "" || a.config.ClientSecret == "" {
		return nil, ErrMissingCredentials
	}
	if a.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	}

	tok, err := a.config.Exchange(ctx, code,
		oauth2.SetAuthURLParam("redirect_uri", redirectURI),
		oauth2.VerifierOption(verifier),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to exchange authorization code")
	}
	return toToken(tok), nil
}

// Refresh trades a refresh token for a new access token. The returned token
// keeps the old refresh token when the server does not rotate it.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if a.config.ClientID == "" || a.config.ClientSecret == "" {
		return nil, ErrMissingCredentials
	}
	if refreshToken == "" {
		return nil, errors.New("refresh token is required")
	}
	if a.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	}

	tok, err := a.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, errors.Wrap(err, "failed to refresh token")
	}
	return toToken(tok), nil
}

func toToken(tok *oauth2.Token) *Token {
	t := &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if v, ok := tok.Extra("expires_in").(float64); ok {
		t.ExpiresIn = int64(v)
	} else if !tok.Expiry.IsZero() {
		t.ExpiresIn = int64(time.Until(tok.Expiry).Seconds())
	}
	return t
}
