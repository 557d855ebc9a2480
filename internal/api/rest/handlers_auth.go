package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/osa030/wejay/internal/app/verifier"
	"github.com/osa030/wejay/internal/infra/spotify"
)

const (
	accessTokenCookie  = "spotify_access_token"
	refreshTokenCookie = "spotify_refresh_token"
	tokenExpiryCookie  = "spotify_token_expiry"

	refreshTokenMaxAge = 90 * 24 * time.Hour
	defaultExpiresIn   = 3600
)

type storeVerifierRequest struct {
	Verifier string `json:"verifier" validate:"required,min=43,max=128"`
	State    string `json:"state" validate:"required,min=32,max=128"`
}

type exchangeTokenRequest struct {
	Code        string `json:"code" validate:"required"`
	RedirectURI string `json:"redirect_uri" validate:"required,url"`
	State       string `json:"state" validate:"required,min=32,max=128"`
}

func (s *Server) handleStoreVerifier(w http.ResponseWriter, r *http.Request) {
	var req storeVerifierRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid verifier or state")
		return
	}
	s.verifiers.Put(req.State, req.Verifier)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleExchangeToken(w http.ResponseWriter, r *http.Request) {
	var req exchangeTokenRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid token exchange request")
		return
	}

	codeVerifier, err := s.verifiers.Claim(req.State)
	switch {
	case errors.Is(err, verifier.ErrAlreadyUsed):
		writeJSON(w, http.StatusOK, map[string]string{"message": "Already processed"})
		return
	case errors.Is(err, verifier.ErrExpired):
		writeError(w, http.StatusGone, "Authentication expired")
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, "Verifier not found - please try logging in again")
		return
	}

	tok, err := s.auth.Exchange(r.Context(), req.Code, req.RedirectURI, codeVerifier)
	if err != nil {
		s.writeTokenError(w, err, "Token exchange failed")
		return
	}
	s.setTokenCookies(w, tok)
	zlog.Info().Msgf("token exchanged: expires_in=%d refresh=%t", tok.ExpiresIn, tok.RefreshToken != "")
	writeJSON(w, http.StatusOK, tok)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(accessTokenCookie)
	if err != nil || c.Value == "" {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": c.Value})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(refreshTokenCookie)
	if err != nil || c.Value == "" {
		writeError(w, http.StatusUnauthorized, "No refresh token")
		return
	}

	tok, err := s.auth.Refresh(r.Context(), c.Value)
	if err != nil {
		s.writeTokenError(w, err, "Failed to refresh token")
		return
	}
	if tok.RefreshToken == c.Value {
		tok.RefreshToken = ""
	}
	s.setTokenCookies(w, tok)
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": tok.AccessToken,
		"expires_in":   tok.ExpiresIn,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	for _, name := range []string{accessTokenCookie, refreshTokenCookie, tokenExpiryCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: name != tokenExpiryCookie,
			Secure:   s.config.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// writeTokenError maps an accounts service failure to a response. Rejections
// keep the accounts service status.
func (s *Server) writeTokenError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, spotify.ErrMissingCredentials) {
		zlog.Error().Msg("spotify credentials are not configured")
		writeError(w, http.StatusInternalServerError, "Missing Spotify credentials")
		return
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr.Response != nil {
		zlog.Warn().Msgf("accounts service rejected token request: status=%d code=%s", rerr.Response.StatusCode, rerr.ErrorCode)
		writeError(w, rerr.Response.StatusCode, msg)
		return
	}

	zlog.Error().Msgf("token request failed: error=%v", err)
	writeError(w, http.StatusInternalServerError, msg)
}

// setTokenCookies stores the token in cookies. The expiry cookie is readable
// by scripts so clients can refresh ahead of time.
func (s *Server) setTokenCookies(w http.ResponseWriter, tok *spotify.Token) {
	expiresIn := tok.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}
	now := s.now()
	expiry := now.Add(time.Duration(expiresIn) * time.Second)

	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    tok.AccessToken,
		Path:     "/",
		Expires:  expiry,
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     tokenExpiryCookie,
		Value:    strconv.FormatInt(expiry.UnixMilli(), 10),
		Path:     "/",
		Expires:  expiry,
		Secure:   s.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	if tok.RefreshToken != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     refreshTokenCookie,
			Value:    tok.RefreshToken,
			Path:     "/",
			Expires:  now.Add(refreshTokenMaxAge),
			HttpOnly: true,
			Secure:   s.config.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
