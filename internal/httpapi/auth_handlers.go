package httpapi

import (
	"errors"
	"net/http"
	"time"

	"vyhan.org/internal/audit"
	"vyhan.org/internal/auth"
)

type loginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	LoginType string `json:"login_type"`
}

type refreshRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type tokenPairResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func pairResponse(pair auth.TokenPair) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:      pair.Access,
		RefreshToken:     pair.Refresh,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pair, err := a.auth.Login(r.Context(), req.Username, req.Password, req.LoginType)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"username":   req.Username,
		"login_type": req.LoginType,
	})
	writeJSON(w, http.StatusOK, "Login successful", pairResponse(pair))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.AccessToken == "" || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "access_token and refresh_token are required")
		return
	}

	pair, err := a.auth.Refresh(r.Context(), req.AccessToken, req.RefreshToken)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.refresh", nil)
	writeJSON(w, http.StatusOK, "Token refreshed", pairResponse(pair))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	if err := a.auth.Logout(r.Context(), identity); err != nil {
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeJSON(w, http.StatusOK, "Logged out", nil)
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, "Profile", map[string]any{
		"id":          identity.UserID,
		"login_type":  identity.LoginType,
		"permissions": identity.Permissions.Strings(),
	})
}
