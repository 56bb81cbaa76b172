package httpapi

import (
	"errors"
	"net/http"
	"time"

	"nemprice.org/internal/audit"
	"nemprice.org/internal/obs"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresIn int64     `json:"expires_in"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	// an empty body is a login without credentials
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeDecodeError(w, r, err)
		return
	}

	if req.Username == "" || req.Password == "" {
		obs.ObserveLogin("credentials_missing")
		writeError(w, r, http.StatusBadRequest, CodeCredentialsMissing, "username and password are required")
		return
	}

	if !a.auth.VerifyCredentials(req.Username, req.Password) {
		obs.ObserveLogin("invalid_credentials")
		_ = audit.LogEvent(r.Context(), audit.EventLoginFailure, map[string]any{
			"username":  req.Username,
			"remote_ip": clientIP(r),
		})
		writeError(w, r, http.StatusUnauthorized, CodeInvalidCredentials, "invalid username or password")
		return
	}

	tok, err := a.auth.IssueToken(req.Username)
	if err != nil {
		obs.ObserveLogin("error")
		internalError(w, r, "issue_token", err)
		return
	}

	obs.ObserveLogin("success")
	_ = audit.LogEvent(r.Context(), audit.EventLoginSuccess, map[string]any{
		"username":   req.Username,
		"remote_ip":  clientIP(r),
		"expires_at": tok.ExpiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     tok.Value,
		TokenType: "Bearer",
		ExpiresIn: tok.ExpiresIn,
		ExpiresAt: tok.ExpiresAt,
	})
}
