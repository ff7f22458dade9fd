package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/norcalbattery/storefront/internal/services"
	"github.com/norcalbattery/storefront/internal/session"
)

const oauthStateCookie = "oauth_state"

// GitHubLogin redirects to GitHub OAuth authorization URL.
func (h *Handlers) GitHubLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if h.authService == nil {
		writeError(ctx, w, http.StatusNotFound, "admin login is not configured")
		return
	}

	loginResult, err := h.authService.StartGitHubLogin()
	if err != nil {
		logger.Error("failed to generate oauth state", "error", err)
		writeError(ctx, w, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    loginResult.State,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.isSecure(),
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, loginResult.AuthorizationURL, http.StatusTemporaryRedirect)
}

// GitHubCallback completes the OAuth flow and opens an admin session for allowlisted users.
func (h *Handlers) GitHubCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if h.authService == nil {
		writeError(ctx, w, http.StatusNotFound, "admin login is not configured")
		return
	}

	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil {
		logger.Warn("oauth state cookie not found", "error", err)
		writeError(ctx, w, http.StatusBadRequest, "invalid state")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.isSecure(),
		SameSite: http.SameSiteLaxMode,
	})

	state := strings.TrimSpace(r.URL.Query().Get("state"))
	if state == "" || state != stateCookie.Value {
		logger.Error("oauth state mismatch")
		writeError(ctx, w, http.StatusBadRequest, "invalid state")
		return
	}

	user, err := h.authService.CompleteGitHubOAuth(ctx, r.URL.Query().Get("code"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAuthInvalidCode):
			writeError(ctx, w, http.StatusBadRequest, "no code provided")
		case errors.Is(err, services.ErrAuthNotAdmin):
			logger.Warn("rejected non-admin github login", "error", err)
			writeError(ctx, w, http.StatusForbidden, "not an admin")
		case errors.Is(err, services.ErrAuthCodeExchange), errors.Is(err, services.ErrAuthGetGitHubUser):
			logger.Error("github oauth failed", "error", err)
			writeError(ctx, w, http.StatusBadGateway, "failed to authenticate with github")
		default:
			logger.Error("failed to complete oauth callback", "error", err)
			writeError(ctx, w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	if _, err := h.sessionManager.CreateSession(ctx, w, &session.Data{
		GitHubUserID: user.ID,
		GitHubLogin:  user.Login,
	}); err != nil {
		logger.Error("failed to create session", "error", err)
		writeError(ctx, w, http.StatusInternalServerError, "internal error")
		return
	}

	logger.Info("admin session created", "username", user.Login)
	http.Redirect(w, r, "/admin/orders", http.StatusSeeOther)
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessionManager.DestroySession(r.Context(), w, r)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
