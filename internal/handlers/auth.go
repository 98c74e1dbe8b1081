package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/babynest/backend/internal/models"
	"github.com/babynest/backend/internal/services"
	"github.com/babynest/backend/pkg/logger"
)

const (
	forgotPasswordMessage = "If email exists, OTP has been sent"
	oauthStateCookie      = "oauth_state"
	mailTimeout           = 30 * time.Second
)

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Success     bool              `json:"success"`
	Message     string            `json:"message"`
	AccessToken string            `json:"access_token"`
	User        models.PublicUser `json:"user"`
}

type AuthHandler struct {
	auth          *services.AuthService
	google        *services.GoogleOAuth
	frontendURL   string
	secureCookies bool
}

// NewAuthHandler wires the auth endpoints. google may be nil when Google
// sign-in is not configured.
func NewAuthHandler(auth *services.AuthService, google *services.GoogleOAuth, frontendURL string, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		auth:          auth,
		google:        google,
		frontendURL:   strings.TrimRight(frontendURL, "/"),
		secureCookies: secureCookies,
	}
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := h.auth.Register(ctx, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, AuthResponse{
		Success:     true,
		Message:     "User registered successfully",
		AccessToken: res.AccessToken,
		User:        res.User,
	})
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginInput
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := h.auth.Login(ctx, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{
		Success:     true,
		Message:     "Login successful",
		AccessToken: res.AccessToken,
		User:        res.User,
	})
}

// ForgotPassword handles POST /auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req services.ForgotPasswordInput
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), mailTimeout)
	defer cancel()

	if err := h.auth.ForgotPassword(ctx, req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, forgotPasswordMessage)
}

// VerifyOTP handles POST /auth/verify-otp
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req services.VerifyOTPInput
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.auth.VerifyOTP(r.Context(), req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "OTP verified successfully")
}

// ResetPassword handles POST /auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req services.ResetPasswordInput
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.auth.ResetPassword(r.Context(), req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Password reset successfully")
}

// ChangePassword handles POST /auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req services.ChangePasswordInput
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.auth.ChangePassword(r.Context(), sess, req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Password changed successfully")
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	if err := h.auth.Logout(r.Context(), sess); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Logged out successfully")
}

// GoogleLogin handles GET /auth/google
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		writeServiceError(w, r, services.ErrOAuthDisabled)
		return
	}
	consentURL, state, err := h.google.AuthCodeURL()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth/google",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, consentURL, http.StatusFound)
}

// GoogleCallback handles GET /auth/google/callback and always redirects to
// the frontend, with either a token or an error code.
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		writeServiceError(w, r, services.ErrOAuthDisabled)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Path: "/auth/google", MaxAge: -1})

	q := r.URL.Query()
	if q.Get("error") != "" {
		h.redirectFrontend(w, r, url.Values{"error": {"access_denied"}})
		return
	}
	state := q.Get("state")
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != state {
		logger.Warn("oauth: state mismatch")
		h.redirectFrontend(w, r, url.Values{"error": {"oauth_failed"}})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	profile, err := h.google.Exchange(ctx, state, q.Get("code"))
	if err != nil {
		logger.Warn("oauth: exchange failed", "error", err)
		h.redirectFrontend(w, r, url.Values{"error": {"oauth_failed"}})
		return
	}
	res, err := h.auth.LoginWithGoogle(ctx, profile)
	if err != nil {
		logger.Warn("oauth: sign-in failed", "error", err)
		h.redirectFrontend(w, r, url.Values{"error": {"oauth_failed"}})
		return
	}
	h.redirectFrontend(w, r, url.Values{"token": {res.AccessToken}})
}

func (h *AuthHandler) redirectFrontend(w http.ResponseWriter, r *http.Request, params url.Values) {
	http.Redirect(w, r, h.frontendURL+"/auth/callback?"+params.Encode(), http.StatusFound)
}
