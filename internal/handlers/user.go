package handlers

import (
	"net/http"

	"github.com/babynest/backend/internal/models"
	"github.com/babynest/backend/internal/services"
)

// ProfileResponse wraps the signed-in user's document.
type ProfileResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	User    *models.User `json:"user"`
}

type OnboardingResponse struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message,omitempty"`
	Onboarding models.Onboarding `json:"onboarding"`
}

type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// Profile handles GET /auth/profile and GET /user/profile
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	user, err := h.users.Profile(r.Context(), sess)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{Success: true, User: user})
}

// UpdateProfile handles POST /user/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req services.UpdateProfileInput
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.users.UpdateProfile(r.Context(), sess, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{Success: true, Message: "Profile updated", User: user})
}

// Onboarding handles GET /user/onboarding
func (h *UserHandler) Onboarding(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	state, err := h.users.Onboarding(r.Context(), sess)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OnboardingResponse{Success: true, Onboarding: state})
}

// UpdateOnboarding handles POST /user/onboarding
func (h *UserHandler) UpdateOnboarding(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req services.OnboardingInput
	if !decodeJSON(w, r, &req) {
		return
	}
	state, err := h.users.UpdateOnboarding(r.Context(), sess, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OnboardingResponse{Success: true, Message: "Onboarding saved", Onboarding: state})
}
