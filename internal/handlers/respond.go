package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/babynest/backend/internal/middleware"
	"github.com/babynest/backend/internal/services"
	"github.com/babynest/backend/pkg/logger"
	"github.com/babynest/backend/pkg/utils"
)

const (
	requestTimeout = 10 * time.Second
	maxJSONBody    = 1 << 20
)

// MessageResponse is the bare envelope every endpoint shares.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("http: failed to write response", "error", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Success: status < http.StatusBadRequest, Message: message})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Success: false, Message: message})
}

// errorStatus maps service errors to a status and client-facing message.
func errorStatus(err error) (int, string) {
	var verr *utils.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, verr.Message
	}
	switch {
	case errors.Is(err, services.ErrEmailTaken),
		errors.Is(err, services.ErrUsernameTaken),
		errors.Is(err, services.ErrPhoneTaken):
		return http.StatusConflict, err.Error()
	case errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, services.ErrOTPNotVerified),
		errors.Is(err, services.ErrUnauthorized),
		errors.Is(err, services.ErrTokenExpired),
		errors.Is(err, services.ErrTokenRevoked):
		return http.StatusUnauthorized, rootMessage(err)
	case errors.Is(err, services.ErrOAuthFailed):
		return http.StatusUnauthorized, services.ErrOAuthFailed.Error()
	case errors.Is(err, services.ErrInvalidOTP),
		errors.Is(err, services.ErrNoPasswordSet),
		errors.Is(err, services.ErrInvalidJournalID),
		errors.Is(err, services.ErrInvalidRoom),
		errors.Is(err, services.ErrInvalidParticipant):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrJournalNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, services.ErrMailDelivery):
		return http.StatusBadGateway, services.ErrMailDelivery.Error()
	case errors.Is(err, services.ErrOAuthDisabled):
		return http.StatusServiceUnavailable, err.Error()
	}
	return http.StatusInternalServerError, "Internal server error"
}

// rootMessage hides wrapped detail for auth failures.
func rootMessage(err error) string {
	for _, sentinel := range []error{
		services.ErrInvalidCredentials, services.ErrOTPNotVerified,
		services.ErrTokenExpired, services.ErrTokenRevoked, services.ErrUnauthorized,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError || status == http.StatusBadGateway {
		logger.Error("http: request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, message)
}

// decodeJSON reads a size-limited JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "Request body is required")
		default:
			writeError(w, http.StatusBadRequest, "Invalid request body")
		}
		return false
	}
	return true
}

// requireSession returns the session put in place by middleware.RequireAuth.
func requireSession(w http.ResponseWriter, r *http.Request) (*services.Session, bool) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return nil, false
	}
	return sess, true
}
