package handlers

import (
	"context"
	"net/http"
)

// PartnersResponse lists users the caller has messaged before.
type PartnersResponse struct {
	Success  bool     `json:"success"`
	Partners []string `json:"partners"`
}

// PreviousPartners handles GET /chat/previous-partners
func (h *ChatHandler) PreviousPartners(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	partners, err := h.chat.PreviousPartners(ctx, sess.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if partners == nil {
		partners = []string{}
	}
	writeJSON(w, http.StatusOK, PartnersResponse{Success: true, Partners: partners})
}

