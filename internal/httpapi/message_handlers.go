package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"vyhan.org/internal/notify"
)

func (a *API) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	messages, err := a.inbox.List(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, "Messages", messages)
}

// handleMessageScoped dispatches /api/messages/:id/read.
func (a *API) handleMessageScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/messages/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "read" {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	if err := a.inbox.MarkRead(r.Context(), identity.UserID, parts[0]); err != nil {
		if errors.Is(err, notify.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Message not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, "Message read", nil)
}
