package users

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-admin/internal/platform/httpx"
)

type listResponse struct {
	Users  []User `json:"users"`
	Total  int    `json:"total"`
	Admins int    `json:"admins"`
	Busy   bool   `json:"busy"`
}

// MountAPI registers the read-only JSON endpoints.
func (h *Handler) MountAPI(r chi.Router) {
	r.Get("/", h.apiListUsers)
	r.Get("/{userID}", h.apiGetUser)
}

func (h *Handler) apiListUsers(w http.ResponseWriter, r *http.Request) {
	stats := h.store.Stats()
	httpx.JSON(w, http.StatusOK, listResponse{
		Users:  h.store.Search(strings.TrimSpace(r.URL.Query().Get("q"))),
		Total:  stats.Total,
		Admins: stats.Admins,
		Busy:   stats.Busy,
	})
}

func (h *Handler) apiGetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	user, ok := h.store.User(id)
	if !ok {
		httpx.RespondError(w, fmt.Errorf("user %q: %w", id, httpx.ErrNotFound))
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}
