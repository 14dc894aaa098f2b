package handler

import (
	"net/http"

	"github.com/oindividum/bankcards-service/internal/errs"
	"github.com/oindividum/bankcards-service/internal/middleware"
)

// Me returns the caller's profile.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Me(r.Context(), principal(r).UserID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, users)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userId")
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userId")
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := h.users.Delete(r.Context(), id); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateUserRole sets the role given in the newRole query parameter.
func (h *Handler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userId")
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	role := r.URL.Query().Get("newRole")
	if role == "" {
		middleware.WriteError(w, errs.BadRequest("newRole is required"))
		return
	}
	user, err := h.users.UpdateRole(r.Context(), id, role)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, user)
}
