// Package handler exposes the services over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/oindividum/bankcards-service/internal/auth"
	"github.com/oindividum/bankcards-service/internal/errs"
	"github.com/oindividum/bankcards-service/internal/middleware"
	"github.com/oindividum/bankcards-service/internal/models"
	"github.com/oindividum/bankcards-service/internal/service"
)

// Handler holds the services behind the HTTP routes.
type Handler struct {
	auth      *service.AuthService
	users     *service.UserService
	cards     *service.CardService
	transfers *service.TransferService
	ping      func(ctx context.Context) error
	log       *logrus.Logger
	now       func() time.Time
}

// NewHandler creates a handler; ping backs /healthz and may be nil.
func NewHandler(a *service.AuthService, u *service.UserService, c *service.CardService, t *service.TransferService, ping func(context.Context) error, log *logrus.Logger) *Handler {
	return &Handler{auth: a, users: u, cards: c, transfers: t, ping: ping, log: log, now: time.Now}
}

// Health reports whether the store is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		if err := h.ping(r.Context()); err != nil {
			h.log.WithError(err).Warn("Health check failed")
			middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.BadRequest("malformed request body")
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.BadRequest("invalid %s", name)
	}
	return id, nil
}

func pageRequest(r *http.Request) (models.PageRequest, error) {
	var p models.PageRequest
	q := r.URL.Query()
	if s := q.Get("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 || n > models.MaxPage {
			return p, errs.BadRequest("invalid page")
		}
		p.Page = n
	}
	if s := q.Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return p, errs.BadRequest("invalid size")
		}
		p.Size = n
	}
	return p.Normalize(), nil
}

func parseDate(s, field string) (time.Time, error) {
	d, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return time.Time{}, errs.BadRequest("%s must be formatted as YYYY-MM-DD", field)
	}
	return d, nil
}

// principal is set by middleware.Authenticate on every protected route.
func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}
