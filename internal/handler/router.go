package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/oindividum/bankcards-service/internal/auth"
	"github.com/oindividum/bankcards-service/internal/metrics"
	"github.com/oindividum/bankcards-service/internal/middleware"
)

// RouterDeps carries what NewRouter wires around the handler.
type RouterDeps struct {
	Tokens   *auth.TokenCodec
	Users    middleware.UserFinder
	Policy   auth.Policy
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Logger   *logrus.Logger
}

// NewRouter registers every route of the service.
func NewRouter(h *Handler, d RouterDeps) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(d.Logger), middleware.Instrument(d.Metrics))

	// Public routes
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", h.Login).Methods(http.MethodPost)

	// Protected routes
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Authenticate(d.Tokens, d.Users, d.Logger))
	guard := func(op auth.Operation, fn http.HandlerFunc) http.Handler {
		return middleware.Authorize(d.Policy, op)(fn)
	}

	api.Handle("/users/me", guard(auth.OpViewProfile, h.Me)).Methods(http.MethodGet)

	api.Handle("/admin/users", guard(auth.OpManageUsers, h.ListUsers)).Methods(http.MethodGet)
	api.Handle("/admin/users/{userId:[0-9]+}", guard(auth.OpManageUsers, h.GetUser)).Methods(http.MethodGet)
	api.Handle("/admin/users/{userId:[0-9]+}", guard(auth.OpManageUsers, h.DeleteUser)).Methods(http.MethodDelete)
	api.Handle("/admin/users/{userId:[0-9]+}/role", guard(auth.OpManageUsers, h.UpdateUserRole)).Methods(http.MethodPatch)

	api.Handle("/cards/admin", guard(auth.OpManageCards, h.ListCards)).Methods(http.MethodGet)
	api.Handle("/cards/admin/{userId:[0-9]+}", guard(auth.OpManageCards, h.CreateCard)).Methods(http.MethodPost)
	api.Handle("/cards/admin/{cardId:[0-9]+}", guard(auth.OpManageCards, h.GetCard)).Methods(http.MethodGet)
	api.Handle("/cards/admin/{cardId:[0-9]+}", guard(auth.OpManageCards, h.UpdateCard)).Methods(http.MethodPut)
	api.Handle("/cards/admin/{cardId:[0-9]+}", guard(auth.OpManageCards, h.DeleteCard)).Methods(http.MethodDelete)
	api.Handle("/cards/admin/{cardId:[0-9]+}/block", guard(auth.OpManageCards, h.BlockCard)).Methods(http.MethodPatch)
	api.Handle("/cards/admin/{cardId:[0-9]+}/activate", guard(auth.OpManageCards, h.ActivateCard)).Methods(http.MethodPatch)

	api.Handle("/cards/my", guard(auth.OpViewOwnCards, h.ListMyCards)).Methods(http.MethodGet)
	api.Handle("/cards/my/statement", guard(auth.OpExportStatement, h.Statement)).Methods(http.MethodGet)
	api.Handle("/cards/my/{cardId:[0-9]+}", guard(auth.OpViewOwnCards, h.GetMyCard)).Methods(http.MethodGet)
	api.Handle("/cards/my/{cardId:[0-9]+}/request-block", guard(auth.OpRequestBlock, h.RequestBlock)).Methods(http.MethodPatch)
	api.Handle("/cards/transfer", guard(auth.OpTransfer, h.Transfer)).Methods(http.MethodPost)

	return r
}
