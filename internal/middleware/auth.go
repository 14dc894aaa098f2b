package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/oindividum/bankcards-service/internal/auth"
	"github.com/oindividum/bankcards-service/internal/errs"
	"github.com/oindividum/bankcards-service/internal/models"
)

// UserFinder resolves a token subject to a stored user.
type UserFinder interface {
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
}

const bearerPrefix = "Bearer "

// Authenticate requires a valid bearer token whose subject is a known user
// and stores the resulting auth.Principal in the request context.
func Authenticate(tokens *auth.TokenCodec, users UserFinder, logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok || token == "" {
				WriteError(w, errs.Unauthorized("missing bearer token"))
				return
			}

			subject, err := tokens.ExtractSubject(token)
			if err != nil {
				logger.WithField("request_id", RequestIDFrom(r.Context())).Debugf("Rejected token: %v", err)
				WriteError(w, err)
				return
			}

			user, err := users.FindUserByUsername(r.Context(), subject)
			if err != nil {
				logger.WithError(err).Error("Failed to load token subject")
				WriteError(w, errs.Internal(err, "store unavailable"))
				return
			}
			if user == nil || !tokens.Validate(token, user.Username) {
				WriteError(w, errs.Unauthorized("invalid token"))
				return
			}

			roles, err := tokens.ExtractRoles(token)
			if err != nil {
				WriteError(w, err)
				return
			}

			p := auth.Principal{UserID: user.ID, Username: user.Username, Roles: roles}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

// Authorize lets the request through only when policy allows op for the
// principal's roles. It must run after Authenticate.
func Authorize(policy auth.Policy, op auth.Operation) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.PrincipalFrom(r.Context())
			if !ok {
				WriteError(w, errs.Unauthorized("authentication required"))
				return
			}
			if !policy.Allows(op, p.Roles) {
				WriteError(w, errs.Forbidden("access denied"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
