package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oindividum/bankcards-service/internal/auth"
	"github.com/oindividum/bankcards-service/internal/errs"
	"github.com/oindividum/bankcards-service/internal/metrics"
	"github.com/oindividum/bankcards-service/internal/models"
)

var secret = []byte("0123456789abcdef0123456789abcdef")

type usersByName map[string]*models.User

func (u usersByName) FindUserByUsername(_ context.Context, name string) (*models.User, error) {
	if name == "broken" {
		return nil, errors.New("db down")
	}
	return u[name], nil
}

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newRouter(t *testing.T, tokens *auth.TokenCodec, op auth.Operation) *mux.Router {
	t.Helper()
	users := usersByName{
		"alice": {ID: 1, Username: "alice", Role: models.RoleUser},
		"root":  {ID: 2, Username: "root", Role: models.RoleAdmin},
	}
	r := mux.NewRouter()
	r.Use(RequestLogger(quiet()))
	api := r.PathPrefix("/api").Subrouter()
	api.Use(Authenticate(tokens, users, quiet()))
	api.Handle("/thing", Authorize(auth.DefaultPolicy, op)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := auth.PrincipalFrom(r.Context())
		WriteJSON(w, http.StatusOK, p)
	})))
	return r
}

func call(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/thing", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestAuthenticateAndAuthorize(t *testing.T) {
	tokens, err := auth.NewTokenCodec(secret, time.Hour)
	require.NoError(t, err)
	r := newRouter(t, tokens, auth.OpTransfer)

	userToken, _, err := tokens.Issue("alice", []models.Role{models.RoleUser})
	require.NoError(t, err)
	adminToken, _, err := tokens.Issue("root", []models.Role{models.RoleAdmin})
	require.NoError(t, err)
	ghostToken, _, err := tokens.Issue("ghost", []models.Role{models.RoleUser})
	require.NoError(t, err)
	brokenToken, _, err := tokens.Issue("broken", []models.Role{models.RoleUser})
	require.NoError(t, err)
	noRoles, _, err := tokens.Issue("alice", nil)
	require.NoError(t, err)

	t.Run("allowed", func(t *testing.T) {
		rec := call(r, userToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var p auth.Principal
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
		assert.Equal(t, int64(1), p.UserID)
		assert.Equal(t, []models.Role{models.RoleUser}, p.Roles)
		assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	})

	t.Run("missing token", func(t *testing.T) {
		rec := call(r, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "unauthorized", decodeError(t, rec).Error)
	})

	t.Run("garbage token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, call(r, "not.a.jwt").Code)
	})

	t.Run("unknown subject", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, call(r, ghostToken).Code)
	})

	t.Run("store failure", func(t *testing.T) {
		assert.Equal(t, http.StatusInternalServerError, call(r, brokenToken).Code)
	})

	t.Run("role denied", func(t *testing.T) {
		rec := call(r, adminToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "forbidden", decodeError(t, rec).Error)
	})

	t.Run("no roles denied", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, call(r, noRoles).Code)
	})
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	old, err := auth.NewTokenCodec(secret, time.Minute, auth.WithClock(func() time.Time { return issued }))
	require.NoError(t, err)
	token, _, err := old.Issue("alice", []models.Role{models.RoleUser})
	require.NoError(t, err)

	current, err := auth.NewTokenCodec(secret, time.Minute, auth.WithClock(func() time.Time { return issued.Add(time.Hour) }))
	require.NoError(t, err)
	rec := call(newRouter(t, current, auth.OpTransfer), token)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token has expired", decodeError(t, rec).Message)
}

func TestWriteError_HidesInternalCause(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errs.Internal(errors.New("pq: password authentication failed"), "store unavailable"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "internal_error", body.Error)
	assert.Equal(t, "store unavailable", body.Message)

	rec = httptest.NewRecorder()
	WriteError(rec, errors.New("raw failure"))
	assert.Equal(t, "internal error", decodeError(t, rec).Message)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusOf(errs.KindNotFound))
	assert.Equal(t, http.StatusConflict, StatusOf(errs.KindConflict))
	assert.Equal(t, http.StatusBadRequest, StatusOf(errs.KindBadRequest))
	assert.Equal(t, http.StatusUnauthorized, StatusOf(errs.KindUnauthorized))
	assert.Equal(t, http.StatusForbidden, StatusOf(errs.KindForbidden))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errs.KindInternal))
}

func TestRequestLogger_RecoversPanic(t *testing.T) {
	r := mux.NewRouter()
	r.Use(RequestLogger(quiet()))
	r.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))
}

func TestInstrument(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r := mux.NewRouter()
	r.Use(Instrument(m))
	r.HandleFunc("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"1", "2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/items/{id}", "GET", "418")))
}
