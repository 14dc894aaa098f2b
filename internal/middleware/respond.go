// Package middleware holds the HTTP middleware chain and the JSON response
// helpers shared with the handlers.
package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/oindividum/bankcards-service/internal/errs"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(k errs.Kind) int {
	switch k {
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindBadRequest:
		return http.StatusBadRequest
	case errs.KindUnauthorized:
		return http.StatusUnauthorized
	case errs.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError writes err as an ErrorBody. Internal causes are never exposed.
func WriteError(w http.ResponseWriter, err error) {
	k := errs.KindOf(err)
	WriteJSON(w, StatusOf(k), ErrorBody{Error: k.String(), Message: errs.Message(err)})
}
