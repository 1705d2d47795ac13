package server

import (
	"errors"
	"net/http"

	"github.com/jonathan/pr-reviewer/internal/store"
)

// httpStatus maps store errors onto HTTP status codes.
func httpStatus(err error) int {
	var terminal *store.TerminalStateError
	switch {
	case store.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &terminal):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
