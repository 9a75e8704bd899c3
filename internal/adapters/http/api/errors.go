package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/types"
)

// ErrBadRequest marks a request the API could not parse.
var ErrBadRequest = errors.New("bad request")

func badRequest(op string, err error) error {
	return model.WrapKind(op, model.ErrInvalidInput, fmt.Errorf("%w: %v", ErrBadRequest, err))
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch model.KindOf(err) {
	case model.ErrPreconditionFailed, model.ErrDuplicateEntry:
		return http.StatusConflict
	case model.ErrNotFound:
		return http.StatusNotFound
	case model.ErrUnauthorized:
		return http.StatusUnauthorized
	case model.ErrInvalidInput:
		return http.StatusBadRequest
	case model.ErrUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as {"error": message}. Internal errors hide their
// message.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := model.Message(err)
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, types.Failed(msg))
}

// writeResult writes {"success":true} or the error.
func writeResult(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.OK())
}
