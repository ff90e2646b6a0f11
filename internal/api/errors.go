package api

import (
	"errors"
	"net/http"

	"github.com/nextlevelbuilder/jobrunner/internal/apierr"
)

// writeAPIErr maps a sentinel apierr kind to the appropriate HTTP status and
// writes a JSON error body.
func writeAPIErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apierr.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, apierr.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apierr.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, apierr.ErrAlreadyRunning), errors.Is(err, apierr.ErrAlreadyTerminal):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, apierr.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
