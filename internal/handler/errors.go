package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/tasknest-api/internal/service"
	"github.com/BuzzLyutic/tasknest-api/pkg/respond"
)

var (
	errEmptyBody    = errors.New("empty request body")
	errBodyTooLarge = errors.New("request body too large")
)

// decodeJSON reads one JSON value from the body into dst.
func decodeJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	var maxErr *http.MaxBytesError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		return errEmptyBody
	case errors.As(err, &maxErr):
		return errBodyTooLarge
	default:
		return fmt.Errorf("invalid json: %w", err)
	}
}

func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errBodyTooLarge) {
		respond.Error(w, r, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	respond.Error(w, r, http.StatusBadRequest, err.Error())
}

// handleErrors maps service errors to status codes. Anything unknown is
// logged and reported as a bare 500.
func handleErrors(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		respond.Error(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		respond.Error(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, service.ErrNotFound):
		respond.Error(w, r, http.StatusNotFound, "task not found")
	case errors.Is(err, service.ErrEmailTaken):
		respond.Error(w, r, http.StatusConflict, "email already registered")
	default:
		logger.Error("internal error",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		respond.Error(w, r, http.StatusInternalServerError, "internal error")
	}
}
