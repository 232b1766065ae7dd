// Package httpapi provides the HTTP REST API for the submission engine.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/pranavsaji/autoapply-pro/internal/driver"
	"github.com/pranavsaji/autoapply-pro/internal/store"
	"github.com/pranavsaji/autoapply-pro/internal/types"
)

// ErrInvalidCredentials indicates a failed password check at token issuance.
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return "invalid password"
}

// HTTPStatus returns the appropriate HTTP status code for an error.
func HTTPStatus(err error) int {
	var (
		incomplete  *types.IncompletePlanError
		unsupported *driver.UnsupportedSiteError
		transition  *types.TransitionError
		notFound    *store.NotFoundError
		credentials *ErrInvalidCredentials
	)
	switch {
	case errors.As(err, &incomplete):
		return http.StatusBadRequest
	case errors.As(err, &unsupported):
		return http.StatusUnprocessableEntity
	case errors.As(err, &transition):
		return http.StatusConflict
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &credentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
