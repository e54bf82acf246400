package api

import (
	"errors"
	"net/http"

	"github.com/pingup/pingup/internal/core"
)

func httpStatusForDomainError(err error) (int, bool) {
	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr == nil {
		return 0, false
	}

	switch domErr.Category {
	case core.ErrCatValidation:
		return http.StatusUnprocessableEntity, true
	case core.ErrCatNotFound:
		return http.StatusNotFound, true
	case core.ErrCatConflict:
		return http.StatusConflict, true
	case core.ErrCatAuth:
		return http.StatusUnauthorized, true
	case core.ErrCatRateLimit:
		return http.StatusTooManyRequests, true
	default:
		return http.StatusInternalServerError, true
	}
}

// respondDomainError maps a domain error to a status, falling back to
// 500 for unclassified errors.
func respondDomainError(w http.ResponseWriter, err error) {
	if status, ok := httpStatusForDomainError(err); ok {
		var domErr *core.DomainError
		errors.As(err, &domErr)
		respondError(w, status, domErr.Message)
		return
	}
	respondError(w, http.StatusInternalServerError, "internal error")
}
