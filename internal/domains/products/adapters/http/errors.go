package http

import (
	"errors"

	"github.com/Apurer/catalog-gateway/internal/clients/http/resilient"
	"github.com/Apurer/catalog-gateway/internal/domains/products/application"
	apierrors "github.com/Apurer/catalog-gateway/internal/shared/errors"
)

// NewResponder maps product service errors onto problem details tagged with the request id.
func NewResponder() *apierrors.ChainedResponder {
	return apierrors.NewResponder(apierrors.WithRequestID(RequestIDFrom)).Chain(mapServiceError)
}

func mapServiceError(err error) (apierrors.ProblemDetail, bool) {
	switch {
	case errors.Is(err, application.ErrInvalidInput):
		return apierrors.ErrValidation.WithDetail(err.Error()), true
	case errors.Is(err, resilient.ErrCircuitOpen):
		return apierrors.ErrServiceUnavailable.WithDetail(stableMessage(err)), true
	case errors.Is(err, application.ErrUpstream):
		return apierrors.ErrInternal.WithDetail(stableMessage(err)), true
	}
	return apierrors.ProblemDetail{}, false
}

// stableMessage hides upstream causes from callers.
func stableMessage(err error) string {
	var aggErr *application.AggregationError
	if errors.As(err, &aggErr) {
		return aggErr.Error()
	}
	return "upstream request failed"
}
