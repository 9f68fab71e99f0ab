package api

import (
	"context"
	"errors"
	"net/http"

	"aegis_router/pkg/engine"
	"aegis_router/pkg/geo"
	"aegis_router/pkg/geocode"
	"aegis_router/pkg/graph"
	"aegis_router/pkg/incident"
	"aegis_router/pkg/notify"
	"aegis_router/pkg/routing"
)

// ValidationError describes a malformed request field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

// statusFor maps an error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, engine.ErrInvalidLocation), errors.Is(err, geo.ErrInvalidCoordinate):
		return http.StatusBadRequest, "invalid_coordinates"
	case errors.Is(err, incident.ErrInvalidSeverity):
		return http.StatusBadRequest, "invalid_severity"
	case errors.Is(err, routing.ErrInvalidWeighting):
		return http.StatusBadRequest, "invalid_weighting"
	case errors.Is(err, geocode.ErrNotFound):
		return http.StatusNotFound, "location_not_found"
	case errors.Is(err, routing.ErrUnreachable):
		return http.StatusNotFound, "point_too_far_from_network"
	case errors.Is(err, routing.ErrNoPath):
		return http.StatusNotFound, "no_route_found"
	case errors.Is(err, incident.ErrNotFound),
		errors.Is(err, graph.ErrUnknownNode),
		errors.Is(err, graph.ErrUnknownEdge):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, geocode.ErrUnavailable):
		return http.StatusBadGateway, "geocoder_unavailable"
	case errors.Is(err, notify.ErrUnavailable):
		return http.StatusBadGateway, "notifier_unavailable"
	case errors.Is(err, routing.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "request_timeout"
	}
	return http.StatusInternalServerError, "internal_error"
}
