package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/luci/swarmsched/pkg/services"
)

// mapServiceError maps service-layer errors to HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}
	if errors.Is(err, services.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	if errors.Is(err, services.ErrConflict) {
		// spec.md §7: a state-machine rejection is a Conflict, reported as a
		// plain 400 with an explicit reason, not retried.
		return echo.NewHTTPError(http.StatusBadRequest, "operation conflicts with current task state")
	}
	if errors.Is(err, services.ErrContention) {
		// spec.md §7: a transactional race the scheduler could not resolve
		// internally surfaces as 409 with an advisory retry.
		return echo.NewHTTPError(http.StatusConflict, "task was claimed by another bot, retry")
	}
	if errors.Is(err, services.ErrUnavailable) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no matching task available")
	}
	if errors.Is(err, services.ErrAuth) {
		return echo.NewHTTPError(http.StatusForbidden, "invalid or expired handshake token")
	}

	slog.Error("unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
