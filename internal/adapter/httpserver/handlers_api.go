package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/hkbertoson/dayssincetags/internal/domain"
	apperrors "github.com/hkbertoson/dayssincetags/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

func (s *Server) registerAPIRoutes() {
	s.echo.GET("/api/status", s.handleStatus)
	s.echo.POST("/api/reset", s.handleReset, newRateLimiter(s.config.ResetRequestsPerSecond, s.config.ResetRequestsBurst))
	if s.websocketHandler != nil {
		s.echo.GET("/api/ws", echo.WrapHandler(s.websocketHandler))
	}
}

func (s *Server) handleStatus(c echo.Context) error {
	status, err := s.tags.Status(c.Request().Context())
	if err != nil {
		return tagError(err)
	}

	if err := c.JSON(http.StatusOK, status); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleReset(c echo.Context) error {
	if _, err := s.tags.Reset(c.Request().Context()); err != nil {
		return tagError(err)
	}

	if err := c.JSON(http.StatusOK, map[string]bool{"ok": true}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func tagError(err error) *apperrors.Error {
	var tooSoon *domain.TooSoonError
	switch {
	case errors.As(err, &tooSoon):
		return apperrors.RateLimitedError("tag was reset less than a minute ago", tooSoon.RetryAfter)
	case errors.Is(err, domain.ErrStorageUnavailable):
		return apperrors.UnavailableError("storage unavailable", err)
	case errors.Is(err, domain.ErrCoordinatorStopped):
		return apperrors.UnavailableError("server shutting down", err)
	default:
		return apperrors.InternalError("tag operation failed", err)
	}
}
