package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hkbertoson/dayssincetags/internal/adapter/metrics"
	"github.com/hkbertoson/dayssincetags/internal/domain"
	"github.com/hkbertoson/dayssincetags/internal/platform/config"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

const readHeaderTimeout = 10 * time.Second

type tagService interface {
	Status(ctx context.Context) (domain.TagStatus, error)
	Reset(ctx context.Context) (domain.TagStatus, error)
	SubscriberCount() int
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	tags             tagService
	websocketHandler http.Handler
	metricsHandler   http.Handler
	httpMetrics      *metrics.HTTPMetrics

	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, tags tagService, websocketHandler http.Handler, reg *prometheus.Registry, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadHeaderTimeout = readHeaderTimeout

	srv := &Server{
		echo:             e,
		config:           cfg,
		tags:             tags,
		websocketHandler: websocketHandler,
		metricsHandler:   metrics.Handler(reg),
		httpMetrics:      metrics.NewHTTPMetrics(reg),
		healthChecks:     healthChecks,
		startTime:        time.Now(),
	}

	srv.registerRoutes()

	return srv
}

// Start blocks serving on the configured port until Shutdown. After a
// graceful shutdown it returns an error wrapping http.ErrServerClosed.
func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
