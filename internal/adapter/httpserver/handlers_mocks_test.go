package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hkbertoson/dayssincetags/internal/domain"
	"github.com/hkbertoson/dayssincetags/internal/platform/config"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// --- Mock implementations ---

type mockTagService struct {
	statusFn func(ctx context.Context) (domain.TagStatus, error)
	resetFn  func(ctx context.Context) (domain.TagStatus, error)
	count    int
}

func (m *mockTagService) Status(ctx context.Context) (domain.TagStatus, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx)
	}
	return domain.TagStatus{LastReset: testLastReset, Streaks: []int64{}}, nil
}

func (m *mockTagService) Reset(ctx context.Context) (domain.TagStatus, error) {
	if m.resetFn != nil {
		return m.resetFn(ctx)
	}
	return domain.TagStatus{LastReset: testLastReset + 61_000, Streaks: []int64{testLastReset}}, nil
}

func (m *mockTagService) SubscriberCount() int { return m.count }

const testLastReset = int64(1_700_000_000_000)

// --- Test helpers ---

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                 "development",
		Port:                   "0",
		AppURL:                 "http://localhost:8080",
		ResetRequestsPerSecond: 100,
		ResetRequestsBurst:     100,
	}
}

func newTestServer(t *testing.T, tags tagService, opts ...func(*Server)) *Server {
	t.Helper()

	reg := prometheus.NewRegistry()
	srv := NewServer(testConfig(), tags, nil, reg, nil)

	for _, opt := range opts {
		opt(srv)
	}
	if len(opts) > 0 {
		// Options may change routing inputs; rebuild the router.
		srv.echo = echo.New()
		srv.registerRoutes()
	}

	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

func withConfig(cfg *config.Config) func(*Server) {
	return func(s *Server) {
		s.config = cfg
	}
}

func withWebSocketHandler(h http.Handler) func(*Server) {
	return func(s *Server) {
		s.websocketHandler = h
	}
}

func withStartTime(start time.Time) func(*Server) {
	return func(s *Server) {
		s.startTime = start
	}
}

// serve runs a request through the full middleware stack and router.
func serve(srv *Server, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = testRemoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

// callHandler wraps a handler with error middleware, matching production behavior
func callHandler(handler echo.HandlerFunc, c echo.Context) error {
	return ErrorHandlingMiddleware()(handler)(c)
}
