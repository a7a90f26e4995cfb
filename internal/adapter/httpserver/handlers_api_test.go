package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hkbertoson/dayssincetags/internal/domain"
	apperrors "github.com/hkbertoson/dayssincetags/internal/platform/errors"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleStatus(t *testing.T) {
	tags := &mockTagService{
		statusFn: func(ctx context.Context) (domain.TagStatus, error) {
			return domain.TagStatus{LastReset: 1_700_000_122_000, Streaks: []int64{1_700_000_061_000, 1_700_000_000_000}}, nil
		},
	}
	srv := newTestServer(t, tags)

	rec := serve(srv, http.MethodGet, "/api/status", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"lastReset":1700000122000,"streaks":[1700000061000,1700000000000]}`, rec.Body.String())
}

func TestHandleStatus_EmptyStreaksIsArray(t *testing.T) {
	srv := newTestServer(t, &mockTagService{})

	rec := serve(srv, http.MethodGet, "/api/status", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"lastReset":1700000000000,"streaks":[]}`, rec.Body.String())
}

func TestHandleStatus_StorageUnavailable(t *testing.T) {
	tags := &mockTagService{
		statusFn: func(ctx context.Context) (domain.TagStatus, error) {
			return domain.TagStatus{}, fmt.Errorf("%w: load tag state: connection refused", domain.ErrStorageUnavailable)
		},
	}
	srv := newTestServer(t, tags)

	rec := serve(srv, http.MethodGet, "/api/status", "", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestHandleReset_OK(t *testing.T) {
	var calls atomic.Int32
	tags := &mockTagService{
		resetFn: func(ctx context.Context) (domain.TagStatus, error) {
			calls.Add(1)
			return domain.TagStatus{LastReset: 2, Streaks: []int64{1}}, nil
		},
	}
	srv := newTestServer(t, tags)

	rec := serve(srv, http.MethodPost, "/api/reset", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.Equal(t, int32(1), calls.Load())
}

func TestHandleReset_TooSoon(t *testing.T) {
	tags := &mockTagService{
		resetFn: func(ctx context.Context) (domain.TagStatus, error) {
			return domain.TagStatus{}, &domain.TooSoonError{RetryAfter: 59500 * time.Millisecond}
		},
	}
	srv := newTestServer(t, tags)

	rec := serve(srv, http.MethodPost, "/api/reset", "", nil)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, apperrors.TypeRateLimited, resp.Type)
	assert.Equal(t, 60, resp.RetryAfter)
}

func TestHandleReset_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   apperrors.ErrorType
	}{
		{"storage unavailable", fmt.Errorf("%w: persist tag state: timeout", domain.ErrStorageUnavailable), http.StatusServiceUnavailable, apperrors.TypeUnavailable},
		{"coordinator stopped", domain.ErrCoordinatorStopped, http.StatusServiceUnavailable, apperrors.TypeUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, apperrors.TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tags := &mockTagService{
				resetFn: func(ctx context.Context) (domain.TagStatus, error) {
					return domain.TagStatus{}, tt.err
				},
			}
			srv := newTestServer(t, tags)

			rec := serve(srv, http.MethodPost, "/api/reset", "", nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Empty(t, rec.Header().Get("Retry-After"))

			var resp apperrors.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantType, resp.Type)
		})
	}
}

func TestHandleReset_DirectCall(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/reset", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	srv := newTestServer(t, &mockTagService{
		resetFn: func(ctx context.Context) (domain.TagStatus, error) {
			return domain.TagStatus{}, domain.ErrCoordinatorStopped
		},
	})

	err := callHandler(srv.handleReset, c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleReset_PerIPLimit(t *testing.T) {
	cfg := testConfig()
	cfg.ResetRequestsPerSecond = 0.01
	cfg.ResetRequestsBurst = 2
	srv := newTestServer(t, &mockTagService{}, withConfig(cfg))

	for range 2 {
		rec := serve(srv, http.MethodPost, "/api/reset", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := serve(srv, http.MethodPost, "/api/reset", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())

	// Status is not limited.
	rec = serve(srv, http.MethodGet, "/api/status", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResetRoute_WrongMethod(t *testing.T) {
	srv := newTestServer(t, &mockTagService{})

	rec := serve(srv, http.MethodGet, "/api/reset", "", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWebSocketRoute_Delegates(t *testing.T) {
	var hit atomic.Bool
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit.Store(true)
		w.WriteHeader(http.StatusTeapot)
	})
	srv := newTestServer(t, &mockTagService{}, withWebSocketHandler(ws))

	rec := serve(srv, http.MethodGet, "/api/ws", "", nil)

	assert.True(t, hit.Load())
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	srv := newTestServer(t, &mockTagService{})
	serve(srv, http.MethodGet, "/api/status", "", nil)

	rec := serve(srv, http.MethodGet, "/metrics", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dayssincetags_http_requests_total")
	assert.Contains(t, rec.Body.String(), `route="/api/status"`)
}
