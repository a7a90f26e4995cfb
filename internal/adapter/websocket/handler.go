package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/hkbertoson/dayssincetags/internal/adapter/metrics"
	"github.com/hkbertoson/dayssincetags/internal/domain"
	"github.com/hkbertoson/dayssincetags/internal/tag"
	"github.com/jonboulle/clockwork"
)

const (
	closeReasonCapacity    = "server at capacity"
	closeReasonUnavailable = "service unavailable"
)

type subscriptions interface {
	Subscribe(ctx context.Context, sub tag.Subscriber) error
	Unsubscribe(sub tag.Subscriber)
}

// Handler upgrades viewers to WebSocket and keeps them subscribed until they disconnect.
type Handler struct {
	subscriptions subscriptions
	upgrader      websocket.Upgrader
	clock         clockwork.Clock
	metrics       *metrics.WebSocketMetrics
}

func NewHandler(subs subscriptions, checkOrigin func(r *http.Request) bool, clock clockwork.Clock, wsMetrics *metrics.WebSocketMetrics) *Handler {
	h := &Handler{
		subscriptions: subs,
		clock:         clock,
		metrics:       wsMetrics,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if checkOrigin(r) {
				return true
			}
			if h.metrics != nil {
				h.metrics.RejectedOrigins.Inc()
			}
			return false
		},
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		slog.DebugContext(r.Context(), "WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	cw := newClientWriter(conn, h.clock, h.metrics)
	if err := h.subscriptions.Subscribe(r.Context(), cw); err != nil {
		slog.WarnContext(r.Context(), "Subscribe failed", "subscriber_id", cw.ID(), "error", err)
		cw.Close(closeReason(err))
		return
	}

	if h.metrics != nil {
		h.metrics.ActiveConnections.Inc()
		defer h.metrics.ActiveConnections.Dec()
	}
	slog.DebugContext(r.Context(), "Viewer connected", "subscriber_id", cw.ID(), "remote_addr", r.RemoteAddr)

	defer cw.stop()
	defer h.subscriptions.Unsubscribe(cw)

	// Viewers never send anything meaningful; reading drives pong handling and
	// surfaces close and error conditions.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			slog.DebugContext(r.Context(), "Viewer disconnected", "subscriber_id", cw.ID(), "error", err)
			return
		}
	}
}

func closeReason(err error) string {
	if errors.Is(err, domain.ErrTooManySubscribers) {
		return closeReasonCapacity
	}
	return closeReasonUnavailable
}
