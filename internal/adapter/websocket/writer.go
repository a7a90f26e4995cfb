package websocket

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hkbertoson/dayssincetags/internal/adapter/metrics"
	"github.com/jonboulle/clockwork"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 16
)

var (
	ErrSlowSubscriber   = errors.New("subscriber send buffer full")
	ErrSubscriberClosed = errors.New("subscriber closed")
)

// clientWriter is the tag.Subscriber for one WebSocket connection.
type clientWriter struct {
	id            string
	connection    *websocket.Conn
	clock         clockwork.Clock
	metrics       *metrics.WebSocketMetrics
	sendChannel   chan []byte
	doneChannel   chan struct{}
	exitedChannel chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

func newClientWriter(connection *websocket.Conn, clock clockwork.Clock, wsMetrics *metrics.WebSocketMetrics) *clientWriter {
	cw := &clientWriter{
		id:            uuid.NewString(),
		connection:    connection,
		clock:         clock,
		metrics:       wsMetrics,
		sendChannel:   make(chan []byte, messageBufferSize),
		doneChannel:   make(chan struct{}),
		exitedChannel: make(chan struct{}),
	}
	cw.configurePongHandler()
	cw.wg.Add(1)
	go cw.run()
	return cw
}

func (cw *clientWriter) ID() string {
	return cw.id
}

// Send queues data for the writer goroutine without blocking.
func (cw *clientWriter) Send(data []byte) error {
	select {
	case <-cw.exitedChannel:
		return ErrSubscriberClosed
	default:
	}

	select {
	case cw.sendChannel <- data:
		return nil
	default:
		return ErrSlowSubscriber
	}
}

// Close sends a close frame with reason and closes the connection.
func (cw *clientWriter) Close(reason string) {
	cw.stopGraceful(reason)
}

func (cw *clientWriter) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()
	defer close(cw.exitedChannel)

	for {
		select {
		case msg := <-cw.sendChannel:
			start := cw.clock.Now()
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				// Unblocks the handler's read loop, which unsubscribes.
				_ = cw.connection.Close()
				return
			}
			if cw.metrics != nil {
				cw.metrics.MessagesSent.Inc()
				cw.metrics.SendDuration.Observe(cw.clock.Since(start).Seconds())
			}
		case <-ticker.Chan():
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				if cw.metrics != nil {
					cw.metrics.PingFailures.Inc()
				}
				_ = cw.connection.Close()
				return
			}
		case <-cw.doneChannel:
			return
		}
	}
}

func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

// stopGraceful sends a WebSocket close frame with reason before closing.
func (cw *clientWriter) stopGraceful(reason string) {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)

		// The run goroutine must be gone before the close frame is written;
		// gorilla allows only one concurrent writer.
		cw.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		cw.updateWriteDeadline()
		_ = cw.connection.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

func (cw *clientWriter) configurePongHandler() {
	cw.updateReadDeadline()
	cw.connection.SetPongHandler(func(string) error {
		cw.updateReadDeadline()
		return nil
	})
}

func (cw *clientWriter) updateWriteDeadline() {
	_ = cw.connection.SetWriteDeadline(cw.clock.Now().Add(writeDeadline))
}

func (cw *clientWriter) updateReadDeadline() {
	_ = cw.connection.SetReadDeadline(cw.clock.Now().Add(pongDeadline))
}
