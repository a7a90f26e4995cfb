package tag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hkbertoson/dayssincetags/internal/adapter/metrics"
	"github.com/hkbertoson/dayssincetags/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
)

const (
	loadTimeout       = 10 * time.Second
	persistTimeout    = 5 * time.Second
	stopTimeout       = 10 * time.Second
	commandBufferSize = 256

	shutdownReason  = "server shutting down"
	sendFailReason  = "send failed"
	panicStopReason = "coordinator panic"
)

var errLoading = errors.New("tag state still loading")

// Subscriber is a live connection that receives tag updates.
// Send must not block; Close may be called more than once.
type Subscriber interface {
	ID() string
	Send(data []byte) error
	Close(reason string)
}

// coordinatorCmd is the command interface for the Coordinator actor.
type coordinatorCmd interface{ isCoordinatorCmd() }

type baseCoordinatorCmd struct{}

func (baseCoordinatorCmd) isCoordinatorCmd() {}

type subscribeCmd struct {
	baseCoordinatorCmd
	subscriber   Subscriber
	errorChannel chan error
}

type unsubscribeCmd struct {
	baseCoordinatorCmd
	subscriber Subscriber
}

type statusCmd struct {
	baseCoordinatorCmd
	replyChannel chan statusReply
}

type resetCmd struct {
	baseCoordinatorCmd
	replyChannel chan statusReply
}

type countCmd struct {
	baseCoordinatorCmd
	replyChannel chan int
}

type stopCmd struct {
	baseCoordinatorCmd
}

type statusReply struct {
	status domain.TagStatus
	err    error
}

// Coordinator is the single authoritative owner of the tag state.
type Coordinator struct {
	cmdCh          chan coordinatorCmd
	store          domain.TagStore
	clock          clockwork.Clock
	metrics        *metrics.TagMetrics
	maxSubscribers int

	// Owned by the run goroutine.
	state       domain.TagStatus
	subscribers map[Subscriber]struct{}

	// loadErr is written once before ready is closed.
	loadErr error
	ready   chan struct{}
	done    chan struct{}
}

// New starts the coordinator. The persisted state is loaded in the background;
// use WaitReady to block until it is available.
// maxSubscribers caps the subscriber set (values <= 0 mean unlimited).
func New(store domain.TagStore, clock clockwork.Clock, tagMetrics *metrics.TagMetrics, maxSubscribers int) *Coordinator {
	c := &Coordinator{
		cmdCh:          make(chan coordinatorCmd, commandBufferSize),
		store:          store,
		clock:          clock,
		metrics:        tagMetrics,
		maxSubscribers: maxSubscribers,
		subscribers:    make(map[Subscriber]struct{}),
		ready:          make(chan struct{}),
		done:           make(chan struct{}),
	}
	go c.run()
	return c
}

// WaitReady blocks until the initial load has finished and returns its error, if any.
func (c *Coordinator) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return c.loadErr
	case <-ctx.Done():
		return fmt.Errorf("waiting for tag state: %w", ctx.Err())
	}
}

// Ready reports whether the coordinator is serving. It is shaped as a health check.
func (c *Coordinator) Ready(_ context.Context) error {
	select {
	case <-c.done:
		return domain.ErrCoordinatorStopped
	default:
	}

	select {
	case <-c.ready:
		return c.loadErr
	default:
		return errLoading
	}
}

// Subscribe registers sub and sends it a snapshot of the current state.
func (c *Coordinator) Subscribe(ctx context.Context, sub Subscriber) error {
	errCh := make(chan error, 1)
	if err := c.send(ctx, subscribeCmd{subscriber: sub, errorChannel: errCh}); err != nil {
		return err
	}

	select {
	case err := <-errCh:
		return err
	case <-c.done:
		return domain.ErrCoordinatorStopped
	case <-ctx.Done():
		// The queued command still registers sub; the unsubscribe queued behind it undoes that.
		c.Unsubscribe(sub)
		return ctx.Err()
	}
}

// Unsubscribe removes sub. It does not wait and is safe to call for unknown subscribers.
func (c *Coordinator) Unsubscribe(sub Subscriber) {
	select {
	case c.cmdCh <- unsubscribeCmd{subscriber: sub}:
	case <-c.done:
	}
}

// Status returns a copy of the current state.
func (c *Coordinator) Status(ctx context.Context) (domain.TagStatus, error) {
	return c.request(ctx, func(reply chan statusReply) coordinatorCmd {
		return statusCmd{replyChannel: reply}
	})
}

// Reset records now as the new last reset. It fails with a *domain.TooSoonError inside
// the minimum interval and with domain.ErrStorageUnavailable when the state cannot be
// persisted; in both cases nothing changes.
func (c *Coordinator) Reset(ctx context.Context) (domain.TagStatus, error) {
	return c.request(ctx, func(reply chan statusReply) coordinatorCmd {
		return resetCmd{replyChannel: reply}
	})
}

// SubscriberCount returns the number of registered subscribers, or -1 once stopped.
func (c *Coordinator) SubscriberCount() int {
	replyCh := make(chan int, 1)
	if err := c.send(context.Background(), countCmd{replyChannel: replyCh}); err != nil {
		return -1
	}

	select {
	case n := <-replyCh:
		return n
	case <-c.done:
		return -1
	}
}

// Stop closes all subscribers and shuts the coordinator down.
// Blocks until the goroutine has exited or the stop timeout is reached.
func (c *Coordinator) Stop() {
	select {
	case c.cmdCh <- stopCmd{}:
	case <-c.done:
		return
	}

	timeout := c.clock.NewTimer(stopTimeout)
	defer timeout.Stop()

	select {
	case <-c.done:
		slog.Info("Tag coordinator stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Tag coordinator stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (c *Coordinator) send(ctx context.Context, cmd coordinatorCmd) error {
	select {
	case c.cmdCh <- cmd:
		return nil
	case <-c.done:
		return domain.ErrCoordinatorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) request(ctx context.Context, build func(chan statusReply) coordinatorCmd) (domain.TagStatus, error) {
	replyCh := make(chan statusReply, 1)
	if err := c.send(ctx, build(replyCh)); err != nil {
		return domain.TagStatus{}, err
	}

	select {
	case r := <-replyCh:
		return r.status, r.err
	case <-c.done:
		return domain.TagStatus{}, domain.ErrCoordinatorStopped
	case <-ctx.Done():
		return domain.TagStatus{}, ctx.Err()
	}
}

func (c *Coordinator) run() {
	defer close(c.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Tag coordinator panic recovered", "panic", r)
			c.closeAllSubscribers(panicStopReason)
		}
	}()

	c.load()

	for cmd := range c.cmdCh {
		switch cmd := cmd.(type) {
		case subscribeCmd:
			cmd.errorChannel <- c.handleSubscribe(cmd.subscriber)
		case unsubscribeCmd:
			c.handleUnsubscribe(cmd.subscriber)
		case statusCmd:
			cmd.replyChannel <- c.handleStatus()
		case resetCmd:
			c.handleReset(cmd.replyChannel)
		case countCmd:
			cmd.replyChannel <- len(c.subscribers)
		case stopCmd:
			c.handleStop()
			return
		default:
			slog.Warn("Tag coordinator received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (c *Coordinator) load() {
	defer close(c.ready)

	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	stored, err := c.store.Load(ctx)
	if err != nil {
		c.loadErr = fmt.Errorf("%w: load tag state: %w", domain.ErrStorageUnavailable, err)
		slog.Error("Failed to load tag state", "error", err)
		return
	}

	c.state = domain.TagStatus{LastReset: stored.LastReset, Streaks: stored.Streaks}.Clone()
	if !stored.HasLastReset {
		c.state.LastReset = c.clock.Now().UnixMilli()
	}

	slog.Info("Tag state loaded",
		"last_reset", c.state.LastReset,
		"streaks", len(c.state.Streaks),
		"fresh", !stored.HasLastReset,
	)
}

func (c *Coordinator) handleSubscribe(sub Subscriber) error {
	if c.loadErr != nil {
		return c.loadErr
	}

	if c.maxSubscribers > 0 && len(c.subscribers) >= c.maxSubscribers {
		slog.Warn("Rejecting subscriber: max subscribers reached", "subscriber_id", sub.ID(), "max_subscribers", c.maxSubscribers)
		return domain.ErrTooManySubscribers
	}

	c.subscribers[sub] = struct{}{}
	c.metrics.Subscribers.Set(float64(len(c.subscribers)))
	slog.Debug("Subscriber registered", "subscriber_id", sub.ID(), "total_subscribers", len(c.subscribers))

	if data, err := c.encodeUpdate(); err == nil {
		if err := sub.Send(data); err != nil {
			c.evict(sub, err)
		}
	}
	return nil
}

func (c *Coordinator) handleUnsubscribe(sub Subscriber) {
	if _, ok := c.subscribers[sub]; !ok {
		return
	}

	delete(c.subscribers, sub)
	c.metrics.Subscribers.Set(float64(len(c.subscribers)))
	slog.Debug("Subscriber unregistered", "subscriber_id", sub.ID(), "remaining_subscribers", len(c.subscribers))
}

func (c *Coordinator) handleStatus() statusReply {
	if c.loadErr != nil {
		return statusReply{err: c.loadErr}
	}
	return statusReply{status: c.state.Clone()}
}

func (c *Coordinator) handleReset(replyCh chan statusReply) {
	if c.loadErr != nil {
		replyCh <- statusReply{err: c.loadErr}
		return
	}

	nowMs := c.clock.Now().UnixMilli()
	minIntervalMs := domain.MinResetInterval.Milliseconds()
	if elapsed := nowMs - c.state.LastReset; elapsed < minIntervalMs {
		c.metrics.Resets.WithLabelValues(metrics.ResetTooSoon).Inc()
		retryAfter := time.Duration(minIntervalMs-elapsed) * time.Millisecond
		replyCh <- statusReply{err: &domain.TooSoonError{RetryAfter: retryAfter}}
		return
	}

	next := c.state.Advance(nowMs)

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	err := c.store.Save(ctx, next)
	cancel()
	if err != nil {
		c.metrics.Resets.WithLabelValues(metrics.ResetStorageError).Inc()
		slog.Error("Failed to persist reset", "error", err)
		replyCh <- statusReply{err: fmt.Errorf("%w: persist tag state: %w", domain.ErrStorageUnavailable, err)}
		return
	}

	c.state = next
	c.metrics.Resets.WithLabelValues(metrics.ResetOK).Inc()
	slog.Info("Tag reset", "last_reset", c.state.LastReset, "streaks", len(c.state.Streaks))

	replyCh <- statusReply{status: c.state.Clone()}
	c.broadcast()
}

func (c *Coordinator) broadcast() {
	data, err := c.encodeUpdate()
	if err != nil {
		return
	}

	for sub := range c.subscribers {
		if err := sub.Send(data); err != nil {
			c.evict(sub, err)
		}
	}
	c.metrics.Broadcasts.Inc()
}

// evict removes sub after a failed send. Closing runs off the actor goroutine so a
// stuck connection cannot stall other commands.
func (c *Coordinator) evict(sub Subscriber, cause error) {
	delete(c.subscribers, sub)
	c.metrics.Subscribers.Set(float64(len(c.subscribers)))
	c.metrics.SubscriberEvictions.Inc()
	slog.Warn("Evicting subscriber after failed send", "subscriber_id", sub.ID(), "error", cause)

	go sub.Close(sendFailReason)
}

func (c *Coordinator) encodeUpdate() ([]byte, error) {
	data, err := json.Marshal(c.state.Update())
	if err != nil {
		slog.Error("Failed to marshal tag update", "error", err)
		return nil, fmt.Errorf("marshal tag update: %w", err)
	}
	return data, nil
}

func (c *Coordinator) handleStop() {
	slog.Info("Tag coordinator shutting down", "subscribers", len(c.subscribers))
	c.closeAllSubscribers(shutdownReason)
}

// closeAllSubscribers closes every subscriber with the given reason.
// Used during panic recovery and graceful shutdown.
func (c *Coordinator) closeAllSubscribers(reason string) {
	subs := lo.Keys(c.subscribers)
	for _, sub := range subs {
		sub.Close(reason)
		delete(c.subscribers, sub)
	}
	c.metrics.Subscribers.Set(0)
}
