package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"hola-chat/internal/domain/message"
	"hola-chat/internal/metrics"
	"hola-chat/internal/transport"
	hola_errors "hola-chat/pkg/errors"
	"hola-chat/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

type SyncState int

const (
	SyncIdle SyncState = iota
	SyncSubscribing
	SyncActive
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncSubscribing:
		return "subscribing"
	case SyncActive:
		return "active"
	case SyncError:
		return "error"
	default:
		return "idle"
	}
}

var errStreamClosed = errors.New("change stream closed")

// SyncOptions configures a SyncController. Zero values take the engine
// defaults.
type SyncOptions struct {
	MaxAttempts int
	MaxInterval time.Duration

	// MarkRead is called with the id of an unread message addressed to the
	// current user as it arrives.
	MarkRead func(id string)
	// OnPersistentFailure is called once per failure streak after
	// MaxAttempts consecutive subscription failures.
	OnPersistentFailure func(err error)
	// OnStateChange observes every transition, in order.
	OnStateChange func(SyncState)
}

// SyncController owns the change-stream subscription for one conversation
// and routes its events into the bound Store.
type SyncController struct {
	adapter transport.Adapter
	me      string
	key     message.ConversationKey
	store   *Store
	window  *Window
	opts    SyncOptions
	log     *logger.Logger

	// minRetry is the initial and smallest retry delay.
	minRetry time.Duration
	// stableAfter is how long a stream must stay up before its failure
	// streak is forgotten.
	stableAfter time.Duration

	mu     sync.Mutex
	state  SyncState
	handle transport.StreamHandle
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSyncController(adapter transport.Adapter, me string, store *Store, window *Window, opts SyncOptions, l *logger.Logger) *SyncController {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 30 * time.Second
	}
	if l == nil {
		l = logger.Nop()
	}
	return &SyncController{
		adapter:     adapter,
		me:          me,
		key:         store.Key(),
		store:       store,
		window:      window,
		opts:        opts,
		log:         l,
		minRetry:    time.Second,
		stableAfter: opts.MaxInterval,
	}
}

func (c *SyncController) State() SyncState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start opens the subscription in the background. A subscription already
// held by this controller is released first.
func (c *SyncController) Start(ctx context.Context) {
	c.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.setState(SyncSubscribing)
	go c.run(runCtx, done)
}

// Stop releases the subscription and returns once no further event can be
// routed. It is safe to call in any state.
func (c *SyncController) Stop() {
	c.mu.Lock()
	cancel, done, h := c.cancel, c.done, c.handle
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if h != nil {
		_ = h.Close()
	}
	<-done
}

func (c *SyncController) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer c.setState(SyncIdle)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.minRetry
	b.MaxInterval = c.opts.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()

	failures := 0
	escalated := false
	first := true

	for {
		if !first {
			c.setState(SyncSubscribing)
		}
		first = false

		err := c.subscribeOnce(ctx, &failures, &escalated, b)
		if ctx.Err() != nil {
			return
		}

		failures++
		c.setState(SyncError)
		c.log.Warn("change stream failed",
			zap.String("conversation", c.key.String()),
			zap.Int("attempt", failures),
			zap.Error(err))

		if failures >= c.opts.MaxAttempts && !escalated {
			escalated = true
			metrics.SyncEscalations.Inc()
			if c.opts.OnPersistentFailure != nil {
				c.opts.OnPersistentFailure(hola_errors.Subscription(err))
			}
		}

		delay := b.NextBackOff()
		if delay < c.minRetry {
			delay = c.minRetry
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// subscribeOnce opens one stream and consumes it until it ends. A stream
// that stayed up for stableAfter clears the failure streak.
func (c *SyncController) subscribeOnce(ctx context.Context, failures *int, escalated *bool, b backoff.BackOff) error {
	h, err := c.adapter.Subscribe(ctx, message.TableName, []transport.EventType{transport.EventInsert, transport.EventUpdate})
	if err != nil {
		return err
	}

	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		_ = h.Close()
		return ctx.Err()
	}
	c.handle = h
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.handle = nil
		c.mu.Unlock()
		_ = h.Close()
	}()

	c.setState(SyncActive)
	opened := time.Now()
	err = c.consume(ctx, h)
	if time.Since(opened) >= c.stableAfter {
		*failures = 0
		*escalated = false
		b.Reset()
	}
	return err
}

func (c *SyncController) consume(ctx context.Context, h transport.StreamHandle) error {
	events := h.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if err := h.Err(); err != nil {
					return err
				}
				return errStreamClosed
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.route(ev)
		}
	}
}

// route applies one change event to the store. Everything not belonging to
// the bound conversation is dropped.
func (c *SyncController) route(ev transport.ChangeEvent) {
	if ev.Table != "" && ev.Table != message.TableName {
		metrics.StreamEvents.WithLabelValues("other_table").Inc()
		return
	}
	msg, err := message.FromRow(ev.Row)
	if err != nil {
		metrics.StreamEvents.WithLabelValues("malformed").Inc()
		c.log.Debug("dropping malformed change event", zap.Error(err))
		return
	}
	if msg.SenderID != c.me && msg.ReceiverID != c.me {
		metrics.StreamEvents.WithLabelValues("foreign").Inc()
		return
	}
	if msg.Key() != c.key {
		metrics.StreamEvents.WithLabelValues("other_conversation").Inc()
		return
	}

	switch ev.Type {
	case transport.EventInsert:
		before := c.store.Len()
		res := c.store.Merge(msg)
		metrics.StreamEvents.WithLabelValues(res.String()).Inc()
		if res == MergeAppended && c.window != nil {
			c.window.NoteArrival(before)
		}
		if res != MergeIgnored && msg.ReceiverID == c.me && !msg.Read && c.opts.MarkRead != nil {
			c.opts.MarkRead(msg.ID)
		}
	case transport.EventUpdate:
		if c.store.ApplyUpdate(msg) {
			metrics.StreamEvents.WithLabelValues("read_receipt").Inc()
		} else {
			metrics.StreamEvents.WithLabelValues("update_ignored").Inc()
		}
	default:
		metrics.StreamEvents.WithLabelValues("unhandled").Inc()
	}
}

func (c *SyncController) setState(s SyncState) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	metrics.SyncTransitions.WithLabelValues(s.String()).Inc()
	c.log.Debug("sync state", zap.String("conversation", c.key.String()), zap.Stringer("state", s))
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
}
