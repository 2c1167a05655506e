package chat

import (
	"context"
	"sync"
	"time"

	"hola-chat/internal/domain/message"
	"hola-chat/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TypingPublisher broadcasts the local typing indicator to the peer.
type TypingPublisher interface {
	PublishTyping(ctx context.Context, key message.ConversationKey, userID string, typing bool) error
}

const (
	typingPublishTimeout = 2 * time.Second
	typingQueueSize      = 8
)

type typingUpdate struct {
	typing bool
}

// TypingSignal is the local "is typing" flag for one conversation. Touch
// raises it and restarts the idle timer; expiry or Stop lowers it.
// Transitions are published in order on a background worker and dropped
// when the queue is full.
type TypingSignal struct {
	pub     TypingPublisher
	key     message.ConversationKey
	me      string
	idle    time.Duration
	limiter *rate.Limiter
	log     *logger.Logger

	mu     sync.Mutex
	typing bool
	timer  *time.Timer
	gen    uint64
	closed bool

	queue chan typingUpdate
	done  chan struct{}
}

func NewTypingSignal(pub TypingPublisher, key message.ConversationKey, me string, idle time.Duration, l *logger.Logger) *TypingSignal {
	if idle <= 0 {
		idle = time.Second
	}
	if l == nil {
		l = logger.Nop()
	}
	t := &TypingSignal{
		pub:     pub,
		key:     key,
		me:      me,
		idle:    idle,
		limiter: rate.NewLimiter(rate.Every(idle), 1),
		log:     l,
	}
	if pub != nil {
		t.queue = make(chan typingUpdate, typingQueueSize)
		t.done = make(chan struct{})
		go t.worker()
	}
	return t
}

// Touch records a keystroke.
func (t *TypingSignal) Touch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	if !t.typing {
		t.typing = true
		t.limiter.Allow()
		t.enqueue(true)
	} else if t.limiter.Allow() {
		// keep-alive
		t.enqueue(true)
	}

	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(t.idle, func() { t.expire(gen) })
}

// Stop lowers the flag immediately.
func (t *TypingSignal) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lowerLocked()
}

func (t *TypingSignal) IsTyping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typing
}

// Close lowers the flag, flushes pending broadcasts and stops the worker.
func (t *TypingSignal) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.lowerLocked()
	t.closed = true
	if t.queue != nil {
		close(t.queue)
	}
	t.mu.Unlock()

	if t.done != nil {
		<-t.done
	}
}

func (t *TypingSignal) expire(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return
	}
	t.lowerLocked()
}

func (t *TypingSignal) lowerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	if !t.typing {
		return
	}
	t.typing = false
	t.enqueue(false)
}

func (t *TypingSignal) enqueue(typing bool) {
	if t.queue == nil || t.closed {
		return
	}
	select {
	case t.queue <- typingUpdate{typing: typing}:
	default:
		t.log.Debug("typing broadcast dropped", zap.Bool("typing", typing))
	}
}

func (t *TypingSignal) worker() {
	defer close(t.done)
	for u := range t.queue {
		ctx, cancel := context.WithTimeout(context.Background(), typingPublishTimeout)
		if err := t.pub.PublishTyping(ctx, t.key, t.me, u.typing); err != nil {
			t.log.Debug("typing broadcast failed", zap.Error(err))
		}
		cancel()
	}
}
