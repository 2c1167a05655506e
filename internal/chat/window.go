package chat

import (
	"context"
	"sync"
	"sync/atomic"

	"hola-chat/internal/domain/message"
	"hola-chat/pkg/logger"

	"go.uber.org/zap"
)

// Window bounds how much of a Store is materialized for rendering. It always
// exposes the most recent VisibleCount messages and grows backwards in time.
type Window struct {
	store     *Store
	pageSize  int
	threshold float64
	log       *logger.Logger

	mu      sync.Mutex
	visible int
	armed   bool

	inflight atomic.Bool
}

func NewWindow(store *Store, pageSize int, threshold float64, l *logger.Logger) *Window {
	if pageSize <= 0 {
		pageSize = 20
	}
	if l == nil {
		l = logger.Nop()
	}
	return &Window{
		store:     store,
		pageSize:  pageSize,
		threshold: threshold,
		log:       l,
		visible:   pageSize,
		armed:     true,
	}
}

func (w *Window) VisibleCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible
}

// LoadMore reveals one more page. When everything resident is already
// visible and older history may exist remotely, the next page is fetched
// first. Only one such fetch runs at a time; overlapping calls are dropped.
// It reports whether the window grew.
func (w *Window) LoadMore(ctx context.Context) bool {
	if !w.inflight.CompareAndSwap(false, true) {
		return false
	}
	defer w.inflight.Store(false)

	if w.VisibleCount() >= w.store.Len() && w.store.HasMore() {
		if _, err := w.store.Load(ctx, w.store.NextPage()); err != nil {
			w.log.Warn("loading older history failed", zap.Error(err))
		}
	}

	total := w.store.Len()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.visible >= total {
		return false
	}
	w.visible += w.pageSize
	if w.visible > total {
		w.visible = total
	}
	return true
}

// Loading reports whether a LoadMore is in flight.
func (w *Window) Loading() bool {
	return w.inflight.Load()
}

// OnScroll is fed the distance from the top of the list. Crossing into the
// threshold zone triggers LoadMore once; the trigger re-arms only after the
// position leaves the zone again.
func (w *Window) OnScroll(ctx context.Context, offsetFromTop float64) bool {
	w.mu.Lock()
	if offsetFromTop >= w.threshold {
		w.armed = true
		w.mu.Unlock()
		return false
	}
	if !w.armed {
		w.mu.Unlock()
		return false
	}
	w.armed = false
	w.mu.Unlock()

	return w.LoadMore(ctx)
}

// NoteArrival grows the window by one for a message that just joined the
// store, so it becomes visible without revealing older history.
func (w *Window) NoteArrival(totalBefore int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.visible <= totalBefore {
		w.visible++
	}
}

// Visible returns the most recent messages that fit the window.
func (w *Window) Visible(msgs []message.Message) []message.Message {
	n := w.VisibleCount()
	if n >= len(msgs) {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

// HasHidden reports whether older resident messages are not shown.
func (w *Window) HasHidden(total int) bool {
	return w.VisibleCount() < total
}
