package chat

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"hola-chat/internal/domain/message"
	"hola-chat/internal/transport"
	hola_errors "hola-chat/pkg/errors"
	"hola-chat/pkg/logger"

	"go.uber.org/zap"
)

// MergeResult says what Merge did with an inbound message.
type MergeResult int

const (
	MergeIgnored MergeResult = iota
	MergeDuplicate
	MergeReconciled
	MergeAppended
)

func (r MergeResult) String() string {
	switch r {
	case MergeDuplicate:
		return "duplicate"
	case MergeReconciled:
		return "reconciled"
	case MergeAppended:
		return "appended"
	default:
		return "ignored"
	}
}

// Store is the in-memory message collection of one conversation.
//
// Entries are kept sorted by (CreatedAt, ID). Every id present, provisional
// or durable, is indexed with its CreatedAt so an entry can be located by
// binary search.
type Store struct {
	adapter         transport.Adapter
	me              string
	key             message.ConversationKey
	pageSize        int
	reconcileWindow time.Duration
	log             *logger.Logger

	mu      sync.RWMutex
	msgs    []message.Message
	ids     map[string]time.Time
	pending map[string]struct{}
	pages   int
	hasMore bool
}

func NewStore(adapter transport.Adapter, me string, key message.ConversationKey, pageSize int, reconcileWindow time.Duration, l *logger.Logger) *Store {
	if pageSize <= 0 {
		pageSize = 100
	}
	if l == nil {
		l = logger.Nop()
	}
	return &Store{
		adapter:         adapter,
		me:              me,
		key:             key,
		pageSize:        pageSize,
		reconcileWindow: reconcileWindow,
		log:             l,
		ids:             make(map[string]time.Time),
		pending:         make(map[string]struct{}),
	}
}

func (s *Store) Key() message.ConversationKey {
	return s.key
}

// Load fetches one page of history (page 1 is the newest) and merges it.
// It returns the number of rows the backend returned.
func (s *Store) Load(ctx context.Context, page int) (int, error) {
	if page < 1 {
		page = 1
	}
	rows, err := s.adapter.Query(ctx, message.TableName, conversationFilter(s.key), transport.Order{
		Column: message.ColCreatedAt,
		Desc:   true,
		Limit:  s.pageSize,
		Offset: (page - 1) * s.pageSize,
	})
	if err != nil {
		if errors.Is(err, hola_errors.ErrAuth) {
			return 0, err
		}
		return 0, hola_errors.Transport(err)
	}

	decoded := make([]message.Message, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		m, err := message.FromRow(rows[i])
		if err != nil {
			s.log.Warn("skipping undecodable message row", zap.Error(err))
			continue
		}
		decoded = append(decoded, m)
	}

	s.mu.Lock()
	for _, m := range decoded {
		s.mergeLocked(m)
	}
	if page > s.pages {
		s.pages = page
		s.hasMore = len(rows) == s.pageSize
	}
	s.mu.Unlock()

	return len(rows), nil
}

// NextPage is the page Load should fetch to extend history backwards.
func (s *Store) NextPage() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pages + 1
}

// HasMore reports whether the last page fetched was full, i.e. older history
// may still exist remotely.
func (s *Store) HasMore() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasMore
}

// Append inserts msg in order. It is a no-op when the id is already present
// or the message belongs to another conversation.
func (s *Store) Append(msg message.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(msg)
}

// Merge applies the merge policy: duplicates are dropped, an own outstanding
// send with the same participants and content within the reconcile window
// is reconciled, anything else is appended.
func (s *Store) Merge(msg message.Message) MergeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergeLocked(msg)
}

// Reconcile replaces the outstanding entry pendingID with confirmed. When the
// confirmed id is already present (the stream beat the insert response) the
// outstanding entry is dropped instead. Without an outstanding entry it
// falls back to Append.
func (s *Store) Reconcile(pendingID string, confirmed message.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconcileLocked(pendingID, confirmed)
}

// MarkRead sets Read on the given durable ids where the current user is the
// receiver. It returns the ids that changed.
func (s *Store) MarkRead(ids []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	for _, id := range ids {
		i := s.locate(id)
		if i < 0 {
			continue
		}
		m := &s.msgs[i]
		if !m.IsDurable() || m.ReceiverID != s.me || m.Read {
			continue
		}
		m.Read = true
		changed = append(changed, id)
	}
	return changed
}

// UnreadReceived lists durable ids addressed to the current user that are
// still unread.
func (s *Store) UnreadReceived() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, m := range s.msgs {
		if m.IsDurable() && m.ReceiverID == s.me && !m.Read {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// ApplyUpdate folds a server-side update into a resident entry. Confirmed
// messages are immutable except for the false→true read transition.
func (s *Store) ApplyUpdate(msg message.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.locate(msg.ID)
	if i < 0 || !msg.Read || s.msgs[i].Read {
		return false
	}
	s.msgs[i].Read = true
	return true
}

// MarkFailed flags an outstanding send as failed. The entry stays visible.
func (s *Store) MarkFailed(id string) bool {
	return s.setState(id, message.StatePending, message.StateFailed)
}

// MarkPending moves a failed send back to pending for a retry.
func (s *Store) MarkPending(id string) bool {
	return s.setState(id, message.StateFailed, message.StatePending)
}

func (s *Store) setState(id string, from, to message.DeliveryState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.locate(id)
	if i < 0 || s.msgs[i].DeliveryState != from {
		return false
	}
	s.msgs[i].DeliveryState = to
	return true
}

// Remove deletes an entry locally. Nothing is sent to the backend.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.locate(id)
	if i < 0 {
		return false
	}
	s.removeAt(i)
	return true
}

// Query returns an ordered copy of the messages of key.
func (s *Store) Query(key message.ConversationKey) []message.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]message.Message, 0, len(s.msgs))
	for _, m := range s.msgs {
		if m.Key() == key {
			out = append(out, m)
		}
	}
	return out
}

func (s *Store) Get(id string) (message.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.locate(id)
	if i < 0 {
		return message.Message{}, false
	}
	return s.msgs[i], true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

func (s *Store) mergeLocked(msg message.Message) MergeResult {
	if msg.ID == "" || msg.Key() != s.key {
		return MergeIgnored
	}
	if i := s.locate(msg.ID); i >= 0 {
		if msg.Read && !s.msgs[i].Read {
			s.msgs[i].Read = true
		}
		return MergeDuplicate
	}
	if msg.IsDurable() {
		if pendingID, ok := s.matchOutstanding(msg); ok {
			s.reconcileLocked(pendingID, msg)
			return MergeReconciled
		}
	}
	if s.appendLocked(msg) {
		return MergeAppended
	}
	return MergeIgnored
}

// matchOutstanding finds the oldest own pending or failed send equal to msg.
// Failed sends are candidates too: a send that timed out may still have
// been persisted.
func (s *Store) matchOutstanding(msg message.Message) (string, bool) {
	var (
		bestID string
		bestAt time.Time
	)
	for id := range s.pending {
		i := s.locate(id)
		if i < 0 {
			continue
		}
		p := s.msgs[i]
		if p.SenderID != msg.SenderID || p.ReceiverID != msg.ReceiverID || p.Content != msg.Content {
			continue
		}
		if !sameAttachment(p.Attachment, msg.Attachment) {
			continue
		}
		if d := p.CreatedAt.Sub(msg.CreatedAt); d > s.reconcileWindow || -d > s.reconcileWindow {
			continue
		}
		if bestID == "" || p.CreatedAt.Before(bestAt) {
			bestID, bestAt = id, p.CreatedAt
		}
	}
	return bestID, bestID != ""
}

func (s *Store) reconcileLocked(pendingID string, confirmed message.Message) bool {
	if confirmed.ID == "" || confirmed.Key() != s.key {
		return false
	}
	confirmed.DeliveryState = message.StateConfirmed

	pi := s.locate(pendingID)
	if ci := s.locate(confirmed.ID); ci >= 0 {
		if pi < 0 || pendingID == confirmed.ID {
			return false
		}
		if s.msgs[pi].Read && !s.msgs[ci].Read {
			s.msgs[ci].Read = true
		}
		s.removeAt(pi)
		return true
	}
	if pi < 0 {
		return s.appendLocked(confirmed)
	}

	local := s.msgs[pi]
	confirmed.Read = confirmed.Read || local.Read
	if confirmed.ReplyTo == nil {
		confirmed.ReplyTo = local.ReplyTo
	}
	if confirmed.Attachment == nil {
		confirmed.Attachment = local.Attachment
	}
	s.removeAt(pi)
	return s.appendLocked(confirmed)
}

func (s *Store) appendLocked(msg message.Message) bool {
	if msg.ID == "" || msg.Key() != s.key {
		return false
	}
	if _, ok := s.ids[msg.ID]; ok {
		return false
	}
	if msg.DeliveryState == "" {
		msg.DeliveryState = message.StateConfirmed
	}
	i := sort.Search(len(s.msgs), func(i int) bool { return !message.Less(s.msgs[i], msg) })
	s.msgs = slices.Insert(s.msgs, i, msg)
	s.ids[msg.ID] = msg.CreatedAt
	if msg.DeliveryState != message.StateConfirmed {
		s.pending[msg.ID] = struct{}{}
	}
	return true
}

func (s *Store) removeAt(i int) {
	id := s.msgs[i].ID
	s.msgs = slices.Delete(s.msgs, i, i+1)
	delete(s.ids, id)
	delete(s.pending, id)
}

// locate returns the slice index of id, or -1.
func (s *Store) locate(id string) int {
	at, ok := s.ids[id]
	if !ok {
		return -1
	}
	probe := message.Message{ID: id, CreatedAt: at}
	i := sort.Search(len(s.msgs), func(i int) bool { return !message.Less(s.msgs[i], probe) })
	if i < len(s.msgs) && s.msgs[i].ID == id {
		return i
	}
	return -1
}

func sameAttachment(a, b *message.Attachment) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.URL == b.URL
}

func conversationFilter(key message.ConversationKey) transport.Filter {
	return transport.Filter{Any: [][]transport.Cond{
		{transport.Eq(message.ColSenderID, key.A), transport.Eq(message.ColReceiverID, key.B)},
		{transport.Eq(message.ColSenderID, key.B), transport.Eq(message.ColReceiverID, key.A)},
	}}
}
