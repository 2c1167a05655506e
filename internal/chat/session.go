// Package chat is the client-side sync engine for one-to-one conversations.
// A Session owns the active conversation: its message store, the pagination
// window over it, the change-stream controller feeding it and the compose
// pipeline writing to it.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"hola-chat/config"
	"hola-chat/internal/domain/message"
	"hola-chat/internal/transport"
	hola_errors "hola-chat/pkg/errors"
	"hola-chat/pkg/logger"

	"go.uber.org/zap"
)

const markReadTimeout = 10 * time.Second

type Options struct {
	Sync   config.SyncConfig
	Typing TypingPublisher
	Logger *logger.Logger
	// OnSyncState observes every change-stream state transition, tagged
	// with the peer of the conversation it belongs to.
	OnSyncState func(peer string, st SyncState)
}

// conversation bundles everything bound to one {me, peer} pair. It is built
// fresh on every switch and never reused.
type conversation struct {
	me        string
	peer      string
	key       message.ConversationKey
	store     *Store
	window    *Window
	sync      *SyncController
	typing    *TypingSignal
	reactions *Reactions
}

type Session struct {
	adapter transport.Adapter
	cfg     config.SyncConfig
	pub     TypingPublisher
	log     *logger.Logger
	onSync  func(peer string, st SyncState)

	composer *Composer

	// switchMu serializes SetActiveChat and Close.
	switchMu sync.Mutex

	mu      sync.RWMutex
	conv    *conversation
	loadErr error
	syncErr error

	loading atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSession(adapter transport.Adapter, opts Options) *Session {
	l := opts.Logger
	if l == nil {
		l = logger.Nop()
	}
	cfg := opts.Sync
	def := config.DefaultSyncConfig()
	if cfg.WindowPageSize <= 0 {
		cfg.WindowPageSize = def.WindowPageSize
	}
	if cfg.HistoryPageSize <= 0 {
		cfg.HistoryPageSize = def.HistoryPageSize
	}
	if cfg.ScrollThreshold <= 0 {
		cfg.ScrollThreshold = def.ScrollThreshold
	}
	if cfg.ReconcileWindow <= 0 {
		cfg.ReconcileWindow = def.ReconcileWindow
	}
	if cfg.AttachmentBucket == "" {
		cfg.AttachmentBucket = def.AttachmentBucket
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = def.MaxUploadBytes
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		adapter: adapter,
		cfg:     cfg,
		pub:     opts.Typing,
		log:     l.Named("chat"),
		onSync:  opts.OnSyncState,
		ctx:     ctx,
		cancel:  cancel,
	}
	s.composer = newComposer(adapter, cfg, s.current, s.log.Named("compose"))
	return s
}

func (s *Session) current() *conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conv
}

// SetActiveChat binds the session to the conversation with peerID. The
// previous conversation's subscription is fully released before anything
// of the new one is created. The change stream is started even when the
// initial load fails; the load error is returned and kept in LoadError.
func (s *Session) SetActiveChat(ctx context.Context, peerID string) error {
	if peerID == "" {
		return fmt.Errorf("empty peer id: %w", hola_errors.ErrInvalidInput)
	}

	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	if s.ctx.Err() != nil {
		return fmt.Errorf("session closed: %w", hola_errors.ErrServiceUnavailable)
	}

	sess, err := s.adapter.GetSession(ctx)
	if err != nil {
		if errors.Is(err, hola_errors.ErrAuth) {
			return err
		}
		return hola_errors.Transport(err)
	}
	if sess == nil || sess.UserID == "" {
		return hola_errors.ErrAuth
	}
	me := sess.UserID

	if cur := s.current(); cur != nil && cur.peer == peerID && cur.me == me {
		return nil
	}

	s.teardown()

	conv := s.build(me, peerID)
	s.mu.Lock()
	s.conv = conv
	s.loadErr = nil
	s.syncErr = nil
	s.mu.Unlock()

	log := s.log.With(zap.String("conversation", conv.key.String()))
	log.Info("conversation opened")

	s.loading.Store(true)
	_, err = conv.store.Load(ctx, 1)
	s.loading.Store(false)
	if err != nil {
		log.Warn("initial history load failed", zap.Error(err))
		s.mu.Lock()
		s.loadErr = err
		s.mu.Unlock()
	} else {
		s.markRead(conv, conv.store.UnreadReceived())
	}

	conv.sync.Start(s.ctx)
	return err
}

func (s *Session) build(me, peer string) *conversation {
	key := message.NewConversationKey(me, peer)
	log := s.log.With(zap.String("conversation", key.String()))

	conv := &conversation{
		me:        me,
		peer:      peer,
		key:       key,
		reactions: NewReactions(),
	}
	conv.store = NewStore(s.adapter, me, key, s.cfg.HistoryPageSize, s.cfg.ReconcileWindow, log.Named("store"))
	conv.window = NewWindow(conv.store, s.cfg.WindowPageSize, s.cfg.ScrollThreshold, log.Named("window"))
	conv.typing = NewTypingSignal(s.pub, key, me, s.cfg.TypingIdle, log.Named("typing"))
	conv.sync = NewSyncController(s.adapter, me, conv.store, conv.window, SyncOptions{
		MaxAttempts: s.cfg.RetryMaxAttempts,
		MaxInterval: s.cfg.RetryMaxInterval,
		MarkRead: func(id string) {
			s.markRead(conv, []string{id})
		},
		OnPersistentFailure: func(err error) {
			s.mu.Lock()
			if s.conv == conv {
				s.syncErr = err
			}
			s.mu.Unlock()
		},
		OnStateChange: func(st SyncState) {
			if s.onSync != nil {
				s.onSync(peer, st)
			}
			if st != SyncActive {
				return
			}
			s.mu.Lock()
			if s.conv == conv {
				s.syncErr = nil
			}
			s.mu.Unlock()
		},
	}, log.Named("sync"))
	return conv
}

// teardown stops the active conversation and forgets it. It blocks until
// its controller is idle.
func (s *Session) teardown() {
	s.mu.Lock()
	old := s.conv
	s.conv = nil
	s.mu.Unlock()

	s.composer.CancelReply()
	if old == nil {
		return
	}
	old.sync.Stop()
	old.typing.Close()
	s.log.Debug("conversation closed", zap.String("conversation", old.key.String()))
}

// markRead flags ids read locally and persists the change in the
// background. Only durable messages addressed to the current user change.
func (s *Session) markRead(conv *conversation, ids []string) {
	changed := conv.store.MarkRead(ids)
	if len(changed) == 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, markReadTimeout)
		defer cancel()

		filter := transport.Filter{All: []transport.Cond{
			transport.In(message.ColID, changed),
			transport.Eq(message.ColReceiverID, conv.me),
		}}
		if err := s.adapter.Update(ctx, message.TableName, filter, transport.Row{message.ColRead: true}); err != nil {
			s.log.Warn("persisting read receipts failed", zap.Int("count", len(changed)), zap.Error(err))
		}
	}()
}

// ActiveConversationMessages returns the visible slice of the active
// conversation, oldest first.
func (s *Session) ActiveConversationMessages() []message.Message {
	conv := s.current()
	if conv == nil {
		return nil
	}
	return conv.window.Visible(conv.store.Query(conv.key))
}

func (s *Session) Send(ctx context.Context, d Draft) (message.Message, error) {
	return s.composer.Send(ctx, d)
}

func (s *Session) Retry(ctx context.Context, id string) (message.Message, error) {
	return s.composer.Retry(ctx, id)
}

func (s *Session) Composer() *Composer {
	return s.composer
}

// LoadMore reveals one more page of older messages.
func (s *Session) LoadMore(ctx context.Context) bool {
	conv := s.current()
	if conv == nil {
		return false
	}
	return conv.window.LoadMore(ctx)
}

// OnScroll feeds the scroll offset from the top of the list.
func (s *Session) OnScroll(ctx context.Context, offsetFromTop float64) bool {
	conv := s.current()
	if conv == nil {
		return false
	}
	return conv.window.OnScroll(ctx, offsetFromTop)
}

// HasOlder reports whether older messages are hidden or may exist remotely.
func (s *Session) HasOlder() bool {
	conv := s.current()
	if conv == nil {
		return false
	}
	return conv.window.HasHidden(conv.store.Len()) || conv.store.HasMore()
}

func (s *Session) SetTyping(typing bool) {
	conv := s.current()
	if conv == nil {
		return
	}
	if typing {
		conv.typing.Touch()
	} else {
		conv.typing.Stop()
	}
}

func (s *Session) IsTyping() bool {
	conv := s.current()
	return conv != nil && conv.typing.IsTyping()
}

func (s *Session) LoadingMessages() bool {
	return s.loading.Load()
}

func (s *Session) FileUploading() bool {
	return s.composer.Uploading()
}

// ActivePeer returns the peer of the active conversation, or "".
func (s *Session) ActivePeer() string {
	conv := s.current()
	if conv == nil {
		return ""
	}
	return conv.peer
}

// Me returns the user the active conversation is bound to, or "".
func (s *Session) Me() string {
	conv := s.current()
	if conv == nil {
		return ""
	}
	return conv.me
}

func (s *Session) SyncState() SyncState {
	conv := s.current()
	if conv == nil {
		return SyncIdle
	}
	return conv.sync.State()
}

// SyncFailed returns the persistent subscription failure of the active
// conversation, cleared once the stream recovers.
func (s *Session) SyncFailed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.syncErr
}

func (s *Session) LoadError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

// DeleteLocal hides one of the user's own messages. The backend row is left
// untouched, so it comes back on the next reload.
func (s *Session) DeleteLocal(id string) error {
	conv := s.current()
	if conv == nil {
		return hola_errors.ErrNoActiveChat
	}
	m, ok := conv.store.Get(id)
	if !ok {
		return fmt.Errorf("message %s: %w", id, hola_errors.ErrNotFound)
	}
	if m.SenderID != conv.me {
		return fmt.Errorf("message %s belongs to %s: %w", id, m.SenderID, hola_errors.ErrUnauthorized)
	}
	conv.store.Remove(id)
	conv.reactions.Forget(id)
	return nil
}

// ToggleReaction adds or removes the user's emoji on a resident message.
func (s *Session) ToggleReaction(id, emoji string) (bool, error) {
	conv := s.current()
	if conv == nil {
		return false, hola_errors.ErrNoActiveChat
	}
	if emoji == "" {
		return false, fmt.Errorf("empty emoji: %w", hola_errors.ErrInvalidInput)
	}
	if _, ok := conv.store.Get(id); !ok {
		return false, fmt.Errorf("message %s: %w", id, hola_errors.ErrNotFound)
	}
	return conv.reactions.Toggle(id, emoji, conv.me), nil
}

func (s *Session) Reactions(id string) []EmojiCount {
	conv := s.current()
	if conv == nil {
		return nil
	}
	return conv.reactions.Summary(id)
}

// Close releases the active conversation and waits for background work.
func (s *Session) Close() {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	s.teardown()
	s.cancel()
	s.wg.Wait()
}
