package chat

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"hola-chat/config"
	"hola-chat/internal/domain/message"
	"hola-chat/internal/metrics"
	"hola-chat/internal/transport"
	hola_errors "hola-chat/pkg/errors"
	"hola-chat/pkg/logger"

	"go.uber.org/zap"
)

// File is an attachment picked by the user.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Draft is what the user asked to send. A nil ReplyTo uses the composer's
// current reply target.
type Draft struct {
	Content    string
	Attachment *File
	ReplyTo    *message.ReplyRef
}

// Composer turns drafts into messages: optional upload, optimistic append,
// insert, then reconcile or mark failed.
type Composer struct {
	adapter transport.Adapter
	cfg     config.SyncConfig
	log     *logger.Logger
	now     func() time.Time
	current func() *conversation

	uploading atomic.Bool

	mu    sync.Mutex
	draft string
	reply *message.ReplyRef
}

func newComposer(adapter transport.Adapter, cfg config.SyncConfig, current func() *conversation, l *logger.Logger) *Composer {
	return &Composer{
		adapter: adapter,
		cfg:     cfg,
		log:     l,
		now:     time.Now,
		current: current,
	}
}

// Send delivers a draft to the active conversation. The returned message is
// the local entry as it stands when Send returns: confirmed on success,
// failed after an insert error. Nothing is created when validation or the
// upload fails.
func (c *Composer) Send(ctx context.Context, d Draft) (message.Message, error) {
	conv := c.current()
	if conv == nil {
		return message.Message{}, hola_errors.ErrNoActiveChat
	}
	if strings.TrimSpace(d.Content) == "" && d.Attachment == nil {
		return message.Message{}, fmt.Errorf("empty message: %w", hola_errors.ErrInvalidInput)
	}
	if c.uploading.Load() {
		return message.Message{}, hola_errors.ErrUploadInProgress
	}

	reply := d.ReplyTo
	if reply == nil {
		reply = c.ReplyTarget()
	}

	var att *message.Attachment
	if d.Attachment != nil {
		if !c.uploading.CompareAndSwap(false, true) {
			return message.Message{}, hola_errors.ErrUploadInProgress
		}
		var err error
		att, err = c.upload(ctx, conv.me, d.Attachment)
		c.uploading.Store(false)
		if err != nil {
			metrics.Sends.WithLabelValues("upload_failed").Inc()
			c.log.Warn("attachment upload failed", zap.String("file", d.Attachment.Name), zap.Error(err))
			return message.Message{}, err
		}
	}

	msg := message.Message{
		ID:            message.NewProvisionalID(),
		SenderID:      conv.me,
		ReceiverID:    conv.peer,
		Content:       d.Content,
		CreatedAt:     c.now(),
		Attachment:    att,
		ReplyTo:       reply,
		DeliveryState: message.StatePending,
	}
	before := conv.store.Len()
	if conv.store.Append(msg) {
		conv.window.NoteArrival(before)
	}
	conv.typing.Stop()
	c.clear()

	return c.deliver(ctx, conv, msg)
}

// Retry re-issues a failed send.
func (c *Composer) Retry(ctx context.Context, id string) (message.Message, error) {
	conv := c.current()
	if conv == nil {
		return message.Message{}, hola_errors.ErrNoActiveChat
	}
	msg, ok := conv.store.Get(id)
	if !ok {
		return message.Message{}, fmt.Errorf("message %s: %w", id, hola_errors.ErrNotFound)
	}
	if !conv.store.MarkPending(id) {
		return message.Message{}, fmt.Errorf("message %s is %s: %w", id, msg.DeliveryState, hola_errors.ErrInvalidInput)
	}
	msg.DeliveryState = message.StatePending
	return c.deliver(ctx, conv, msg)
}

func (c *Composer) deliver(ctx context.Context, conv *conversation, msg message.Message) (message.Message, error) {
	row, err := c.adapter.Insert(ctx, message.TableName, msg.InsertRow())
	if err != nil {
		conv.store.MarkFailed(msg.ID)
		metrics.Sends.WithLabelValues("failed").Inc()
		c.log.Warn("send failed", zap.String("id", msg.ID), zap.Error(err))
		msg.DeliveryState = message.StateFailed
		if errors.Is(err, hola_errors.ErrAuth) {
			return msg, err
		}
		return msg, hola_errors.Transport(err)
	}

	confirmed, err := message.FromRow(row)
	if err != nil {
		// The stream delivers the row and Merge reconciles it.
		c.log.Warn("undecodable insert response", zap.String("id", msg.ID), zap.Error(err))
		metrics.Sends.WithLabelValues("unconfirmed").Inc()
		return msg, nil
	}
	conv.store.Reconcile(msg.ID, confirmed)
	metrics.Sends.WithLabelValues("confirmed").Inc()
	if stored, ok := conv.store.Get(confirmed.ID); ok {
		return stored, nil
	}
	return confirmed, nil
}

func (c *Composer) upload(ctx context.Context, me string, f *File) (*message.Attachment, error) {
	limit := c.cfg.MaxUploadBytes
	if int64(len(f.Data)) > limit {
		return nil, hola_errors.Upload(fmt.Errorf("%s is %d bytes, limit %d: %w", f.Name, len(f.Data), limit, hola_errors.ErrTooLarge))
	}
	contentType := f.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(f.Name))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	path := AttachmentPath(me, f.Name, contentType, c.now())
	url, err := c.adapter.UploadFile(ctx, c.cfg.AttachmentBucket, path, f.Data, contentType)
	if err != nil {
		return nil, hola_errors.Upload(err)
	}
	return &message.Attachment{URL: url, MimeType: contentType}, nil
}

// AttachmentPath builds the object path "<uid>/<uid>-<unixms>.<ext>".
func AttachmentPath(userID, name, contentType string, at time.Time) string {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext == "" {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			ext = strings.TrimPrefix(exts[0], ".")
		}
	}
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s/%s-%d.%s", userID, userID, at.UnixMilli(), ext)
}

// Uploading reports whether an attachment upload is in flight.
func (c *Composer) Uploading() bool {
	return c.uploading.Load()
}

// SetDraft stores the draft text and counts as a keystroke.
func (c *Composer) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()

	if conv := c.current(); conv != nil && text != "" {
		conv.typing.Touch()
	}
}

func (c *Composer) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// SetReplyTarget quotes a resident message. The content is snapshotted now.
func (c *Composer) SetReplyTarget(messageID string) error {
	conv := c.current()
	if conv == nil {
		return hola_errors.ErrNoActiveChat
	}
	target, ok := conv.store.Get(messageID)
	if !ok {
		return fmt.Errorf("message %s: %w", messageID, hola_errors.ErrNotFound)
	}
	c.mu.Lock()
	c.reply = &message.ReplyRef{TargetMessageID: target.ID, SnapshotContent: target.Content}
	c.mu.Unlock()
	return nil
}

func (c *Composer) CancelReply() {
	c.mu.Lock()
	c.reply = nil
	c.mu.Unlock()
}

func (c *Composer) ReplyTarget() *message.ReplyRef {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reply == nil {
		return nil
	}
	r := *c.reply
	return &r
}

func (c *Composer) clear() {
	c.mu.Lock()
	c.draft = ""
	c.reply = nil
	c.mu.Unlock()
}
