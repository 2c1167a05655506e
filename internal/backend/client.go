// Package backend is the production transport.Adapter: rows go through the
// table repository, files to object storage and the change stream over the
// realtime gateway's websocket.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"hola-chat/internal/transport"
	hola_errors "hola-chat/pkg/errors"
	"hola-chat/pkg/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type RowStore interface {
	Query(ctx context.Context, table string, filter transport.Filter, order transport.Order) ([]transport.Row, error)
	Insert(ctx context.Context, table string, row transport.Row) (transport.Row, error)
	Update(ctx context.Context, table string, filter transport.Filter, patch transport.Row) error
}

type FileStore interface {
	Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)
}

type SessionSource interface {
	Session(token string) (*transport.Session, error)
}

type Options struct {
	AccessToken string
	RealtimeURL string
	Dialer      *websocket.Dialer
	AckTimeout  time.Duration
	Logger      *logger.Logger
}

type Client struct {
	rows     RowStore
	files    FileStore
	sessions SessionSource
	opts     Options
	log      *logger.Logger
}

var _ transport.Adapter = (*Client)(nil)

func NewClient(rows RowStore, files FileStore, sessions SessionSource, opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Client{rows: rows, files: files, sessions: sessions, opts: opts, log: opts.Logger.Named("backend")}
}

// GetSession resolves the configured access token. No token means signed
// out; an unusable one is ErrAuth.
func (c *Client) GetSession(ctx context.Context) (*transport.Session, error) {
	if c.opts.AccessToken == "" {
		return nil, nil
	}
	session, err := c.sessions.Session(c.opts.AccessToken)
	if err != nil {
		return nil, err
	}
	if !session.ExpiresAt.IsZero() && time.Now().After(session.ExpiresAt) {
		return nil, hola_errors.ErrAuth
	}
	return session, nil
}

func (c *Client) requireSession(ctx context.Context) (*transport.Session, error) {
	session, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, hola_errors.ErrAuth
	}
	return session, nil
}

func (c *Client) Query(ctx context.Context, table string, filter transport.Filter, order transport.Order) ([]transport.Row, error) {
	if _, err := c.requireSession(ctx); err != nil {
		return nil, err
	}
	rows, err := c.rows.Query(ctx, table, filter, order)
	if err != nil {
		return nil, hola_errors.Transport(err)
	}
	return rows, nil
}

func (c *Client) Insert(ctx context.Context, table string, row transport.Row) (transport.Row, error) {
	if _, err := c.requireSession(ctx); err != nil {
		return nil, err
	}
	inserted, err := c.rows.Insert(ctx, table, row)
	if err != nil {
		return nil, hola_errors.Transport(err)
	}
	return inserted, nil
}

func (c *Client) Update(ctx context.Context, table string, filter transport.Filter, patch transport.Row) error {
	if _, err := c.requireSession(ctx); err != nil {
		return err
	}
	if err := c.rows.Update(ctx, table, filter, patch); err != nil {
		return hola_errors.Transport(err)
	}
	return nil
}

func (c *Client) UploadFile(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	if _, err := c.requireSession(ctx); err != nil {
		return "", err
	}
	if c.files == nil {
		return "", hola_errors.Transport(errors.New("object storage not configured"))
	}
	fileURL, err := c.files.Upload(ctx, bucket, path, data, contentType)
	if err != nil {
		return "", hola_errors.Transport(err)
	}
	return fileURL, nil
}

// Subscribe opens a table change stream. It returns after the gateway has
// acknowledged the subscription, so no later write is missed.
func (c *Client) Subscribe(ctx context.Context, table string, types []transport.EventType) (transport.StreamHandle, error) {
	session, err := c.requireSession(ctx)
	if err != nil {
		return nil, err
	}
	s, err := c.dial(ctx, session.AccessToken, url.Values{"table": {table}})
	if err != nil {
		c.log.Debug("subscribe failed", zap.String("table", table), zap.Error(err))
		return nil, err
	}
	c.log.Debug("subscribed", zap.String("table", table))
	return newStream(s, table, types), nil
}

// WatchTyping streams the typing events peer emits in the conversation
// with the signed-in user.
func (c *Client) WatchTyping(ctx context.Context, peer string) (*TypingWatch, error) {
	session, err := c.requireSession(ctx)
	if err != nil {
		return nil, err
	}
	if peer == "" || peer == session.UserID {
		return nil, fmt.Errorf("%w: typing peer", hola_errors.ErrInvalidInput)
	}
	s, err := c.dial(ctx, session.AccessToken, url.Values{"typing": {peer}})
	if err != nil {
		return nil, err
	}
	return newTypingWatch(s, session.UserID), nil
}
