package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"hola-chat/internal/events"
	hola_errors "hola-chat/pkg/errors"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait = 5 * time.Second
	pongWait  = 60 * time.Second
)

// socket is one acknowledged gateway connection with a single reader
// goroutine. Close is idempotent and waits for the reader.
type socket struct {
	conn     *websocket.Conn
	done     chan struct{}
	finished chan struct{}
	once     sync.Once

	mu  sync.Mutex
	err error
}

// dial opens a gateway stream and waits for its subscribed ack.
func (c *Client) dial(ctx context.Context, token string, query url.Values) (*socket, error) {
	u, err := url.Parse(c.opts.RealtimeURL)
	if err != nil {
		return nil, fmt.Errorf("%w: realtime url: %w", hola_errors.ErrInvalidInput, err)
	}
	q := u.Query()
	for k, v := range query {
		q[k] = v
	}
	q.Set("token", token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("X-Request-Id", uuid.NewString())

	conn, resp, err := c.opts.Dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, hola_errors.ErrAuth
		}
		if resp != nil {
			return nil, hola_errors.Transport(fmt.Errorf("realtime handshake: %s", resp.Status))
		}
		return nil, hola_errors.Transport(err)
	}

	if err := awaitAck(ctx, conn, c.opts.AckTimeout); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &socket{conn: conn, done: make(chan struct{}), finished: make(chan struct{})}, nil
}

func awaitAck(ctx context.Context, conn *websocket.Conn, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	var frame events.Frame
	if err := conn.ReadJSON(&frame); err != nil {
		return hola_errors.Transport(fmt.Errorf("waiting for subscribe ack: %w", err))
	}
	switch frame.Type {
	case events.ControlSubscribed:
		return nil
	case events.ControlError:
		return hola_errors.Transport(fmt.Errorf("subscribe rejected: %s", frame.Error))
	default:
		return hola_errors.Transport(fmt.Errorf("unexpected first frame %q", frame.Type))
	}
}

// run reads frames until the connection ends, Close is called or handle
// returns an error. It must be started exactly once.
func (s *socket) run(handle func(data []byte) error, onExit func()) {
	defer close(s.finished)
	defer onExit()

	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPingHandler(func(data string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(err)
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		if err := handle(data); err != nil {
			s.fail(err)
			return
		}
	}
}

// control decodes gateway control frames. It reports whether data was one.
func control(data []byte) (bool, error) {
	var c events.Control
	if err := json.Unmarshal(data, &c); err != nil {
		return false, nil
	}
	switch c.Type {
	case events.ControlSubscribed:
		return true, nil
	case events.ControlError:
		return true, hola_errors.Transport(fmt.Errorf("gateway: %s", c.Error))
	}
	return false, nil
}

func (s *socket) fail(err error) {
	select {
	case <-s.done:
		return
	default:
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		err = errors.New("stream closed by gateway")
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = hola_errors.Transport(err)
	}
	s.mu.Unlock()
}

// Err is nil while the stream is live and after Close.
func (s *socket) Err() error {
	select {
	case <-s.done:
		return nil
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *socket) Close() error {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		_ = s.conn.Close()
	})
	<-s.finished
	return nil
}
