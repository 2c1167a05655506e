package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"hola-chat/internal/domain/message"
	"hola-chat/internal/events"
	"hola-chat/internal/middleware"
	"hola-chat/internal/transport/httpdto"
	hola_errors "hola-chat/pkg/errors"
	"hola-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// TypingReader lists the users currently typing in a conversation.
type TypingReader interface {
	TypingUsers(ctx context.Context, key message.ConversationKey) ([]string, error)
}

type Handler struct {
	hub        *Hub
	authorizer *ChannelAuthorizer
	typing     TypingReader
	log        *logger.Logger
	upgrader   websocket.Upgrader
}

func NewHandler(hub *Hub, authorizer *ChannelAuthorizer, typing TypingReader, l *logger.Logger) *Handler {
	if l == nil {
		l = logger.Nop()
	}
	return &Handler{
		hub:        hub,
		authorizer: authorizer,
		typing:     typing,
		log:        l.Named("realtime"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Connect upgrades to a websocket bound to one channel and streams its
// frames until either side hangs up. The first frame is a subscribed ack.
func (h *Handler) Connect(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	channel, label, err := h.authorizer.Resolve(userID, c.Query("table"), c.Query("typing"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	// The upgrade writes its own response, so the id has to be passed along.
	respHeader := http.Header{}
	if id := middleware.RequestID(c); id != "" {
		respHeader.Set(middleware.RequestIDHeader, id)
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, respHeader)
	if err != nil {
		return
	}

	ctx := c.Request.Context()
	if peer := c.Query("typing"); peer != "" {
		ctx = context.WithValue(ctx, logger.PeerIdKey, peer)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	log := h.log.WithContext(ctx).With(zap.String("channel", channel))
	client := NewClient(conn, userID)

	h.hub.Register(client)
	defer h.hub.Unregister(client)
	go client.WriteLoop(ctx)

	ack, _ := json.Marshal(events.Control{Type: events.ControlSubscribed, Table: label})
	if err := h.hub.Subscribe(ctx, client, channel, ack); err != nil {
		log.Warn("subscribe failed", zap.Error(err))
		return
	}
	log.Debug("client subscribed", zap.String("ack", label))

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	log.Debug("client disconnected")
}

// Typing reports who is typing in the conversation with :peer.
func (h *Handler) Typing(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	peer := c.Param("peer")
	if peer == "" || peer == userID {
		_ = c.Error(hola_errors.ErrInvalidInput)
		return
	}
	if h.typing == nil {
		_ = c.Error(hola_errors.ErrServiceUnavailable)
		return
	}
	users, err := h.typing.TypingUsers(c.Request.Context(), message.NewConversationKey(userID, peer))
	if err != nil {
		_ = c.Error(err)
		return
	}
	if users == nil {
		users = []string{}
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"users": users}))
}
