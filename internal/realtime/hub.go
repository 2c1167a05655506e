package realtime

import (
	"context"
	"errors"
	"sync"

	"hola-chat/internal/metrics"
)

var errHubStopped = errors.New("realtime hub stopped")

// subscriptionRequest represents a channel subscription/unsubscription request
type subscriptionRequest struct {
	client    *Client
	channel   string
	subscribe bool
	// ack is queued to the client under the hub lock, so it precedes every
	// broadcast the subscription receives.
	ack  []byte
	done chan struct{}
}

// Hub manages websocket client connections and channel subscriptions
type Hub struct {
	mu sync.RWMutex

	clients  map[string]*Client
	channels map[string]map[*Client]struct{}

	unregister   chan *Client
	subscription chan subscriptionRequest
	stopped      chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:      make(map[string]*Client),
		channels:     make(map[string]map[*Client]struct{}),
		unregister:   make(chan *Client, 256),
		subscription: make(chan subscriptionRequest, 512),
		stopped:      make(chan struct{}),
	}
}

// Run starts the hub's event loop
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.unregister:
			h.removeClient(client)
		case req := <-h.subscription:
			if req.subscribe {
				h.subscribeToChannel(req.client, req.channel, req.ack)
			} else {
				h.unsubscribeFromChannel(req.client, req.channel)
			}
			if req.done != nil {
				close(req.done)
			}
		}
	}
}

// Register adds client synchronously so that a following Subscribe always
// finds it.
func (h *Hub) Register(client *Client) {
	h.addClient(client)
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
	}
}

// Subscribe subscribes client to channel and waits until the subscription
// is live. ack, when set, is the first frame the subscription delivers.
func (h *Hub) Subscribe(ctx context.Context, client *Client, channel string, ack []byte) error {
	req := subscriptionRequest{client: client, channel: channel, subscribe: true, ack: ack, done: make(chan struct{})}
	select {
	case h.subscription <- req:
	case <-h.stopped:
		return errHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.done:
		return nil
	case <-h.stopped:
		return errHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Unsubscribe(client *Client, channel string) {
	select {
	case h.subscription <- subscriptionRequest{client: client, channel: channel}:
	case <-h.stopped:
	}
}

// Broadcast sends a message to all clients subscribed to a channel
func (h *Hub) Broadcast(channel string, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := h.channels[channel]
	for c := range clients {
		c.SendMessage(payload)
	}
	return len(clients)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
	metrics.GatewayClients.Inc()
}

// removeClient drops a client and all its subscriptions, then closes its
// send queue.
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	for _, channel := range client.Channels() {
		if subscribers, ok := h.channels[channel]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.channels, channel)
			}
		}
	}
	delete(h.clients, client.ID)
	close(client.Send)
	metrics.GatewayClients.Dec()
}

func (h *Hub) subscribeToChannel(client *Client, channel string, ack []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	if _, ok := h.channels[channel]; !ok {
		h.channels[channel] = make(map[*Client]struct{})
	}
	h.channels[channel][client] = struct{}{}
	client.Subscribe(channel)
	if ack != nil {
		client.SendMessage(ack)
	}
}

func (h *Hub) unsubscribeFromChannel(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subscribers, ok := h.channels[channel]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.channels, channel)
		}
	}
	client.Unsubscribe(channel)
}
