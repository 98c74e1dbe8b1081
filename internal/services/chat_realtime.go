package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/babynest/backend/internal/models"
	"github.com/babynest/backend/pkg/logger"
)

// Event names exchanged over the chat socket.
const (
	EventJoinRoom         = "joinRoom"
	EventChatMessage      = "chatMessage"
	EventPreviousMessages = "previousMessages"
	EventMessage          = "message"
	EventError            = "error"
)

const (
	defaultSendBuffer   = 64
	chatMessagesPerSec  = 5
	chatMessageBurst    = 10
	chatRoomChannelBase = "chat:room:"
)

// Event is one frame on the chat socket.
type Event struct {
	Name string      `json:"event"`
	Data interface{} `json:"data"`
}

// ErrorPayload is the data of an error event.
type ErrorPayload struct {
	Message string `json:"message"`
}

func errorEvent(msg string) Event {
	return Event{Name: EventError, Data: ErrorPayload{Message: msg}}
}

// Client is one live socket. Outbound events are queued on a bounded channel
// drained by the connection's writer; a full queue marks the client as too slow.
type Client struct {
	ID     string
	UserID string

	send      chan Event
	done      chan struct{}
	closeOnce sync.Once
	limiter   *rate.Limiter
}

func NewClient(userID string) *Client {
	return &Client{
		ID:      uuid.NewString(),
		UserID:  userID,
		send:    make(chan Event, defaultSendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(chatMessagesPerSec), chatMessageBurst),
	}
}

// Outbound is drained by the connection writer.
func (c *Client) Outbound() <-chan Event {
	return c.send
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Enqueue queues evt without blocking. It reports false when the client is
// closed or its queue is full.
func (c *Client) Enqueue(evt Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- evt:
		return true
	default:
		return false
	}
}

// Allow reports whether the client may send another message now.
func (c *Client) Allow() bool {
	return c.limiter.Allow()
}

func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Hub tracks the live local clients and which rooms they have joined.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	joins   map[*Client]map[string]struct{}
	closed  bool
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		joins:   make(map[*Client]map[string]struct{}),
	}
}

// Register records a connected client. After CloseAll the client is closed
// straight away.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister forgets c and drops it from every room.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveAll(c)
	delete(h.clients, c)
}

// Connected returns the number of registered clients.
func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Join is idempotent.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	rooms, ok := h.joins[c]
	if !ok {
		rooms = make(map[string]struct{})
		h.joins[c] = rooms
	}
	rooms[room] = struct{}{}
}

// Leave drops c from one room.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(c, room)
}

func (h *Hub) leave(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms, ok := h.joins[c]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(h.joins, c)
		}
	}
}

// LeaveAll drops c from every room it joined.
func (h *Hub) LeaveAll(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveAll(c)
}

func (h *Hub) leaveAll(c *Client) {
	for room := range h.joins[c] {
		h.leave(c, room)
	}
}

// CloseAll disconnects every registered or joined client and refuses new
// registrations. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients)+len(h.joins))
	for c := range h.clients {
		clients = append(clients, c)
	}
	for c := range h.joins {
		if _, ok := h.clients[c]; !ok {
			clients = append(clients, c)
		}
	}
	h.closed = true
	h.clients = make(map[*Client]struct{})
	h.rooms = make(map[string]map[*Client]struct{})
	h.joins = make(map[*Client]map[string]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}

// Members returns the number of local clients in room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast delivers evt to every local client in room and returns how many
// accepted it. Clients that cannot keep up are removed and closed.
func (h *Hub) Broadcast(room string, evt Event) int {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range members {
		if c.Enqueue(evt) {
			delivered++
			continue
		}
		logger.Warn("chat: dropping slow client", "client", c.ID, "user", c.UserID, "room", room)
		h.LeaveAll(c)
		c.Close()
	}
	return delivered
}

// Broadcaster fans a persisted message out to everyone in its room.
type Broadcaster interface {
	Publish(ctx context.Context, msg models.Message) error
}

// LocalBroadcaster delivers to clients connected to this instance only.
type LocalBroadcaster struct {
	hub *Hub
}

func NewLocalBroadcaster(hub *Hub) *LocalBroadcaster {
	return &LocalBroadcaster{hub: hub}
}

func (b *LocalBroadcaster) Publish(_ context.Context, msg models.Message) error {
	b.hub.Broadcast(msg.Room, Event{Name: EventMessage, Data: msg})
	return nil
}

// RedisBroadcaster relays messages through Redis pub/sub so every instance
// delivers to its own clients. Run must be started once per instance.
type RedisBroadcaster struct {
	client *redis.Client
	hub    *Hub
}

func NewRedisBroadcaster(client *redis.Client, hub *Hub) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, hub: hub}
}

// Publish falls back to local delivery when Redis is unreachable.
func (b *RedisBroadcaster) Publish(ctx context.Context, msg models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, chatRoomChannelBase+msg.Room, data).Err(); err != nil {
		logger.Error("chat: redis publish failed, delivering locally", "room", msg.Room, "error", err)
		b.hub.Broadcast(msg.Room, Event{Name: EventMessage, Data: msg})
	}
	return nil
}

// Run consumes the room channels until ctx is cancelled, resubscribing with
// backoff after errors.
func (b *RedisBroadcaster) Run(ctx context.Context) {
	backoff := time.Second
	for ctx.Err() == nil {
		if b.consume(ctx) {
			backoff = time.Second
		}
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

// consume reports whether at least one message was received before failing.
func (b *RedisBroadcaster) consume(ctx context.Context) bool {
	pubsub := b.client.PSubscribe(ctx, chatRoomChannelBase+"*")
	// ReceiveMessage does not watch ctx; closing the subscription unblocks it.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = pubsub.Close()
	}()

	logger.Info("chat: redis subscriber started", "pattern", chatRoomChannelBase+"*")
	received := false
	for {
		m, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("chat: redis subscriber error", "error", err)
			}
			return received
		}
		received = true

		var msg models.Message
		if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
			logger.Warn("chat: bad relay payload", "channel", m.Channel, "error", err)
			continue
		}
		room := strings.TrimPrefix(m.Channel, chatRoomChannelBase)
		b.hub.Broadcast(room, Event{Name: EventMessage, Data: msg})
	}
}
