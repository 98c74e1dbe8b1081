package services

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/babynest/backend/internal/models"
	"github.com/babynest/backend/internal/repositories"
	"github.com/babynest/backend/pkg/logger"
)

const maxChatMessageRunes = 2000

var angleBrackets = strings.NewReplacer("<", "", ">", "")

// SanitizeChatMessage removes angle brackets and surrounding whitespace.
func SanitizeChatMessage(s string) string {
	return strings.TrimSpace(angleBrackets.Replace(s))
}

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// JoinRoomPayload is the data of a joinRoom event.
type JoinRoomPayload struct {
	Room string `json:"room"`
}

// ChatMessagePayload is the data of a chatMessage event.
type ChatMessagePayload struct {
	Room    string `json:"room"`
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// ChatService implements the chat events on top of the hub and message store.
type ChatService struct {
	hub         *Hub
	messages    repositories.MessageStore
	broadcaster Broadcaster
	partners    PartnerCache
	now         func() time.Time
}

// NewChatService wires the chat flow. partners may be nil.
func NewChatService(hub *Hub, messages repositories.MessageStore, broadcaster Broadcaster, partners PartnerCache) *ChatService {
	return &ChatService{
		hub:         hub,
		messages:    messages,
		broadcaster: broadcaster,
		partners:    partners,
		now:         time.Now,
	}
}

// HandleFrame decodes one inbound socket frame and dispatches it.
func (s *ChatService) HandleFrame(ctx context.Context, c *Client, raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.Enqueue(errorEvent("malformed frame"))
		return
	}
	switch frame.Event {
	case EventJoinRoom:
		var p JoinRoomPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			c.Enqueue(errorEvent("malformed joinRoom payload"))
			return
		}
		s.Join(ctx, c, p)
	case EventChatMessage:
		var p ChatMessagePayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			c.Enqueue(errorEvent("malformed chatMessage payload"))
			return
		}
		s.Send(ctx, c, p)
	default:
		c.Enqueue(errorEvent("unknown event"))
	}
}

// Join adds c to the room and replies with the room history, oldest first.
func (s *ChatService) Join(ctx context.Context, c *Client, p JoinRoomPayload) {
	key, err := ParseRoomKey(p.Room)
	if err != nil {
		c.Enqueue(errorEvent(err.Error()))
		return
	}
	room := key.String()
	s.hub.Join(c, room)

	history, err := s.messages.History(ctx, room)
	if err != nil {
		logger.Error("chat: failed to load history", "room", room, "error", err)
		c.Enqueue(errorEvent("failed to load previous messages"))
		return
	}
	if history == nil {
		history = []models.Message{}
	}
	c.Enqueue(Event{Name: EventPreviousMessages, Data: history})
}

// Send persists a message and then broadcasts it to the room. Nothing is
// broadcast when persisting fails; the sender gets an error event instead.
func (s *ChatService) Send(ctx context.Context, c *Client, p ChatMessagePayload) {
	key, err := ParseRoomKey(p.Room)
	if err != nil {
		c.Enqueue(errorEvent(err.Error()))
		return
	}
	if p.Sender != c.UserID {
		c.Enqueue(errorEvent("sender does not match authenticated user"))
		return
	}
	if !key.Has(p.Sender) {
		c.Enqueue(errorEvent("sender is not a participant of this room"))
		return
	}
	if !c.Allow() {
		c.Enqueue(errorEvent("rate limit exceeded"))
		return
	}
	text := SanitizeChatMessage(p.Message)
	if text == "" {
		c.Enqueue(errorEvent("message is empty"))
		return
	}
	if utf8.RuneCountInString(text) > maxChatMessageRunes {
		c.Enqueue(errorEvent("message is too long"))
		return
	}

	msg := &models.Message{
		Room:      key.String(),
		Sender:    p.Sender,
		Message:   text,
		Timestamp: s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.messages.Insert(ctx, msg); err != nil {
		logger.Error("chat: failed to persist message", "room", msg.Room, "sender", msg.Sender, "error", err)
		c.Enqueue(errorEvent("failed to send message"))
		return
	}
	if s.partners != nil {
		s.partners.Invalidate(ctx, msg.Sender)
	}
	if err := s.broadcaster.Publish(ctx, *msg); err != nil {
		logger.Error("chat: failed to broadcast message", "room", msg.Room, "error", err)
	}
}

// Connect registers a new socket client for userID.
func (s *ChatService) Connect(userID string) *Client {
	c := NewClient(userID)
	s.hub.Register(c)
	return c
}

// Disconnect removes c from all rooms, forgets it and closes it.
func (s *ChatService) Disconnect(c *Client) {
	s.hub.Unregister(c)
	c.Close()
}

// PreviousPartners lists the distinct users userID has sent messages to,
// sorted. Rooms whose key cannot be parsed are skipped.
func (s *ChatService) PreviousPartners(ctx context.Context, userID string) ([]string, error) {
	if !ValidParticipantID(userID) {
		return nil, ErrInvalidParticipant
	}
	var version int64
	cacheable := false
	if s.partners != nil {
		if cached, ok := s.partners.Get(ctx, userID); ok {
			return cached, nil
		}
		version, cacheable = s.partners.Version(ctx, userID)
	}

	rooms, err := s.messages.RoomsBySender(ctx, userID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(rooms))
	partners := make([]string, 0, len(rooms))
	for _, room := range rooms {
		key, err := ParseRoomKey(room)
		if err != nil {
			logger.Warn("chat: skipping malformed room key", "room", room)
			continue
		}
		other, ok := key.Other(userID)
		if !ok {
			continue
		}
		if _, dup := seen[other]; dup {
			continue
		}
		seen[other] = struct{}{}
		partners = append(partners, other)
	}
	sort.Strings(partners)

	if cacheable {
		s.partners.Set(ctx, userID, version, partners)
	}
	return partners, nil
}
