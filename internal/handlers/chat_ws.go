package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/babynest/backend/internal/middleware"
	"github.com/babynest/backend/internal/services"
	"github.com/babynest/backend/pkg/logger"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 16 * 1024
)

// ChatHandler serves the chat socket and the chat REST endpoints.
type ChatHandler struct {
	chat     *services.ChatService
	auth     middleware.Authenticator
	upgrader websocket.Upgrader
}

// NewChatHandler builds the gateway. Browser sockets must come from one of
// allowedOrigins; requests without an Origin header are accepted.
func NewChatHandler(chat *services.ChatService, auth middleware.Authenticator, allowedOrigins []string) *ChatHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return &ChatHandler{
		chat: chat,
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				_, ok := allowed[strings.ToLower(u.Scheme+"://"+u.Host)]
				return ok
			},
		},
	}
}

// ServeWS handles GET /ws/chat. Browsers cannot set headers on a socket, so
// the token may also come from the "token" query parameter.
func (h *ChatHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	sess, err := h.auth.Authenticate(r.Context(), token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !services.ValidParticipantID(sess.UserID) {
		writeError(w, http.StatusBadRequest, "account cannot use chat")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := h.chat.Connect(sess.UserID)
	logger.Debug("chat: client connected", "client", client.ID, "user", sess.UserID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		writePump(conn, client)
	}()
	readPump(ctx, conn, client, h.chat)

	h.chat.Disconnect(client)
	<-done
	logger.Debug("chat: client disconnected", "client", client.ID, "user", sess.UserID)
}

// readPump feeds inbound frames to the chat service until the socket fails
// or the client is closed.
func readPump(ctx context.Context, conn *websocket.Conn, client *services.Client, chat *services.ChatService) {
	conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Debug("chat: read error", "client", client.ID, "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		chat.HandleFrame(ctx, client, data)
	}
}

// writePump is the only writer on conn. It owns closing the socket.
func writePump(conn *websocket.Conn, client *services.Client) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case evt := <-client.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(evt); err != nil {
				client.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.Close()
				return
			}
		case <-client.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
