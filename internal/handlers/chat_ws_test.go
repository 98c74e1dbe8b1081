package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/babynest/backend/internal/models"
	"github.com/babynest/backend/internal/repositories"
	"github.com/babynest/backend/internal/services"
)

type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type chatFixture struct {
	server *httptest.Server
	auth   *services.AuthService
	hub    *services.Hub
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	users := repositories.NewInMemoryUserStore()
	auth := services.NewAuthService(users, services.NewTokenManager("ws-secret", time.Hour), services.NewMemoryTokenRevoker(), nil)
	hub := services.NewHub()
	chat := services.NewChatService(hub, repositories.NewInMemoryMessageStore(), services.NewLocalBroadcaster(hub), nil)
	h := NewChatHandler(chat, auth, []string{"http://localhost:3000"})

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(func() {
		hub.CloseAll()
		srv.Close()
	})
	return &chatFixture{server: srv, auth: auth, hub: hub}
}

func (f *chatFixture) register(t *testing.T, email string) *services.AuthResult {
	t.Helper()
	res, err := f.auth.Register(context.Background(), services.RegisterInput{Email: email, Password: "secret123"})
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return res
}

func (f *chatFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/chat?token=" + url.QueryEscape(token)
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v (resp %v)", err, resp)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"event": event, "data": data}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func expect(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f wsFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read (want %s): %v", event, err)
	}
	if f.Event != event {
		t.Fatalf("event = %s %s, want %s", f.Event, f.Data, event)
	}
	return f.Data
}

func TestChatSocketEndToEnd(t *testing.T) {
	f := newChatFixture(t)
	alice := f.register(t, "alice@example.com")
	bob := f.register(t, "bob@example.com")
	// Either order names the same room.
	room := bob.User.ID + "_" + alice.User.ID

	a := f.dial(t, alice.AccessToken)
	send(t, a, services.EventJoinRoom, map[string]string{"room": room})
	if got := string(expect(t, a, services.EventPreviousMessages)); got != "[]" {
		t.Fatalf("initial history = %s, want []", got)
	}

	b := f.dial(t, bob.AccessToken)
	send(t, b, services.EventJoinRoom, map[string]string{"room": alice.User.ID + "_" + bob.User.ID})
	expect(t, b, services.EventPreviousMessages)

	send(t, a, services.EventChatMessage, map[string]string{
		"room": room, "sender": alice.User.ID, "message": "  <b>hello</b> ",
	})
	for _, conn := range []*websocket.Conn{a, b} {
		var msg models.Message
		if err := json.Unmarshal(expect(t, conn, services.EventMessage), &msg); err != nil {
			t.Fatalf("decode message: %v", err)
		}
		if msg.Message != "bhello/b" || msg.Sender != alice.User.ID {
			t.Fatalf("message = %+v", msg)
		}
	}

	// Bob cannot speak for Alice.
	send(t, b, services.EventChatMessage, map[string]string{
		"room": room, "sender": alice.User.ID, "message": "spoof",
	})
	var errPayload services.ErrorPayload
	if err := json.Unmarshal(expect(t, b, services.EventError), &errPayload); err != nil || errPayload.Message == "" {
		t.Fatalf("error payload = %+v, %v", errPayload, err)
	}

	// A fresh connection sees the stored history.
	again := f.dial(t, alice.AccessToken)
	send(t, again, services.EventJoinRoom, map[string]string{"room": room})
	var history []models.Message
	if err := json.Unmarshal(expect(t, again, services.EventPreviousMessages), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) != 1 || history[0].Message != "bhello/b" {
		t.Fatalf("history = %+v", history)
	}
}

func TestChatSocketRejectsBadHandshake(t *testing.T) {
	f := newChatFixture(t)
	alice := f.register(t, "alice@example.com")
	base := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/chat"

	tests := []struct {
		name   string
		url    string
		header http.Header
		status int
	}{
		{"no token", base, nil, http.StatusUnauthorized},
		{"bad token", base + "?token=garbage", nil, http.StatusUnauthorized},
		{"foreign origin", base + "?token=" + alice.AccessToken, http.Header{"Origin": {"https://evil.example"}}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := websocket.DefaultDialer.Dial(tt.url, tt.header)
			if err == nil {
				_ = conn.Close()
				t.Fatal("handshake succeeded")
			}
			if resp == nil || resp.StatusCode != tt.status {
				t.Fatalf("resp = %v, want status %d", resp, tt.status)
			}
		})
	}
}

func TestChatSocketAcceptsBearerHeaderAndAllowedOrigin(t *testing.T) {
	f := newChatFixture(t)
	alice := f.register(t, "alice@example.com")
	u := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/chat"

	conn, _, err := websocket.DefaultDialer.Dial(u, http.Header{
		"Authorization": {"Bearer " + alice.AccessToken},
		"Origin":        {"http://localhost:3000"},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	send(t, conn, "dance", nil)
	expect(t, conn, services.EventError)
}

func TestChatSocketClosedOnShutdownWithoutJoin(t *testing.T) {
	f := newChatFixture(t)
	alice := f.register(t, "alice@example.com")
	conn := f.dial(t, alice.AccessToken)

	// A round trip proves the server side is registered.
	send(t, conn, "dance", nil)
	expect(t, conn, services.EventError)

	f.hub.CloseAll()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("socket still open after CloseAll")
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		t.Fatal("socket not closed by CloseAll")
	}
}
