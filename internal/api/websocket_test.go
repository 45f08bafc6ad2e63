package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-relay/internal/auth"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/relay"
)

func testHub(t *testing.T, sendBuffer int) *Hub {
	t.Helper()
	hub := NewHub(config.WebSocketConfig{SendBuffer: sendBuffer}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func testEvent(name, payload string) relay.Event {
	return relay.Event{
		Name:       name,
		Topic:      "esp8266/" + name,
		Payload:    json.RawMessage(payload),
		ReceivedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// ─── Hub ───────────────────────────────────────────────────────────

func TestHub_BroadcastToJoined(t *testing.T) {
	hub := testHub(t, 4)

	client := hub.newClient(nil, auth.Session{})
	hub.Join(client)

	hub.Broadcast(testEvent("status", `{"temp":22.5,"note":"<ok> & fine"}`))

	select {
	case msg := <-client.send:
		want := `{"type":"event","event_type":"status","timestamp":"2026-01-01T00:00:00Z","payload":{"temp":22.5,"note":"<ok> & fine"}}`
		if string(msg) != want {
			t.Errorf("frame = %s\nwant    %s", msg, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast message")
	}
}

func TestHub_JoinIsNotRetroactive(t *testing.T) {
	hub := testHub(t, 4)

	hub.Broadcast(testEvent("client", `{"relay":1}`))

	client := hub.newClient(nil, auth.Session{})
	hub.Join(client)

	select {
	case msg := <-client.send:
		t.Errorf("late joiner received %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_EveryClientSeesBroadcastOrder(t *testing.T) {
	const (
		clients = 3
		events  = 40
	)
	hub := testHub(t, events)

	joined := make([]*WSClient, clients)
	for i := range joined {
		joined[i] = hub.newClient(nil, auth.Session{})
		hub.Join(joined[i])
	}

	// A then B on one topic, interleaved with a second topic.
	var want []string
	for i := range events {
		name := "status"
		if i%2 == 1 {
			name = "client"
		}
		payload := fmt.Sprintf(`{"seq":%d}`, i)
		hub.Broadcast(testEvent(name, payload))
		want = append(want, name+" "+payload)
	}

	for c, client := range joined {
		for i := range events {
			var msg []byte
			select {
			case msg = <-client.send:
			case <-time.After(time.Second):
				t.Fatalf("client %d: timed out at frame %d", c, i)
			}

			var frame WSMessage
			if err := json.Unmarshal(msg, &frame); err != nil {
				t.Fatalf("client %d: decoding %s: %v", c, msg, err)
			}
			if got := frame.EventType + " " + string(frame.Payload); got != want[i] {
				t.Fatalf("client %d frame %d = %s, want %s", c, i, got, want[i])
			}
		}
	}
}

func TestHub_LeaveIsIdempotent(t *testing.T) {
	hub := testHub(t, 4)

	client := hub.newClient(nil, auth.Session{})
	hub.Join(client)
	if hub.ClientCount() != 1 {
		t.Fatalf("after join count = %d, want 1", hub.ClientCount())
	}

	hub.Leave(client)
	hub.Leave(client)

	if hub.ClientCount() != 0 {
		t.Errorf("after leave count = %d, want 0", hub.ClientCount())
	}
	if _, ok := <-client.send; ok {
		t.Error("send channel still open after Leave")
	}

	// A client that never joined can leave too.
	hub.Leave(hub.newClient(nil, auth.Session{}))
}

func TestHub_SlowClientEvicted(t *testing.T) {
	hub := testHub(t, 1)

	slow := hub.newClient(nil, auth.Session{})
	fast := hub.newClient(nil, auth.Session{})
	hub.Join(slow)
	hub.Join(fast)

	hub.Broadcast(testEvent("status", `{"n":1}`))
	<-fast.send

	hub.Broadcast(testEvent("status", `{"n":2}`))

	if hub.ClientCount() != 1 {
		t.Errorf("count = %d, want 1 after eviction", hub.ClientCount())
	}
	if hub.Evicted() != 1 {
		t.Errorf("Evicted() = %d, want 1", hub.Evicted())
	}
	select {
	case msg := <-fast.send:
		if !bytes.Contains(msg, []byte(`{"n":2}`)) {
			t.Errorf("fast client got %s, want n=2", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("fast client missed the second event")
	}

	// The slow client keeps the frame it had and then sees the close.
	if _, ok := <-slow.send; !ok {
		t.Fatal("slow client lost its queued frame")
	}
	if _, ok := <-slow.send; ok {
		t.Error("slow client's send channel not closed")
	}
}

func TestHub_ConcurrentJoinLeave(t *testing.T) {
	hub := testHub(t, 8)

	const n = 50
	clients := make([]*WSClient, n)
	for i := range clients {
		clients[i] = hub.newClient(nil, auth.Session{})
	}

	stop := make(chan struct{})
	var bwg sync.WaitGroup
	bwg.Add(1)
	go func() {
		defer bwg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				hub.Broadcast(testEvent("client", `{"relay":1}`))
			}
		}
	}()

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *WSClient) {
			defer wg.Done()
			hub.Join(c)
			hub.Leave(c)
		}(c)
	}
	wg.Wait()
	close(stop)
	bwg.Wait()

	if hub.ClientCount() != 0 {
		t.Errorf("count = %d after every client left, want 0", hub.ClientCount())
	}
	for i, c := range clients {
		for range c.send {
		}
		if !c.closed {
			t.Errorf("client %d not closed", i)
		}
	}
}

func TestHub_RefusesJoinAfterShutdown(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	joined := hub.newClient(nil, auth.Session{})
	hub.Join(joined)

	cancel()
	<-done

	if hub.ClientCount() != 0 {
		t.Errorf("count = %d after shutdown, want 0", hub.ClientCount())
	}
	if hub.Join(hub.newClient(nil, auth.Session{})) {
		t.Error("Join() after shutdown = true, want false")
	}
}

// ─── WebSocket endpoint ────────────────────────────────────────────

func wsURL(env *testEnv, query string) string {
	u := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/api/v1/ws"
	if query != "" {
		u += "?" + query
	}
	return u
}

func (e *testEnv) ticket(t *testing.T, token string) string {
	t.Helper()
	resp, out := e.do(t, http.MethodPost, "/api/v1/auth/ws-ticket", "", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ws-ticket status = %d (%v)", resp.StatusCode, out)
	}
	ticket, _ := out["ticket"].(string) //nolint:errcheck // checked below
	if ticket == "" || out["expires_in"] != float64(60) {
		t.Fatalf("ws-ticket body = %v", out)
	}
	return ticket
}

// connectWebSocket signs up, takes a ticket and connects, waiting until the
// hub has registered the client.
func connectWebSocket(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()

	ticket := env.ticket(t, env.signup(t, fmt.Sprintf("ws-user-%d", env.srv.Hub().ClientCount())))
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL(env, "ticket="+ticket), nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { ws.Close() }) //nolint:errcheck // Test cleanup

	waitForClients(t, env.srv.Hub(), 1)
	return ws
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("hub clients = %d, want %d", hub.ClientCount(), want)
}

func TestWebSocket_BroadcastVerbatim(t *testing.T) {
	env := newTestEnv(t)
	ws := connectWebSocket(t, env)

	env.srv.Hub().Broadcast(testEvent("status", `{"temp":22.5}`))

	ws.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // test deadline
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if !bytes.Contains(data, []byte(`"payload":{"temp":22.5}`)) {
		t.Errorf("frame %s does not carry the payload verbatim", data)
	}

	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != WSTypeEvent || msg.EventType != "status" {
		t.Errorf("frame = %+v, want event/status", msg)
	}
}

func TestWebSocket_Ping(t *testing.T) {
	env := newTestEnv(t)
	ws := connectWebSocket(t, env)

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "ping-1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // test deadline
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if resp.Type != WSTypePong || resp.ID != "ping-1" {
		t.Errorf("response = %+v, want pong ping-1", resp)
	}
}

func TestWebSocket_ClientMessagesRejected(t *testing.T) {
	env := newTestEnv(t)
	ws := connectWebSocket(t, env)

	for _, raw := range []string{"not json", `{"type":"subscribe","id":"s-1"}`} {
		if err := ws.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatalf("write: %v", err)
		}
		ws.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // test deadline
		var resp WSMessage
		if err := ws.ReadJSON(&resp); err != nil {
			t.Fatalf("read error response: %v", err)
		}
		if resp.Type != WSTypeError || resp.Error == "" {
			t.Errorf("response to %q = %+v, want error", raw, resp)
		}
	}
}

func TestWebSocket_DisconnectLeavesHub(t *testing.T) {
	env := newTestEnv(t)
	ws := connectWebSocket(t, env)

	ws.Close() //nolint:errcheck // closing to trigger Leave
	waitForClients(t, env.srv.Hub(), 0)

	// Broadcasting to nobody is fine.
	env.srv.Hub().Broadcast(testEvent("client", `{}`))
}

func TestWebSocket_Admission(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice")

	used := env.ticket(t, token)
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(env, "ticket="+used), nil)
	if err != nil {
		t.Fatalf("dial with ticket: %v", err)
	}
	ws.Close() //nolint:errcheck // only admission matters here

	tests := []struct {
		name       string
		query      string
		header     http.Header
		wantStatus int
	}{
		{"no credentials", "", nil, http.StatusUnauthorized},
		{"unknown ticket", "ticket=invalid-ticket", nil, http.StatusUnauthorized},
		{"ticket reused", "ticket=" + used, nil, http.StatusUnauthorized},
		{"bad bearer", "", http.Header{"Authorization": {"Bearer nope"}}, http.StatusUnauthorized},
		{"bearer token", "", http.Header{"Authorization": {"Bearer " + token}}, http.StatusSwitchingProtocols},
		{"session cookie", "", http.Header{"Cookie": {auth.DefaultCookieName + "=" + token}}, http.StatusSwitchingProtocols},
		{"foreign origin", "", http.Header{"Authorization": {"Bearer " + token}, "Origin": {"http://evil.example.com"}}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws, resp, err := websocket.DefaultDialer.Dial(wsURL(env, tt.query), tt.header)
			if ws != nil {
				ws.Close() //nolint:errcheck // Test cleanup
			}
			if tt.wantStatus == http.StatusSwitchingProtocols {
				if err != nil {
					t.Fatalf("dial error = %v, want upgrade", err)
				}
				return
			}
			if err == nil {
				t.Fatal("dial succeeded, want rejection")
			}
			if resp == nil || resp.StatusCode != tt.wantStatus {
				t.Errorf("response = %v, want status %d", resp, tt.wantStatus)
			}
		})
	}
}
