package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/sails/internal/server/params"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	logger := zerolog.Nop()
	hub := NewHub(&logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("client did not receive message")
		return Message{}
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected message %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_NewHub(t *testing.T) {
	logger := zerolog.Nop()
	hub := NewHub(&logger)

	require.NotNil(t, hub)
	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.rooms)
	assert.NotNil(t, hub.broadcast)
	assert.Zero(t, hub.ClientCount())
}

func TestHub_BroadcastAll(t *testing.T) {
	hub := startHub(t)

	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = NewClient(fmt.Sprintf("client-%d", i), hub, nil)
		hub.Register(clients[i])
	}
	assert.Equal(t, 3, hub.ClientCount())

	hub.Broadcast(Message{Type: "test.event", Timestamp: time.Now(), Data: map[string]any{"test": true}})

	for _, c := range clients {
		assert.Equal(t, "test.event", receive(t, c).Type)
	}
}

func TestHub_RoomsExcludeOriginator(t *testing.T) {
	hub := startHub(t)

	a := NewClient("a", hub, nil)
	b := NewClient("b", hub, nil)
	outsider := NewClient("c", hub, nil)
	for _, c := range []*Client{a, b, outsider} {
		hub.Register(c)
	}

	require.True(t, hub.Join("a", "user#1"))
	require.True(t, hub.Join("b", "user#1"))
	assert.False(t, hub.Join("ghost", "user#1"))
	assert.Equal(t, 2, hub.RoomSize("user#1"))

	hub.BroadcastRoom("user#1", Message{Type: "user", Data: map[string]any{"verb": "updated"}}, "a")

	assert.Equal(t, "user", receive(t, b).Type)
	assertSilent(t, a)
	assertSilent(t, outsider)
}

func TestHub_LeaveAndUnregister(t *testing.T) {
	hub := startHub(t)

	a := NewClient("a", hub, nil)
	hub.Register(a)
	hub.Join("a", "pet#1")
	hub.Join("a", "pet#2")

	hub.Leave("a", "pet#1")
	assert.Zero(t, hub.RoomSize("pet#1"))
	assert.Equal(t, 1, hub.RoomSize("pet#2"))

	hub.Unregister(a)
	assert.Zero(t, hub.ClientCount())
	assert.Zero(t, hub.RoomSize("pet#2"))

	_, ok := <-a.send
	assert.False(t, ok, "send channel should be closed")

	// unregistering twice is harmless
	hub.Unregister(a)
}

func TestHub_SlowClientDisconnected(t *testing.T) {
	hub := startHub(t)

	client := &Client{id: "slow", hub: hub, send: make(chan Message, 2)}
	hub.Register(client)

	for i := 0; i < 10; i++ {
		hub.Broadcast(Message{Type: "rapid", Data: map[string]any{"i": i}})
	}

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	logger := zerolog.Nop()
	hub := NewHub(&logger)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	client := NewClient("a", hub, nil)
	hub.Register(client)
	cancel()
	<-done

	assert.Zero(t, hub.ClientCount())
	_, ok := <-client.send
	assert.False(t, ok)

	// registration after shutdown is ignored
	hub.Register(NewClient("late", hub, nil))
	assert.Zero(t, hub.ClientCount())
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub := startHub(t)

	const n = 50
	clients := make([]*Client, n)
	for i := range clients {
		clients[i] = NewClient(fmt.Sprintf("client-%d", i), hub, nil)
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			hub.Register(c)
			hub.Join(c.id, "room")
		}(clients[i])
	}
	wg.Wait()
	assert.Equal(t, n, hub.ClientCount())

	for i := 0; i < n/2; i++ {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			hub.Unregister(c)
		}(clients[i])
	}
	wg.Wait()

	assert.Equal(t, n/2, hub.ClientCount())
	assert.Equal(t, n/2, hub.RoomSize("room"))
}

func TestHub_Send(t *testing.T) {
	hub := startHub(t)
	client := NewClient("a", hub, nil)
	hub.Register(client)

	assert.True(t, hub.Send("a", Message{Type: "hello"}))
	assert.Equal(t, "hello", receive(t, client).Type)
	assert.False(t, hub.Send("missing", Message{Type: "hello"}))
}

func echoHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /user/{id}", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":        r.PathValue("id"),
			"socket":    params.SocketID(r),
			"transport": params.Transport(r),
			"body":      string(body),
			"auth":      r.Header.Get("Authorization"),
		})
	})
	mux.HandleFunc("GET /text", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "plain")
	})
	return mux
}

func TestInterpret(t *testing.T) {
	frame := []byte(`{"id":"r1","method":"put","url":"/user/5","headers":{"Authorization":"Bearer x"},"data":{"name":"bob"}}`)

	reply := Interpret(context.Background(), echoHandler(), "sock-1", "10.0.0.1:5000", frame)

	assert.Equal(t, "response", reply.Type)
	assert.Equal(t, "r1", reply.ID)
	assert.Equal(t, http.StatusOK, reply.StatusCode)
	assert.Equal(t, "application/json", reply.Headers["Content-Type"])

	raw, ok := reply.Body.(json.RawMessage)
	require.True(t, ok, "json bodies are passed through raw")
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "5", body["id"])
	assert.Equal(t, "sock-1", body["socket"])
	assert.Equal(t, params.TransportSocket, body["transport"])
	assert.Equal(t, `{"name":"bob"}`, body["body"])
	assert.Equal(t, "Bearer x", body["auth"])
}

func TestInterpret_Errors(t *testing.T) {
	handler := echoHandler()

	reply := Interpret(context.Background(), handler, "s", "", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, reply.StatusCode)

	reply = Interpret(context.Background(), handler, "s", "", []byte(`{"id":"r2","url":"user/5"}`))
	assert.Equal(t, http.StatusBadRequest, reply.StatusCode)
	assert.Equal(t, "r2", reply.ID)

	reply = Interpret(context.Background(), handler, "s", "", []byte(`{"id":"r3","url":"/nowhere"}`))
	assert.Equal(t, http.StatusNotFound, reply.StatusCode)

	reply = Interpret(context.Background(), handler, "s", "", []byte(`{"id":"r4","url":"/text"}`))
	assert.Equal(t, http.StatusOK, reply.StatusCode)
	assert.Equal(t, "plain", reply.Body)
}

func TestClient_EndToEnd(t *testing.T) {
	hub := startHub(t)
	handler := echoHandler()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient("e2e", hub, conn)
		hub.Register(client)
		go client.WritePump()
		client.ReadPump(context.Background(), handler)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"id":"1","method":"PUT","url":"/user/9","data":{}}`)))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "response", reply["type"])
	assert.Equal(t, "1", reply["id"])
	assert.Equal(t, float64(http.StatusOK), reply["statusCode"])
	body, ok := reply["body"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "9", body["id"])
	assert.Equal(t, "e2e", body["socket"])

	require.Eventually(t, func() bool { return hub.Join("e2e", "user#9") }, time.Second, 10*time.Millisecond)
	hub.BroadcastRoom("user#9", Message{Type: "user", Timestamp: time.Now(), Data: map[string]any{"verb": "updated", "id": "9"}}, "")

	var pushed map[string]any
	require.NoError(t, conn.ReadJSON(&pushed))
	assert.Equal(t, "user", pushed["type"])
	assert.NotEmpty(t, pushed["timestamp"])
}
