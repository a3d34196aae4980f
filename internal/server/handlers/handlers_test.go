package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/sails/internal/server/params"
	"github.com/agentstation/sails/internal/server/response"
	"github.com/agentstation/sails/internal/server/sse"
	ws "github.com/agentstation/sails/internal/server/websocket"
	"github.com/agentstation/sails/pkg/datastore/memory"
	"github.com/agentstation/sails/pkg/orm"
)

func newHandlers(t *testing.T, defs ...orm.Definition) (*Handlers, *ws.Hub) {
	t.Helper()
	logger := zerolog.Nop()

	registry := orm.NewRegistry()
	store := memory.New()
	for _, def := range defs {
		m, err := orm.NewModel(def, store)
		require.NoError(t, err)
		require.NoError(t, registry.Register(m))
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := ws.NewHub(&logger)
	go hub.Run(ctx)
	broadcaster := sse.NewBroadcaster(&logger)
	go broadcaster.Run(ctx)

	return New(registry, hub, broadcaster, websocket.Upgrader{}, &logger), hub
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Nil(t, resp.Error)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	return data
}

var (
	userDef = orm.Definition{
		Identity: "user",
		Attributes: map[string]orm.Attribute{
			"name": {Type: orm.TypeString},
			"pets": {Collection: "pet", Via: "owner"},
		},
	}
	petDef = orm.Definition{
		Identity:   "pet",
		Attributes: map[string]orm.Attribute{"owner": {Model: "user"}},
	}
)

func TestHandleHealth(t *testing.T) {
	h, _ := newHandlers(t)
	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, "sails", data["service"])
}

func TestHandleReady(t *testing.T) {
	h, _ := newHandlers(t, userDef, petDef)
	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "ready", data["status"])
	assert.Equal(t, float64(2), data["models"])
}

func TestHandleReady_UnresolvedAssociation(t *testing.T) {
	h, _ := newHandlers(t, userDef)
	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleModels(t *testing.T) {
	h, _ := newHandlers(t, userDef, petDef)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /__models", h.HandleListModels)
	mux.HandleFunc("GET /__models/{identity}", h.HandleGetModel)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/__models", nil))
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(2), data["count"])
	models := data["models"].([]any)
	assert.Equal(t, "pet", models[0].(map[string]any)["identity"])

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/__models/User", nil))
	require.Equal(t, http.StatusOK, w.Code)
	data = decodeData(t, w)
	assert.Equal(t, "User", data["globalId"])
	assocs := data["associations"].([]any)
	require.Len(t, assocs, 1)
	assert.Equal(t, map[string]any{"alias": "pets", "type": "collection", "collection": "pet", "via": "owner"}, assocs[0])

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/__models/ghost", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleWebSocket(t *testing.T) {
	h, hub := newHandlers(t)
	dispatch := http.NewServeMux()
	dispatch.HandleFunc("GET /whoami", func(w http.ResponseWriter, r *http.Request) {
		response.Raw(w, http.StatusOK, map[string]string{"socket": params.SocketID(r)})
	})
	h.SetDispatcher(dispatch)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var hello map[string]any
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "client.connected", hello["type"])
	id := hello["data"].(map[string]any)["id"].(string)
	assert.Len(t, id, 36)
	assert.Equal(t, 1, hub.ClientCount())

	require.NoError(t, conn.WriteJSON(map[string]any{"id": "q1", "method": "GET", "url": "/whoami"}))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "q1", reply["id"])
	assert.Equal(t, map[string]any{"socket": id}, reply["body"])

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}
