package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentstation/sails/internal/server/params"
	"github.com/agentstation/sails/pkg/constants"
)

// Client represents a WebSocket client connection.
type Client struct {
	id    string
	hub   *Hub
	conn  *websocket.Conn
	send  chan Message
	rooms map[string]bool
}

// NewClient creates a new WebSocket client.
func NewClient(id string, hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   id,
		hub:  hub,
		conn: conn,
		send: make(chan Message, constants.ChannelBufferSize),
	}
}

// ID returns the client's socket id.
func (c *Client) ID() string {
	return c.id
}

// ReadPump reads request frames from the connection and answers each one by
// dispatching it through handler. It returns when the connection closes.
func (c *Client) ReadPump(ctx context.Context, handler http.Handler) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(constants.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(constants.PongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(constants.PongWait))
		return nil
	})

	remoteAddr := c.conn.RemoteAddr().String()
	for {
		kind, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error().Err(err).Str("client_id", c.id).Msg("WebSocket read error")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		reply := Interpret(ctx, handler, c.id, remoteAddr, frame)
		if !c.hub.Send(c.id, reply) {
			c.hub.logger.Warn().Str("client_id", c.id).Str("request_id", reply.ID).Msg("Dropped socket response")
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(constants.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
			if !ok {
				// Hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				c.hub.logger.Error().Err(err).Msg("Failed to marshal WebSocket message")
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Request is a virtual HTTP request sent by a client over the socket.
type Request struct {
	ID      string            `json:"id"`
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Data    json.RawMessage   `json:"data"`
}

// Interpret decodes a request frame, serves it through handler as if it had
// arrived over HTTP, and returns the reply frame.
func Interpret(ctx context.Context, handler http.Handler, socketID, remoteAddr string, frame []byte) Message {
	var vreq Request
	if err := json.Unmarshal(frame, &vreq); err != nil {
		return errorReply("", http.StatusBadRequest, "invalid request frame")
	}
	if !strings.HasPrefix(vreq.URL, "/") {
		return errorReply(vreq.ID, http.StatusBadRequest, "url must be an absolute path")
	}
	method := strings.ToUpper(vreq.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader = http.NoBody
	data := bytes.TrimSpace(vreq.Data)
	if len(data) > 0 && !bytes.Equal(data, []byte("null")) {
		body = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(params.WithSocket(ctx, socketID), constants.WriteTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, vreq.URL, body)
	if err != nil {
		return errorReply(vreq.ID, http.StatusBadRequest, "invalid request")
	}
	req.RemoteAddr = remoteAddr
	req.RequestURI = vreq.URL
	for k, v := range vreq.Headers {
		req.Header.Set(k, v)
	}
	if body != http.NoBody && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := newRecorder()
	handler.ServeHTTP(rec, req)

	return rec.reply(vreq.ID)
}

func errorReply(id string, status int, message string) Message {
	return Message{
		Type:       "response",
		ID:         id,
		StatusCode: status,
		Body:       map[string]any{"error": message},
	}
}

// recorder captures a handler's response for a virtual request.
type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newRecorder() *recorder {
	return &recorder{header: make(http.Header)}
}

func (r *recorder) Header() http.Header {
	return r.header
}

func (r *recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(b)
}

func (r *recorder) reply(id string) Message {
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}

	headers := make(map[string]string, len(r.header))
	for k := range r.header {
		headers[k] = r.header.Get(k)
	}

	msg := Message{
		Type:       "response",
		ID:         id,
		StatusCode: status,
		Headers:    headers,
	}

	raw := r.body.Bytes()
	if len(raw) == 0 {
		return msg
	}
	mediaType, _, _ := mime.ParseMediaType(r.header.Get("Content-Type"))
	if strings.HasSuffix(mediaType, "json") && json.Valid(raw) {
		msg.Body = json.RawMessage(bytes.Clone(raw))
	} else {
		msg.Body = string(raw)
	}
	return msg
}
