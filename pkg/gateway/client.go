package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/amira/goalflow/pkg/flow"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Client is one live websocket connection. It implements flow.Channel so a
// running conversation can deliver assistant text and await user events.
type Client struct {
	ID          string
	UserID      string
	ConnectedAt time.Time

	conn    *websocket.Conn
	events  chan flow.Event
	closed  chan struct{}
	writeMu sync.Mutex
	once    sync.Once
	logger  zerolog.Logger
}

// NewClient wraps an upgraded connection.
func NewClient(id string, conn *websocket.Conn, logger zerolog.Logger) *Client {
	return &Client{
		ID:          id,
		ConnectedAt: time.Now(),
		conn:        conn,
		events:      make(chan flow.Event, 16),
		closed:      make(chan struct{}),
		logger:      logger,
	}
}

// Send delivers assistant text as a speak frame.
func (c *Client) Send(_ context.Context, text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(SpeakMessage{Action: "speak", Text: text})
}

// Receive blocks for the next inbound event. It returns an error once the
// connection is gone or the context is cancelled.
func (c *Client) Receive(ctx context.Context) (flow.Event, error) {
	select {
	case ev := <-c.events:
		return ev, nil
	case <-c.closed:
		return flow.Event{}, flow.ErrTurnAborted
	case <-ctx.Done():
		return flow.Event{}, ctx.Err()
	}
}

// Deliver queues an inbound event for the conversation loop. Events are
// dropped once the client is closed.
func (c *Client) Deliver(ev flow.Event) {
	select {
	case c.events <- ev:
	case <-c.closed:
	}
}

// Reply writes a response envelope.
func (c *Client) Reply(resp Response) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(resp)
}

// ReadEnvelope blocks for the next inbound frame and decodes it, returning
// the raw frame alongside. Plain text frames that are not typed JSON
// objects are wrapped as chat envelopes.
func (c *Client) ReadEnvelope() (Envelope, []byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return Envelope{}, nil, err
	}

	var env Envelope
	if json.Unmarshal(data, &env) == nil && env.Type != "" {
		return env, data, nil
	}
	return Envelope{Type: TypeChat, Text: string(data)}, data, nil
}

// Close tears down the connection and unblocks any pending Receive.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.closed)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}
