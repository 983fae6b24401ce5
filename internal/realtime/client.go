package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Frame is the socket wire format in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID string          `json:"ackId,omitempty"`
}

// Ack is the payload of an "ack" frame.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Encode builds a frame for event with data marshalled as JSON.
func Encode(event string, data any, ackID string) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw, AckID: ackID})
}

// Client is one live socket as seen by the Hub. The transport drains Send
// and writes each frame to the connection.
type Client struct {
	ID     string
	UserID uint64

	send   chan []byte
	mu     sync.Mutex
	closed bool

	// rooms is guarded by the owning Hub's lock.
	rooms map[uint64]struct{}
}

func NewClient(userID uint64, buffer int) *Client {
	if buffer <= 0 {
		buffer = 1
	}
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		send:   make(chan []byte, buffer),
		rooms:  make(map[uint64]struct{}),
	}
}

// Send is closed once the client is unregistered.
func (c *Client) Send() <-chan []byte { return c.send }

// Enqueue queues a frame without blocking. It returns false if the client is
// closed or its buffer is full.
func (c *Client) Enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
