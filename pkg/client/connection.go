package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/boardcast/boardcast/pkg/protocol"
)

// Event is one inbound server event, decoded by tag. Exactly one payload
// field is set depending on Tag.
type Event struct {
	Tag     string
	Hello   *protocol.HelloResponse
	Post    *protocol.PostResponse
	Message *protocol.Message
	Count   int
	Error   string
}

// Disconnected is delivered as the final event when the connection drops.
type Disconnected struct {
	Err error
}

// Connection is a live connection to the server. Inbound events are decoded
// on a reader goroutine and delivered through Events.
type Connection struct {
	addr   string
	useTLS bool

	ws      *websocket.Conn
	writeMu sync.Mutex

	events     chan Event
	disconnect chan Disconnected

	closeOnce sync.Once
}

// NewConnection creates an unconnected client for the given host:port.
func NewConnection(addr string, useTLS bool) *Connection {
	return &Connection{
		addr:       addr,
		useTLS:     useTLS,
		events:     make(chan Event, 64),
		disconnect: make(chan Disconnected, 1),
	}
}

// Connect dials the server and starts the reader.
func (c *Connection) Connect() error {
	scheme := "ws"
	if c.useTLS {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: c.addr, Path: "/ws"}

	dialer := &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.addr, err)
	}

	c.ws = ws
	go c.readLoop()
	return nil
}

// Events delivers decoded server events. The channel is closed when the
// connection drops; Reason then reports why.
func (c *Connection) Events() <-chan Event {
	return c.events
}

// Reason reports why the connection dropped. Blocks until it has.
func (c *Connection) Reason() Disconnected {
	return <-c.disconnect
}

// Hello starts the authentication handshake. The result arrives as a hello
// event.
func (c *Connection) Hello(token string) error {
	return c.send(protocol.HelloRequest{T: protocol.TypeHello, Token: token})
}

// Post submits a message. parentID nil posts a new thread.
func (c *Connection) Post(content string, parentID *int64) error {
	return c.send(protocol.PostRequest{
		T:       protocol.TypePost,
		Message: protocol.PostBody{Content: content, ParentID: parentID},
	})
}

// Close tears the connection down. The reader drains and closes Events.
func (c *Connection) Close() error {
	if c.ws == nil {
		return nil
	}
	return c.ws.Close()
}

func (c *Connection) send(event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Connection) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.closeOnce.Do(func() {
				c.disconnect <- Disconnected{Err: err}
				close(c.events)
			})
			return
		}

		event, err := decodeEvent(data)
		if err != nil {
			// Unknown events are skipped; the protocol may grow.
			continue
		}
		c.events <- event
	}
}

func decodeEvent(data []byte) (Event, error) {
	tag, err := protocol.Tag(data)
	if err != nil {
		return Event{}, err
	}

	event := Event{Tag: tag}
	switch tag {
	case protocol.TypeHello:
		var hello protocol.HelloResponse
		if err := json.Unmarshal(data, &hello); err != nil {
			return Event{}, err
		}
		event.Hello = &hello
	case protocol.TypePost:
		var post protocol.PostResponse
		if err := json.Unmarshal(data, &post); err != nil {
			return Event{}, err
		}
		event.Post = &post
	case protocol.TypeNewMessage:
		var nm protocol.NewMessageEvent
		if err := json.Unmarshal(data, &nm); err != nil {
			return Event{}, err
		}
		event.Message = &nm.Message
	case protocol.TypeUserCount:
		var count protocol.UserCountEvent
		if err := json.Unmarshal(data, &count); err != nil {
			return Event{}, err
		}
		event.Count = count.Count
	case protocol.TypeError:
		var serverErr protocol.ErrorEvent
		if err := json.Unmarshal(data, &serverErr); err != nil {
			return Event{}, err
		}
		event.Error = serverErr.Error
	default:
		return Event{}, protocol.ErrUnknownType
	}

	return event, nil
}
