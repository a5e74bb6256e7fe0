// Package protocol defines the event-tagged JSON messages exchanged over a
// live connection. Every event carries a "t" field naming its type; the rest
// of the object is the event payload.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event type tags.
const (
	TypeHello      = "hi"    // client→server: authenticate; server→client: handshake result
	TypePost       = "post"  // client→server: create message; server→client: post result
	TypeNewMessage = "nm"    // server→all: new message broadcast
	TypeUserCount  = "ucu"   // server→all: authenticated connection count
	TypeError      = "error" // server→client: malformed event
)

// ErrUnknownType indicates an event with an unrecognized "t" tag.
var ErrUnknownType = errors.New("unknown event type")

// envelope is used to peek at the type tag before full decoding.
type envelope struct {
	T string `json:"t"`
}

// Tag extracts the event type tag from raw event data.
func Tag(data []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("invalid event: %w", err)
	}
	if env.T == "" {
		return "", fmt.Errorf("invalid event: missing type tag")
	}
	return env.T, nil
}

// HelloRequest authenticates a connection with a credential token.
type HelloRequest struct {
	T     string `json:"t"`
	Token string `json:"token"`
}

// HelloResponse is the handshake result, sent only to the initiating connection.
type HelloResponse struct {
	T       string `json:"t"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// PostRequest creates a message, optionally as a reply.
type PostRequest struct {
	T       string   `json:"t"`
	Message PostBody `json:"message"`
}

// PostBody is the client-supplied portion of a message.
type PostBody struct {
	Content  string `json:"content"`
	ParentID *int64 `json:"parentId,omitempty"`
}

// PostResponse is the post result, echoed to the sender only.
type PostResponse struct {
	T       string `json:"t"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Message is a stored message joined with its author's display name.
type Message struct {
	ID         int64  `json:"id"`
	Content    string `json:"content"`
	Timestamp  int64  `json:"timestamp"` // Unix milliseconds
	AuthorID   int64  `json:"authorId"`
	AuthorName string `json:"authorName"`
	ParentID   *int64 `json:"parentId"`
}

// NewMessageEvent broadcasts a freshly created message to all connections.
type NewMessageEvent struct {
	T       string  `json:"t"`
	Message Message `json:"message"`
}

// UserCountEvent broadcasts the current authenticated-connection count.
type UserCountEvent struct {
	T     string `json:"t"`
	Count int    `json:"count"`
}

// ErrorEvent reports an unparseable or untagged event back to its sender.
type ErrorEvent struct {
	T     string `json:"t"`
	Error string `json:"error"`
}

// NewHelloOK builds a successful handshake result.
func NewHelloOK() HelloResponse {
	return HelloResponse{T: TypeHello, Success: true}
}

// NewHelloError builds a failed handshake result.
func NewHelloError(msg string) HelloResponse {
	return HelloResponse{T: TypeHello, Success: false, Error: msg}
}

// NewPostOK builds a successful post result.
func NewPostOK() PostResponse {
	return PostResponse{T: TypePost, Success: true}
}

// NewPostError builds a failed post result.
func NewPostError(msg string) PostResponse {
	return PostResponse{T: TypePost, Success: false, Error: msg}
}

// NewMessageBroadcast wraps a message for broadcast.
func NewMessageBroadcast(msg Message) NewMessageEvent {
	return NewMessageEvent{T: TypeNewMessage, Message: msg}
}

// NewUserCount wraps a presence count for broadcast.
func NewUserCount(count int) UserCountEvent {
	return UserCountEvent{T: TypeUserCount, Count: count}
}

// NewError builds a malformed-event report.
func NewError(msg string) ErrorEvent {
	return ErrorEvent{T: TypeError, Error: msg}
}
