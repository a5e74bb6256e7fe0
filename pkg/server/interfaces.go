package server

import (
	"net"
	"time"
)

// wsConn is the subset of *websocket.Conn the server uses. Tests substitute a
// fake implementation.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetPongHandler(h func(appData string) error)
	RemoteAddr() net.Addr
	Close() error
}
