package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// WriteTyped sends a strongly-typed response payload over the WebSocket
// within the given deadline.
func WriteTyped(conn *websocket.Conn, timeout time.Duration, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(timeout))
	return conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func WriteError(conn *websocket.Conn, timeout time.Duration, errMsg string) error {
	return WriteTyped(conn, timeout, ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// ReadJSON reads and decodes a message into the provided structure within
// the given deadline.
func ReadJSON(conn *websocket.Conn, timeout time.Duration, v interface{}) error {
	conn.SetReadDeadline(time.Now().Add(timeout))
	return conn.ReadJSON(v)
}
