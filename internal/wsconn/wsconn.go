// Package wsconn adapts a real github.com/gorilla/websocket connection
// to a narrow upstream interface for the browser side:
// ReceiveText/SendText/Close. Nothing about WebSocket framing or masking
// leaks past this adapter, keeping the rest of the gateway written
// against that same minimal interface as an external collaborator.
package wsconn

import (
	"fmt"

	"github.com/gorilla/websocket"
)

// Conn is the concrete upstream socket. Its boundary is narrow on
// purpose (ReceiveText/SendText/Close only) even though the type
// underneath is a real *websocket.Conn.
type Conn struct {
	ws *websocket.Conn
}

// New wraps an already-upgraded websocket connection.
func New(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// ReceiveText blocks for the next text message. Any other message type
// (binary, ping/pong handled internally by gorilla) surfaces as an
// error, since the Guacamole-over-WebSocket wire format is text-only.
func (c *Conn) ReceiveText() (string, error) {
	msgType, data, err := c.ws.ReadMessage()
	if err != nil {
		return "", err
	}
	if msgType != websocket.TextMessage {
		return "", fmt.Errorf("unexpected websocket message type %d", msgType)
	}
	return string(data), nil
}

// SendText writes one complete instruction as a single WebSocket text
// message, delivering each completed instruction over the WebSocket as
// its own frame.
func (c *Conn) SendText(s string) error {
	return c.ws.WriteMessage(websocket.TextMessage, []byte(s))
}

// Close performs a clean WebSocket close handshake with the given
// status code and reason, then closes the underlying TCP connection.
func (c *Conn) Close(code int, reason string) error {
	deadline := websocket.FormatCloseMessage(code, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, deadline, timeNowPlus())
	return c.ws.Close()
}
