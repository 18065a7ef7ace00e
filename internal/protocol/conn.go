package protocol

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxPacketBytes = 1 << 20
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Conn is a websocket carrying packets. Writes are serialised, so pushes
// and responses may be sent from different goroutines.
type Conn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// NewConn wraps an established websocket.
func NewConn(ws *websocket.Conn) *Conn {
	ws.SetReadLimit(maxPacketBytes)
	return &Conn{ws: ws}
}

// Upgrade turns an HTTP request into a packet connection.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade to websocket: %w", err)
	}
	return NewConn(ws), nil
}

// ReadPacket blocks until the next packet arrives.
func (c *Conn) ReadPacket() (Packet, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return Packet{}, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		return Decode(data)
	}
}

// WritePacket sends one packet.
func (c *Conn) WritePacket(p Packet) error {
	data, err := Encode(p)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Notify sends an unsolicited push.
func (c *Conn) Notify(command, description string) error {
	return c.WritePacket(Packet{Command: command, Answer: 200, Description: description})
}

// Close sends a close frame and closes the socket. It is safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// RemoteAddr is the peer address.
func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}
