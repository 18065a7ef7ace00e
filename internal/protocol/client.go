package protocol

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrTimeout means no response arrived in time. The request may or may not have been applied.
	ErrTimeout = errors.New("request timed out")
	// ErrConnection means the connection failed or was closed.
	ErrConnection = errors.New("connection error")
	// ErrInterrupted means the caller's context ended before a response arrived.
	ErrInterrupted = errors.New("request interrupted")
)

// DefaultTimeout bounds every request unless the client is told otherwise.
const DefaultTimeout = 5 * time.Second

// Client sends requests and matches responses by id. Packets without an id
// are delivered on Pushes.
type Client struct {
	conn    *Conn
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan Packet

	pushes chan Packet
	done   chan struct{}
	err    error
}

// Dial connects to a server websocket URL such as ws://host:5555/ws.
func Dial(ctx context.Context, url string, timeout time.Duration) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return NewClient(NewConn(ws), timeout), nil
}

// NewClient starts reading from conn.
func NewClient(conn *Conn, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		conn:    conn,
		timeout: timeout,
		pending: make(map[string]chan Packet),
		pushes:  make(chan Packet, 16),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	defer close(c.pushes)
	for {
		p, err := c.conn.ReadPacket()
		if err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			close(c.done)
			return
		}
		if p.ID == "" {
			select {
			case c.pushes <- p:
			default:
				log.WithField("command", p.Command).Warn("Push dropped; nobody is reading")
			}
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[p.ID]
		delete(c.pending, p.ID)
		c.mu.Unlock()
		if !ok {
			log.WithField("id", p.ID).Debug("Response for unknown request")
			continue
		}
		ch <- p
	}
}

// Do sends req and waits for the response carrying the same id.
func (c *Client) Do(ctx context.Context, req Packet) (Packet, error) {
	req.ID = uuid.NewString()
	ch := make(chan Packet, 1)

	c.mu.Lock()
	c.pending[req.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	select {
	case <-c.done:
		return Packet{}, c.closedErr()
	default:
	}
	if err := c.conn.WritePacket(req); err != nil {
		return Packet{}, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		return Packet{}, fmt.Errorf("%w: %s after %s", ErrTimeout, req.Command, c.timeout)
	case <-ctx.Done():
		return Packet{}, fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
	case <-c.done:
		return Packet{}, c.closedErr()
	}
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Errorf("%w: %v", ErrConnection, c.err)
}

// Call sends command with args.
func (c *Client) Call(ctx context.Context, command string, args map[string]string) (Packet, error) {
	return c.Do(ctx, Packet{Command: command, Args: args})
}

// Login authenticates the connection.
func (c *Client) Login(ctx context.Context, email, password string, force bool) (Packet, error) {
	return c.Call(ctx, CommandLogin, map[string]string{
		"subscriber_email":    email,
		"subscriber_password": password,
		"force_login":         strconv.FormatBool(force),
	})
}

// Logout ends the session. The server closes the connection without replying.
func (c *Client) Logout() error {
	if err := c.conn.WritePacket(Packet{ID: uuid.NewString(), Command: CommandLogout}); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return nil
}

// Pushes delivers unsolicited packets such as DISCONNECT and SHUTDOWN. It is
// closed when the connection ends.
func (c *Client) Pushes() <-chan Packet {
	return c.pushes
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
