// Package chat is the client side of the auxiliary chat widget. The
// transport is a plain websocket to the chat service; this client only
// connects, keeps the connection alive, and moves messages.
package chat

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"codeberg.org/algorave/passage/internal/logger"
)

// message type constants for the chat channel
const (
	// carries one chat message in either direction
	TypeChatMessage = "chat_message"

	// is sent when a user joins the room
	TypeUserJoined = "user_joined"

	// is sent when a user leaves the room
	TypeUserLeft = "user_left"

	// is sent by the server when something went wrong
	TypeError = "error"
)

// connection constants
const (
	// time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// send pings to peer with this period, must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// outgoing messages allowed per second, with a small burst
	sendRate  = rate.Limit(2)
	sendBurst = 5
)

// one chat message on the wire
type Message struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Sender    string    `json:"sender,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// manages the websocket connection to the chat service
type Client struct {
	endpoint    string
	tokenSource func() string

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool

	incoming chan Message
	limiter  *rate.Limiter
}

// creates a chat client; tokenSource supplies the bearer token for the
// connection handshake
func NewClient(endpoint string, tokenSource func() string) *Client {
	return &Client{
		endpoint:    endpoint,
		tokenSource: tokenSource,
		incoming:    make(chan Message, 64),
		limiter:     rate.NewLimiter(sendRate, sendBurst),
	}
}

// establishes the websocket connection
func (c *Client) Connect() error {
	c.mu.Lock()

	if c.connected {
		c.mu.Unlock()
		return nil
	}

	header := http.Header{}
	if token := c.tokenSource(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.DefaultDialer.Dial(c.endpoint, header)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn

	// set up ping/pong handlers to keep the connection alive
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck,gosec // G104: pong handler
		return nil
	})

	// set initial read deadline
	conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck,gosec // G104: websocket setup

	c.connected = true

	// start the read pump in a goroutine
	go c.readPump()

	// start the ping pump to keep connection alive
	go c.pingPump()

	c.mu.Unlock()
	return nil
}

// delivers messages received from the chat service
func (c *Client) Incoming() <-chan Message {
	return c.incoming
}

// returns whether the client is connected
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// sends one chat message. Sends are throttled client-side so a stuck
// key cannot flood the room.
func (c *Client) Send(content string) error {
	if !c.limiter.Allow() {
		return errors.New("sending too fast, slow down")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.conn == nil {
		return errors.New("not connected")
	}

	msg := Message{
		ID:        uuid.NewString(),
		Type:      TypeChatMessage,
		Content:   content,
		Timestamp: time.Now(),
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck,gosec // G104: write deadline
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// closes the websocket connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close() //nolint:errcheck
		c.conn = nil
	}
	c.connected = false
}

// sends periodic pings to keep the connection alive
func (c *Client) pingPump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		<-ticker.C
		c.mu.Lock()

		if !c.connected || c.conn == nil {
			c.mu.Unlock()
			return
		}

		c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck,gosec // G104: ping write
		if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			c.mu.Unlock()
			return
		}

		c.mu.Unlock()
	}
}

// continuously reads messages and delivers them to the incoming channel
func (c *Client) readPump() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		if c.conn != nil {
			c.conn.Close() //nolint:errcheck
		}
		c.mu.Unlock()
	}()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck,gosec // G104: read deadline

		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("chat connection error", "error", err)
			}
			return
		}

		select {
		case c.incoming <- msg:
		default:
			// a stalled reader drops the oldest behavior: just skip
			logger.Warn("chat message dropped, incoming buffer full")
		}
	}
}
