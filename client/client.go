// Package client implements the viewer-side signaling client: the
// WebSocket transport plus the connection-state machine every client of the
// class signaling hub must run.
package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/classpeer/signaling/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client manages the WebSocket connection to the signaling server.
type Client struct {
	conn     *websocket.Conn
	incoming chan models.Message
	outgoing chan models.Message
	done     chan struct{}

	closeOnce sync.Once
}

// Dial connects to the signaling endpoint and starts the read/write pumps.
func Dial(serverURL string) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &Client{
		conn:     conn,
		incoming: make(chan models.Message, 32),
		outgoing: make(chan models.Message, 32),
		done:     make(chan struct{}),
	}

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return c, nil
}

// Join sends the join message that must open every session.
func (c *Client) Join(displayName, roomID string, wantsPresenter bool) error {
	payload, err := json.Marshal(models.JoinRequest{
		DisplayName:    displayName,
		WantsPresenter: wantsPresenter,
		RoomID:         roomID,
	})
	if err != nil {
		return err
	}
	c.Send(models.Message{Kind: models.KindJoin, Payload: payload})
	return nil
}

// Send enqueues a message for the server.
func (c *Client) Send(msg models.Message) {
	select {
	case c.outgoing <- msg:
	case <-c.done:
	}
}

// Incoming returns the channel of messages from the server. It is closed
// when the connection ends.
func (c *Client) Incoming() <-chan models.Message {
	return c.incoming
}

// Close shuts the connection down. Safe to call from any goroutine, any
// number of times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg models.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
