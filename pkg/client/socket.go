// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Conn is a live control channel.
type Conn struct {
	ws       *websocket.Conn
	messages chan Message
	writeMu  sync.Mutex
	done     chan struct{}
	closing  chan struct{}
	once     sync.Once
	err      error
}

// Dial opens the control channel websocket.
func (c *Client) Dial(ctx context.Context) (*Conn, error) {
	url := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/control/ws"
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	conn := &Conn{
		ws:       ws,
		messages: make(chan Message, 64),
		done:     make(chan struct{}),
		closing:  make(chan struct{}),
	}
	go conn.readLoop()
	return conn, nil
}

func (c *Conn) readLoop() {
	defer close(c.done)
	defer close(c.messages)
	for {
		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			c.err = err
			return
		}
		select {
		case c.messages <- msg:
		case <-c.closing:
			return
		}
	}
}

// Messages returns the incoming message stream. It is closed when the
// connection ends.
func (c *Conn) Messages() <-chan Message {
	return c.messages
}

// Send writes a command.
func (c *Conn) Send(typ string, payload interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(command{Type: typ, Payload: payload})
}

// Err returns the error that ended the connection, once Messages is closed.
func (c *Conn) Err() error {
	<-c.done
	return c.err
}

// Close closes the connection.
func (c *Conn) Close() error {
	c.once.Do(func() { close(c.closing) })
	c.writeMu.Lock()
	c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.ws.Close()
}
