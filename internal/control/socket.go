// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wingedpig/replayhost/internal/events"
)

const (
	outboxSize   = 100
	pingInterval = 54 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// outbox queues messages for one connection's writer.
type outbox struct {
	ch   chan Message
	done <-chan struct{}
}

func newOutbox(size int, done <-chan struct{}) *outbox {
	return &outbox{ch: make(chan Message, size), done: done}
}

// broadcast queues msg without blocking. It reports false if msg was
// dropped because the writer is behind.
func (o *outbox) broadcast(msg Message) bool {
	select {
	case o.ch <- msg:
		return true
	case <-o.done:
		return true
	default:
		log.Printf("Control: dropped %s - client outbox full", msg.Type)
		return false
	}
}

// reply queues the answer to a command, waiting for room. Replies are
// never dropped while the connection is alive.
func (o *outbox) reply(ctx context.Context, msg Message) error {
	select {
	case o.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// socket serves one UI connection. Bus messages are broadcast to every
// connection; replies to a command go only to the connection that sent it.
func (s *Server) socket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	done := make(chan struct{})
	out := newOutbox(outboxSize, done)

	subID, err := s.deps.Bus.SubscribeAsync("*", func(_ context.Context, e events.Event) error {
		msg, err := FromEvent(e)
		if err != nil {
			return err
		}
		out.broadcast(msg)
		return nil
	}, outboxSize)
	if err != nil {
		conn.WriteJSON(map[string]string{"error": err.Error()})
		return
	}
	defer s.deps.Bus.Unsubscribe(subID)

	s.addClient(1)
	defer s.addClient(-1)

	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	// Commands are read and executed in order.
	go func() {
		defer close(done)
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			reply, err := s.dispatch(ctx, msg)
			if err != nil {
				log.Printf("Control: %s: %v", msg.Type, err)
				if m, merr := NewMessage(events.EventError, events.ErrorPayload{Message: err.Error()}); merr == nil {
					out.reply(ctx, m)
				}
				continue
			}
			if reply != nil {
				out.reply(ctx, *reply)
			}
		}
	}()

	for {
		select {
		case msg := <-out.ch:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
			s.deps.Metrics.ControlMessage(msg.Type)
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
