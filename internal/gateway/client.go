package gateway

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"chartengine/internal/model"
)

// Client is a single WebSocket peer and its chart session.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	hub  *Hub

	session  *ChartSession
	watching *model.SeriesKey
	cancel   context.CancelFunc
	trace    string
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	c := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
		hub:  h,
	}
	c.session = newSession(h, func(msgType string, payload any) {
		buf := marshalMsg(msgType, payload)
		if buf == nil {
			return
		}
		select {
		case c.send <- buf:
		default:
		}
	})
	return c
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			// Coalesce queued messages into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unwatch(c)
		c.hub.removeClient(c)
		c.conn.Close()
		log.Printf("[gateway] ws client disconnected trace=%s", c.trace)
	}()

	c.conn.SetReadLimit(8192)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var base struct {
			Type string `json:"type"`
			Ping int64  `json:"ping"`
		}
		if json.Unmarshal(msg, &base) != nil {
			continue
		}

		// Application-level ping carries the client's clock for RTT.
		if base.Ping > 0 {
			pong, _ := json.Marshal(map[string]any{
				"type":      "pong",
				"ping":      base.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
			select {
			case c.send <- pong:
			default:
			}
			continue
		}

		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			continue
		}
		if ev.Type == "" {
			continue
		}
		c.session.Enqueue(ev)
	}
}
