package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"swaft/internal/model"
	"swaft/internal/session"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a frame to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Must be less than pongWait.
	maxMessageSize = 8192                // Largest command accepted from the peer.
)

// newUpgrader accepts same-origin browsers, the listed extra origins, and
// clients that send no Origin at all.
func newUpgrader(origins []string) *websocket.Upgrader {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o = normalizeOrigin(o); o != "" {
			allowed[o] = true
		}
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil || u.Host == "" {
				return false
			}
			return strings.EqualFold(u.Host, r.Host) || allowed[normalizeOrigin(origin)]
		},
	}
}

func normalizeOrigin(o string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(o), "/"))
}

var errConnClosed = errors.New("connection closed")

// Frame is what the server pushes over the socket. Frames queued together
// are written as newline-separated JSON in one websocket message.
type Frame struct {
	Type    string         `json:"type"` // "state" or "session"
	State   *State         `json:"state,omitempty"`
	Shell   session.Shell  `json:"shell,omitempty"`
	Session *model.Session `json:"session,omitempty"`
}

// Client is the middleman between the websocket connection and a widget.
type Client struct {
	Conn *websocket.Conn
	Send chan []byte // Buffered channel of outbound frames
}

func NewClient(conn *websocket.Conn) *Client {
	return &Client{Conn: conn, Send: make(chan []byte, 256)}
}

// Queue encodes f for the write pump. It gives up when ctx ends so a dead
// connection never blocks the widget.
func (c *Client) Queue(ctx context.Context, f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		log.Printf("❌ encode %s frame: %v", f.Type, err)
		return
	}
	select {
	case c.Send <- data:
	case <-ctx.Done():
	}
}

// ReadPump decodes commands until the peer goes away. It closes commands on
// return.
func (c *Client) ReadPump(ctx context.Context, commands chan<- Command) error {
	defer close(commands)

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("❌ websocket read: %v", err)
			}
			return nil
		}

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			log.Printf("bad command: %v", err)
			continue
		}

		select {
		case commands <- cmd:
		case <-ctx.Done():
			return nil
		}
	}
}

// WritePump writes queued frames and keeps the connection alive with pings.
// It closes the connection on return, which also stops ReadPump.
func (c *Client) WritePump() error {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The widget is done with this connection.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return errConnClosed
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return err
			}
			w.Write(message)

			// Flush whatever else is queued in the same message.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				next, ok := <-c.Send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(next)
			}

			if err := w.Close(); err != nil {
				return err
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}
