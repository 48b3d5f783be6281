package simserver

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Giorgiberuashvil92/carappX-sub005/internal/event"
)

var (
	// tuning parameters
	writeWait       = 10 * time.Second    // time allowed to write a message to the peer
	pongWait        = 20 * time.Second    // time allowed to read the next pong message from the peer
	pingInterval    = (pongWait * 9) / 10 // send pings to peer with this period
	maxMessageSize  = 64 * 1024           // max inbound message size (64KB)
	sendBufSize     = 256                 // per-connection outbound buffer size
	sendTimeout     = 2 * time.Second     // timeout for enqueuing outbound events
	registerTimeout = 5 * time.Second     // timeout for client registration
)

// Client is one websocket connection to the sim server. Rooms are joined and
// left dynamically over the connection, so a single client can follow many
// conversations at once.
type Client struct {
	ID     string
	userID string
	conn   *websocket.Conn
	hub    *Hub
	egress chan event.Envelope

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func newClient(userID string, conn *websocket.Conn, h *Hub) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:     uuid.New().String(),
		userID: userID,
		conn:   conn,
		hub:    h,
		egress: make(chan event.Envelope, sendBufSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *Client) readMessages() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-time.After(registerTimeout):
			c.hub.logger.Warn("unregister timeout", zap.String("client", c.ID))
		}
		c.close()
	}()

	c.conn.SetReadLimit(int64(maxMessageSize))
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			var env event.Envelope
			if err := c.conn.ReadJSON(&env); err != nil {
				if websocket.IsCloseError(err,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure,
				) {
					c.hub.logger.Info("client disconnected", zap.String("client", c.ID))
					return
				}
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					c.hub.logger.Warn("client timed out", zap.String("client", c.ID))
					return
				}
				c.hub.logger.Warn("read error",
					zap.String("client", c.ID),
					zap.Error(err),
				)
				return
			}

			select {
			case c.hub.inbound <- inboundEvent{client: c, env: env}:
			case <-c.ctx.Done():
				return
			}
		}
	}
}

func (c *Client) writeMessages() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case env, ok := <-c.egress:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				c.hub.logger.Warn("write error",
					zap.String("client", c.ID),
					zap.Error(err),
				)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// send enqueues an event with a timeout; a consistently full egress drops
// the client rather than blocking the hub.
func (c *Client) send(env event.Envelope) bool {
	select {
	case c.egress <- env:
		return true
	case <-time.After(sendTimeout):
		return false
	case <-c.ctx.Done():
		return false
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		c.cancel()
	})
}
