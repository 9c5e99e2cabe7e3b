package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-fresh-orders/internal/auth"
	"github.com/ariefcatur/go-fresh-orders/internal/orders"
)

const (
	ActionJoinOrderRoom  = "join-order-room"
	ActionLeaveOrderRoom = "leave-order-room"
	ActionJoinAdminRoom  = "join-admin-room"

	EventJoined = "joined"
	EventLeft   = "left"
	EventError  = "error"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4 << 10
)

var ErrRoomForbidden = errors.New("not allowed to join this room")

// OrderGuard decides whether id may follow the given order.
type OrderGuard func(ctx context.Context, id auth.Identity, orderID string) error

type control struct {
	Action  string `json:"action"`
	OrderID string `json:"orderId,omitempty"`
}

type frame struct {
	Topic string `json:"topic,omitempty"`
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// WSHandler serves the WebSocket transport of the hub. The request must
// already carry an identity (auth.Middleware).
type WSHandler struct {
	Hub      *Hub
	Guard    OrderGuard
	Log      *zap.Logger
	Upgrader websocket.Upgrader
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log().Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsClient{
		h:       h,
		id:      id,
		conn:    conn,
		sub:     h.Hub.Subscribe(),
		replies: make(chan frame, 16),
		done:    make(chan struct{}),
	}
	defer c.sub.Close()

	go c.writeLoop()
	c.readLoop(r.Context())
}

func (h *WSHandler) log() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

type wsClient struct {
	h       *WSHandler
	id      auth.Identity
	conn    *websocket.Conn
	sub     *Subscription
	replies chan frame
	done    chan struct{}
}

func (c *wsClient) readLoop(ctx context.Context) {
	defer close(c.done)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.h.log().Debug("websocket closed", zap.String("user_id", c.id.UserID), zap.Error(err))
			}
			return
		}
		var msg control
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply(frame{Event: EventError, Data: map[string]string{"message": "malformed message"}})
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *wsClient) handle(ctx context.Context, msg control) {
	switch msg.Action {
	case ActionJoinOrderRoom:
		if msg.OrderID == "" {
			c.fail("orderId is required")
			return
		}
		if c.h.Guard != nil {
			if err := c.h.Guard(ctx, c.id, msg.OrderID); err != nil {
				c.fail(ErrRoomForbidden.Error())
				return
			}
		}
		topic := orders.OrderRoom(msg.OrderID)
		c.sub.Join(topic)
		c.reply(frame{Topic: topic, Event: EventJoined})
	case ActionLeaveOrderRoom:
		if msg.OrderID == "" {
			c.fail("orderId is required")
			return
		}
		topic := orders.OrderRoom(msg.OrderID)
		c.sub.Leave(topic)
		c.reply(frame{Topic: topic, Event: EventLeft})
	case ActionJoinAdminRoom:
		if !c.id.IsOperator() {
			c.fail(ErrRoomForbidden.Error())
			return
		}
		c.sub.Join(orders.RoomAdmin)
		c.reply(frame{Topic: orders.RoomAdmin, Event: EventJoined})
	default:
		c.fail("unknown action " + msg.Action)
	}
}

func (c *wsClient) fail(msg string) {
	c.reply(frame{Event: EventError, Data: map[string]string{"message": msg}})
}

// reply drops the frame if the writer is backed up.
func (c *wsClient) reply(f frame) {
	select {
	case c.replies <- f:
	default:
	}
}

func (c *wsClient) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case m, ok := <-c.sub.C():
			if !ok {
				return
			}
			if err := c.write(m); err != nil {
				return
			}
		case f := <-c.replies:
			if err := c.write(f); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

func (c *wsClient) write(v any) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}
