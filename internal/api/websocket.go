// internal/api/websocket.go: WebSocket delivery of pipeline events.
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/platewatch/platewatch-go/internal/broadcast"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser dashboards connect from arbitrary origins, same policy as
	// the permissive CORS config on the REST routes.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsObserver wraps one WebSocket connection as a hub observer. gorilla
// connections allow a single concurrent writer, so Send serializes writes
// behind a mutex.
type wsObserver struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newWSObserver(conn *websocket.Conn) *wsObserver {
	return &wsObserver{
		id:   "ws:" + uuid.NewString()[:8],
		conn: conn,
	}
}

func (o *wsObserver) ID() string { return o.id }

func (o *wsObserver) Send(event broadcast.Event) error {
	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	o.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return o.conn.WriteJSON(event)
}

// HandleWebSocket handles GET /ws. The connection receives the same event
// stream as SSE clients; incoming frames are drained only to detect
// disconnect.
func (c *Controller) HandleWebSocket(ctx echo.Context) error {
	conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return c.HandleError(ctx, err, "WebSocket upgrade failed", http.StatusBadRequest)
	}

	observer := newWSObserver(conn)
	c.Hub.Register(observer)
	c.metrics.Pipeline.ConnectedObservers.Inc()

	c.apiLogger.Info("WebSocket client connected",
		"client_id", observer.ID(), "remote_ip", ctx.RealIP())

	if err := observer.Send(broadcast.Event{
		Type: broadcast.EventStatus,
		Data: broadcast.StatusPayload{Message: "Connected to detection stream"},
	}); err != nil {
		c.Hub.Unregister(observer.ID())
		c.metrics.Pipeline.ConnectedObservers.Dec()
		conn.Close()
		return nil
	}

	// Read loop: the client never sends application frames, but reading is
	// required to process control frames and observe the close.
	go func() {
		defer func() {
			c.Hub.Unregister(observer.ID())
			c.metrics.Pipeline.ConnectedObservers.Dec()
			conn.Close()
			c.apiLogger.Info("WebSocket client disconnected", "client_id", observer.ID())
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	return nil
}
