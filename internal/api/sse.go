// internal/api/sse.go: Server-Sent Events stream of pipeline events.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/platewatch/platewatch-go/internal/broadcast"
)

// sseObserver buffers hub events for one connected SSE client. Send never
// blocks the hub: a full buffer means the client cannot keep up and the
// connection gets torn down.
type sseObserver struct {
	id     string
	events chan broadcast.Event
}

func newSSEObserver() *sseObserver {
	return &sseObserver{
		id:     "sse:" + uuid.NewString()[:8],
		events: make(chan broadcast.Event, 16),
	}
}

func (o *sseObserver) ID() string { return o.id }

func (o *sseObserver) Send(event broadcast.Event) error {
	select {
	case o.events <- event:
		return nil
	default:
		return fmt.Errorf("sse client %s buffer full", o.id)
	}
}

// StreamDetections handles GET /api/detections/stream. Each event is written
// as an SSE message with the hub event type as the event name and the JSON
// payload as data. A heartbeat comment keeps intermediaries from closing
// idle connections.
func (c *Controller) StreamDetections(ctx echo.Context) error {
	ctx.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	ctx.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	ctx.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	ctx.Response().Header().Set("X-Accel-Buffering", "no")
	ctx.Response().WriteHeader(http.StatusOK)

	observer := newSSEObserver()
	c.Hub.Register(observer)
	c.metrics.Pipeline.ConnectedObservers.Inc()
	defer func() {
		c.Hub.Unregister(observer.ID())
		c.metrics.Pipeline.ConnectedObservers.Dec()
	}()

	c.apiLogger.Info("SSE client connected",
		"client_id", observer.ID(), "remote_ip", ctx.RealIP())

	if err := writeSSEEvent(ctx, broadcast.Event{
		Type: broadcast.EventStatus,
		Data: broadcast.StatusPayload{Message: "Connected to detection stream"},
	}); err != nil {
		return nil
	}

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Request().Context().Done():
			c.apiLogger.Info("SSE client disconnected", "client_id", observer.ID())
			return nil
		case event := <-observer.events:
			if err := writeSSEEvent(ctx, event); err != nil {
				return nil
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprintf(ctx.Response(), ": heartbeat\n\n"); err != nil {
				return nil
			}
			ctx.Response().Flush()
		}
	}
}

func writeSSEEvent(ctx echo.Context, event broadcast.Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(ctx.Response(), "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return err
	}
	ctx.Response().Flush()
	return nil
}
