// Package broadcast tracks currently connected observers and fans new
// detection events out to all of them. Delivery is best-effort: there is no
// backlog, no replay and a failing observer never fails the publishing
// request.
package broadcast

import (
	"log/slog"
	"sync"

	"github.com/platewatch/platewatch-go/internal/datastore"
	"github.com/platewatch/platewatch-go/internal/logging"
)

// Event types emitted on the realtime channel.
const (
	EventStatus       = "status"
	EventNewDetection = "new-detection"
)

// StatusPayload is sent to every observer right after it connects.
type StatusPayload struct {
	Message string `json:"message"`
}

// DetectionPayload carries a freshly persisted detection to observers,
// including the echoed bounding box that is never stored.
type DetectionPayload struct {
	datastore.Detection
	ImageURL    string `json:"imageUrl"`
	BoundingBox []int  `json:"boundingBox,omitempty"`
}

// Event is one message on the realtime channel.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Observer is a connected realtime client. Send must be safe for concurrent
// use and should fail fast rather than block the hub.
type Observer interface {
	ID() string
	Send(event Event) error
}

// Hub owns the observer registry. It is the only cross-request mutable state
// in the pipeline and is safe for concurrent register, unregister and publish.
type Hub struct {
	mu        sync.RWMutex
	observers map[string]Observer
	logger    *slog.Logger
}

// NewHub creates an empty observer hub.
func NewHub() *Hub {
	logger := logging.ForService("broadcast")
	if logger == nil {
		logger = logging.NewDiscardLogger("broadcast")
	}
	return &Hub{
		observers: make(map[string]Observer),
		logger:    logger,
	}
}

// Register adds an observer. An observer registered while a publish is in
// flight sees either the whole event or nothing, never a partial message.
func (h *Hub) Register(observer Observer) {
	h.mu.Lock()
	h.observers[observer.ID()] = observer
	count := len(h.observers)
	h.mu.Unlock()

	h.logger.Info("observer registered", "observer_id", observer.ID(), "total", count)
}

// Unregister removes an observer by id. Unknown ids are ignored.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	_, exists := h.observers[id]
	delete(h.observers, id)
	count := len(h.observers)
	h.mu.Unlock()

	if exists {
		h.logger.Info("observer unregistered", "observer_id", id, "total", count)
	}
}

// Count returns the number of currently registered observers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Publish sends the event to every observer registered at the moment of the
// call. The observer set is snapshotted under the read lock and sends happen
// outside it, so a slow observer never blocks registration. Observers whose
// Send fails are logged and dropped from the registry.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	snapshot := make([]Observer, 0, len(h.observers))
	for _, observer := range h.observers {
		snapshot = append(snapshot, observer)
	}
	h.mu.RUnlock()

	if len(snapshot) == 0 {
		return
	}

	var failed []string
	for _, observer := range snapshot {
		if err := observer.Send(event); err != nil {
			h.logger.Warn("failed to send event to observer",
				"observer_id", observer.ID(), "event_type", event.Type, "error", err)
			failed = append(failed, observer.ID())
		}
	}

	for _, id := range failed {
		h.Unregister(id)
	}

	h.logger.Debug("event published",
		"event_type", event.Type, "observers", len(snapshot), "failed", len(failed))
}
