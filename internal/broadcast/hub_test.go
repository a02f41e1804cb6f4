package broadcast

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeObserver records received events and can be told to fail.
type fakeObserver struct {
	id       string
	mu       sync.Mutex
	received []Event
	fail     atomic.Bool
}

func newFakeObserver(id string) *fakeObserver {
	return &fakeObserver{id: id}
}

func (o *fakeObserver) ID() string { return o.id }

func (o *fakeObserver) Send(event Event) error {
	if o.fail.Load() {
		return fmt.Errorf("observer %s closed", o.id)
	}
	o.mu.Lock()
	o.received = append(o.received, event)
	o.mu.Unlock()
	return nil
}

func (o *fakeObserver) events() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Event(nil), o.received...)
}

func TestHubRegisterUnregister(t *testing.T) {
	t.Parallel()
	hub := NewHub()

	first := newFakeObserver("first")
	second := newFakeObserver("second")

	hub.Register(first)
	hub.Register(second)
	assert.Equal(t, 2, hub.Count())

	hub.Unregister("first")
	assert.Equal(t, 1, hub.Count())

	// Unknown ids are ignored.
	hub.Unregister("never-registered")
	assert.Equal(t, 1, hub.Count())
}

func TestHubPublishReachesAllObservers(t *testing.T) {
	t.Parallel()
	hub := NewHub()

	observers := make([]*fakeObserver, 5)
	for i := range observers {
		observers[i] = newFakeObserver(fmt.Sprintf("observer-%d", i))
		hub.Register(observers[i])
	}

	event := Event{Type: EventNewDetection, Data: StatusPayload{Message: "hello"}}
	hub.Publish(event)

	for _, observer := range observers {
		events := observer.events()
		require.Len(t, events, 1)
		assert.Equal(t, EventNewDetection, events[0].Type)
	}
}

func TestHubDropsFailingObserver(t *testing.T) {
	t.Parallel()
	hub := NewHub()

	healthy := newFakeObserver("healthy")
	broken := newFakeObserver("broken")
	broken.fail.Store(true)

	hub.Register(healthy)
	hub.Register(broken)

	hub.Publish(Event{Type: EventNewDetection})

	assert.Equal(t, 1, hub.Count())
	assert.Len(t, healthy.events(), 1)
	assert.Empty(t, broken.events())

	// Subsequent publishes only reach the survivor.
	hub.Publish(Event{Type: EventNewDetection})
	assert.Len(t, healthy.events(), 2)
}

func TestHubPublishEmpty(t *testing.T) {
	t.Parallel()
	hub := NewHub()

	// Publishing with no observers must not panic.
	hub.Publish(Event{Type: EventNewDetection})
	assert.Equal(t, 0, hub.Count())
}

func TestHubConcurrentAccess(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub()
	var wg sync.WaitGroup

	const workers = 20
	for i := 0; i < workers; i++ {
		wg.Add(3)

		go func(n int) {
			defer wg.Done()
			observer := newFakeObserver(fmt.Sprintf("churn-%d", n))
			hub.Register(observer)
			hub.Unregister(observer.ID())
		}(i)

		go func(n int) {
			defer wg.Done()
			hub.Publish(Event{Type: EventNewDetection, Data: n})
		}(i)

		go func() {
			defer wg.Done()
			_ = hub.Count()
		}()
	}

	wg.Wait()
	assert.Equal(t, 0, hub.Count())
}

func TestHubObserverRegisteredDuringPublishSeesLaterEvents(t *testing.T) {
	t.Parallel()
	hub := NewHub()

	late := newFakeObserver("late")
	hub.Publish(Event{Type: EventNewDetection, Data: 1})

	hub.Register(late)
	hub.Publish(Event{Type: EventNewDetection, Data: 2})

	events := late.events()
	require.Len(t, events, 1)
	assert.Equal(t, 2, events[0].Data)
}
