package eventbus

import (
	"sync"

	"github.com/vidfetch/vidfetch/internal/vidfetch/domain"
)

// Publisher is the write side of the bus. The scheduler is the only
// producer; events for one job are always published from one goroutine, so
// per-job ordering is whatever the scheduler produced.
type Publisher interface {
	Publish(event domain.Event)
}

// Handler receives every published event, synchronously, in the publishing
// goroutine. Handlers must not block: anything slow belongs behind a queue
// on the handler's side.
type Handler func(event domain.Event)

// Bus delivers events to the registered handlers with no buffering and no
// replay. An observer registered after an event was published never sees it.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Register(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

func (b *Bus) Publish(event domain.Event) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

// RecordingBus captures published events for tests.
type RecordingBus struct {
	mu     sync.Mutex
	Events []domain.Event
}

func (b *RecordingBus) Publish(event domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Events = append(b.Events, event)
}

func (b *RecordingBus) Published() []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Event, len(b.Events))
	copy(out, b.Events)
	return out
}
