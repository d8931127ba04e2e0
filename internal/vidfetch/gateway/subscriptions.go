package gateway

import (
	"sync"

	"github.com/vidfetch/vidfetch/internal/vidfetch/domain"
)

// ScopeAll subscribes an observer to every job.
const ScopeAll = "*"

// Observer is the outbound side of one connected session. Enqueue must not
// block; it reports false when the observer cannot keep up.
type Observer interface {
	ID() string
	Enqueue(message Message) bool
}

// SubscriptionManager maps scopes (a job id, or ScopeAll) to observers and
// fans published events out to whoever matches. It holds no job state at
// all, only observer handles.
type SubscriptionManager struct {
	mu sync.RWMutex
	// scope -> observer id -> observer
	byScope map[string]map[string]Observer
}

func NewSubscriptionManager() *SubscriptionManager {
	return &SubscriptionManager{
		byScope: map[string]map[string]Observer{},
	}
}

// Subscribe adds observer to scope. Subscribing twice is a no-op.
func (m *SubscriptionManager) Subscribe(observer Observer, scope string) {
	if scope == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	observers, ok := m.byScope[scope]
	if !ok {
		observers = map[string]Observer{}
		m.byScope[scope] = observers
	}
	observers[observer.ID()] = observer
}

// Unsubscribe removes observer from scope. Unsubscribing an absent scope is
// a no-op.
func (m *SubscriptionManager) Unsubscribe(observerID string, scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(observerID, scope)
}

// Drop removes every subscription held by an observer. Called on
// disconnect; the jobs themselves are untouched.
func (m *SubscriptionManager) Drop(observerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for scope := range m.byScope {
		m.removeLocked(observerID, scope)
	}
}

func (m *SubscriptionManager) removeLocked(observerID string, scope string) {
	observers, ok := m.byScope[scope]
	if !ok {
		return
	}
	delete(observers, observerID)
	if len(observers) == 0 {
		delete(m.byScope, scope)
	}
}

// HandleEvent fans one event out to every matching observer. An observer
// subscribed to both the job and ScopeAll receives the frame twice.
// Delivery is a non-blocking enqueue, so a slow observer never stalls the
// publisher.
func (m *SubscriptionManager) HandleEvent(event domain.Event) {
	message, ok := FromEvent(event)
	if !ok {
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, observer := range m.byScope[event.JobID] {
		observer.Enqueue(message)
	}
	for _, observer := range m.byScope[ScopeAll] {
		observer.Enqueue(message)
	}
}

// SubscriptionCount reports the total number of (observer, scope) pairs.
func (m *SubscriptionManager) SubscriptionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, observers := range m.byScope {
		total += len(observers)
	}
	return total
}
