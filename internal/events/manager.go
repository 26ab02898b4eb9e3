package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler receives events published on the bus
type Handler func(event *Event)

// Manager handles event emission, logging and fan-out to subscribers.
// Subscribers (the SSE stream, the websocket feed) receive every event;
// slow subscribers must buffer on their side, delivery here is synchronous.
type Manager struct {
	log zerolog.Logger

	mu          sync.RWMutex
	subscribers map[int]Handler
	nextID      int
}

// NewManager creates a new event manager
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log:         log.With().Str("service", "events").Logger(),
		subscribers: make(map[int]Handler),
	}
}

// Subscribe registers a handler for all events. The returned function
// removes the subscription.
func (m *Manager) Subscribe(handler Handler) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subscribers[id] = handler
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// Emit emits an event
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Module:    module,
		Data:      data,
	}

	eventJSON, _ := json.Marshal(event)
	m.log.Info().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")

	m.mu.RLock()
	handlers := make([]Handler, 0, len(m.subscribers))
	for _, h := range m.subscribers {
		handlers = append(handlers, h)
	}
	m.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	data := map[string]interface{}{
		"error":   err.Error(),
		"context": context,
	}
	m.Emit(ErrorOccurred, module, data)
}
