package pollchat

import "sync"

// Engine events. The payload type is noted per event.
const (
	EventOpened   = "conversation.opened" // Conversation
	EventMessages = "messages.appended"   // int: index of the first new message
	EventPresence = "presence.updated"    // []string
	EventSending  = "send.busy"           // bool
	EventClosed   = "session.closed"      // error, nil on plain logout
)

// EventHandler handles engine events.
type EventHandler func(event string, payload any)

type emitter struct {
	mu        sync.RWMutex
	listeners map[string][]EventHandler
}

// On registers a handler for event.
func (e *emitter) On(event string, handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[string][]EventHandler)
	}
	e.listeners[event] = append(e.listeners[event], handler)
}

func (e *emitter) emit(event string, payload any) {
	e.mu.RLock()
	handlers := e.listeners[event]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() { recover() }() // swallow panics in user callbacks
			h(event, payload)
		}()
	}
}
