package hydra

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
)

// Handler processes one validated message.
type Handler func(m Message)

// RouterStats counts messages the router refused. Dropped messages are
// never retried.
type RouterStats struct {
	OriginRejected uint64
	SchemaInvalid  uint64
	UnknownType    uint64
	Unhandled      uint64
}

// Router is the only code path allowed to touch the channel. It checks the
// sender origin against the single configured peer origin, validates the
// payload schema, and dispatches to the handler registered for the type.
// Anything that fails a check is dropped whole.
type Router struct {
	ch         Channel
	peerOrigin string
	debug      bool

	mu       sync.RWMutex
	handlers map[MessageType]Handler

	originRejected atomic.Uint64
	schemaInvalid  atomic.Uint64
	unknownType    atomic.Uint64
	unhandled      atomic.Uint64
}

// NewRouter wraps a channel endpoint. peerOrigin is the only origin whose
// messages are accepted.
func NewRouter(ch Channel, peerOrigin string, debug bool) *Router {
	return &Router{
		ch:         ch,
		peerOrigin: peerOrigin,
		debug:      debug,
		handlers:   make(map[MessageType]Handler),
	}
}

// Handle registers the handler for a message type. Registering twice
// replaces the previous handler.
func (r *Router) Handle(t MessageType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
}

// Start begins receiving from the channel. Handlers registered after Start
// still take effect; messages for types with no handler yet are dropped.
func (r *Router) Start() {
	r.ch.SetReceiver(r.dispatch)
}

// Send validates the outgoing payload against the protocol schema and
// writes it to the channel.
func (r *Router) Send(t MessageType, payload any) error {
	m, err := NewMessage(t, payload)
	if err != nil {
		return err
	}
	if err := ValidateMessage(m); err != nil {
		return fmt.Errorf("router: refusing to send: %w", err)
	}
	if r.debug {
		log.Printf("[Router] send %s", t)
	}
	return r.ch.Send(m)
}

// Close shuts the underlying channel down.
func (r *Router) Close() error {
	return r.ch.Close()
}

// Stats returns drop counters.
func (r *Router) Stats() RouterStats {
	return RouterStats{
		OriginRejected: r.originRejected.Load(),
		SchemaInvalid:  r.schemaInvalid.Load(),
		UnknownType:    r.unknownType.Load(),
		Unhandled:      r.unhandled.Load(),
	}
}

func (r *Router) dispatch(d Delivery) {
	if d.Origin != r.peerOrigin {
		r.originRejected.Add(1)
		if r.debug {
			log.Printf("[Router] dropped %s from origin %q (expected %q)",
				d.Message.Type, d.Origin, r.peerOrigin)
		}
		return
	}

	if _, known := payloadSchemas[d.Message.Type]; !known {
		r.unknownType.Add(1)
		if r.debug {
			log.Printf("[Router] dropped unknown message type %q", d.Message.Type)
		}
		return
	}

	if err := ValidateMessage(d.Message); err != nil {
		r.schemaInvalid.Add(1)
		if r.debug {
			log.Printf("[Router] dropped %s: %v", d.Message.Type, err)
		}
		return
	}

	r.mu.RLock()
	h, ok := r.handlers[d.Message.Type]
	r.mu.RUnlock()
	if !ok {
		r.unhandled.Add(1)
		if r.debug {
			log.Printf("[Router] no handler for %s", d.Message.Type)
		}
		return
	}

	h(d.Message)
}
