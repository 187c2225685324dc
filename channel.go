package hydra

import (
	"fmt"
	"sync"
)

// Channel is one endpoint of the single asynchronous stream joining the two
// runtimes. Messages are delivered to the receiver in send order, one at a
// time; implementations never invoke the receiver concurrently. There is no
// request/response framing at this level: correlation is the caller's job.
type Channel interface {
	// Send queues a message for the peer. It never blocks on the peer's
	// handler.
	Send(m Message) error

	// SetReceiver registers the handler for delivered messages and starts
	// delivery. Must be called exactly once.
	SetReceiver(fn func(Delivery))

	// Close tears the endpoint down. Messages sent after Close are
	// discarded with an error.
	Close() error
}

// Loopback is an in-process channel pair used by tests and embedded
// previews. Each side sees the other's configured origin stamped on every
// delivery, mirroring how a browser stamps event.origin.
type Loopback struct {
	A *LoopbackEnd
	B *LoopbackEnd

	pending sync.WaitGroup
}

// NewLoopback builds a connected channel pair. originA and originB are the
// origins stamped on messages sent from A and B respectively.
func NewLoopback(originA, originB string) *Loopback {
	lb := &Loopback{}
	lb.A = &LoopbackEnd{origin: originA, lb: lb}
	lb.B = &LoopbackEnd{origin: originB, lb: lb}
	lb.A.peer = lb.B
	lb.B.peer = lb.A
	return lb
}

// Settle blocks until every message sent so far, including messages sent
// from inside handlers, has been handled. It gives tests a deterministic
// quiescence point without polling.
func (lb *Loopback) Settle() {
	lb.pending.Wait()
}

// Close shuts both endpoints down.
func (lb *Loopback) Close() {
	lb.A.Close()
	lb.B.Close()
}

// LoopbackEnd is one side of a Loopback.
type LoopbackEnd struct {
	origin string
	lb     *Loopback
	peer   *LoopbackEnd

	mu       sync.Mutex
	receiver func(Delivery)
	queue    []Delivery
	wake     chan struct{}
	closed   bool
}

// Origin returns the origin this endpoint stamps on outgoing messages.
func (e *LoopbackEnd) Origin() string { return e.origin }

// Send delivers m to the peer's queue, stamped with this end's origin.
func (e *LoopbackEnd) Send(m Message) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return fmt.Errorf("loopback: send on closed endpoint")
	}
	e.peer.enqueue(Delivery{Origin: e.origin, Message: m})
	return nil
}

// SendAs delivers m stamped with an arbitrary origin. Tests use it to model
// a hostile sender; production code has no business calling it.
func (e *LoopbackEnd) SendAs(origin string, m Message) error {
	e.peer.enqueue(Delivery{Origin: origin, Message: m})
	return nil
}

func (e *LoopbackEnd) enqueue(d Delivery) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.lb.pending.Add(1)
	e.queue = append(e.queue, d)
	wake := e.wake
	e.mu.Unlock()
	if wake != nil {
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}

// SetReceiver starts the dispatch goroutine. Deliveries queued before the
// receiver was set are handled first, in order.
func (e *LoopbackEnd) SetReceiver(fn func(Delivery)) {
	e.mu.Lock()
	e.receiver = fn
	e.wake = make(chan struct{}, 1)
	e.mu.Unlock()
	go e.dispatch()
}

func (e *LoopbackEnd) dispatch() {
	for {
		e.mu.Lock()
		if e.closed && len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		if len(e.queue) == 0 {
			wake := e.wake
			e.mu.Unlock()
			_, ok := <-wake
			if !ok {
				return
			}
			continue
		}
		d := e.queue[0]
		e.queue = e.queue[1:]
		fn := e.receiver
		e.mu.Unlock()

		fn(d)
		e.lb.pending.Done()
	}
}

// Close discards queued deliveries and stops dispatch.
func (e *LoopbackEnd) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	for range e.queue {
		e.lb.pending.Done()
	}
	e.queue = nil
	wake := e.wake
	e.wake = nil
	e.mu.Unlock()
	if wake != nil {
		close(wake)
	}
	return nil
}
