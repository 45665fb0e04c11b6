package countdown

import "sync"

type handler struct {
	id   uint64
	kind EventKind // empty matches every kind
	fn   func(Event)
}

// emitter fans events out to handlers in registration order. Events published
// while another caller is draining (including reentrant calls made from inside
// a handler) are queued behind the event being delivered, so every handler
// observes the same global order.
type emitter struct {
	mu       sync.Mutex
	handlers []handler
	nextID   uint64
	queue    []Event
	draining bool
}

func (e *emitter) subscribe(kind EventKind, fn func(Event)) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.handlers = append(e.handlers, handler{id: id, kind: kind, fn: fn})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { e.unsubscribe(id) })
	}
}

func (e *emitter) unsubscribe(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, h := range e.handlers {
		if h.id == id {
			e.handlers = append(e.handlers[:i:i], e.handlers[i+1:]...)
			return
		}
	}
}

func (e *emitter) publish(events []Event) {
	if e.enqueue(events) {
		e.drain()
	}
}

// enqueue appends events to the delivery queue. It reports whether the caller
// claimed the drain and must call drain; otherwise an active drainer will
// deliver them. Callers holding an ordering lock enqueue under it, so queue
// order matches the order their transitions happened in.
func (e *emitter) enqueue(events []Event) bool {
	if len(events) == 0 {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = append(e.queue, events...)
	if e.draining {
		return false
	}
	e.draining = true
	return true
}

func (e *emitter) drain() {
	defer func() {
		if r := recover(); r != nil {
			e.mu.Lock()
			e.draining = false
			e.mu.Unlock()
			panic(r)
		}
	}()

	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.draining = false
			e.mu.Unlock()
			return
		}
		ev := e.queue[0]
		e.queue = e.queue[1:]
		handlers := append([]handler(nil), e.handlers...)
		e.mu.Unlock()

		for _, h := range handlers {
			if h.kind == "" || h.kind == ev.Kind {
				h.fn(ev)
			}
		}
	}
}
