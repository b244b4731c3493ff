// Package eventbus is a named-event registry. Handlers run synchronously, in
// registration order, on the goroutine that calls Dispatch.
package eventbus

import (
	"context"
	"fmt"
	"sync"
)

// Handler receives the payload of a dispatched event.
type Handler func(payload any)

type registration struct {
	id      uint64
	handler Handler
	once    bool
}

type Dispatcher struct {
	mu       sync.Mutex
	handlers map[string][]registration
	nextID   uint64
}

func New() *Dispatcher {
	return &Dispatcher{handlers: make(map[string][]registration)}
}

// On registers h for every dispatch of name. The returned func detaches it.
func (d *Dispatcher) On(name string, h Handler) (off func()) {
	id := d.register(name, h, false)
	return func() { d.remove(name, id) }
}

// Dispatch invokes the handlers registered for name. One-shot registrations
// are consumed before any handler runs, so a handler may safely register
// new waiters for the same name.
func (d *Dispatcher) Dispatch(name string, payload any) {
	d.mu.Lock()
	regs := d.handlers[name]
	if len(regs) == 0 {
		d.mu.Unlock()
		return
	}
	snapshot := make([]registration, len(regs))
	copy(snapshot, regs)

	kept := regs[:0:0]
	for _, r := range regs {
		if !r.once {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(d.handlers, name)
	} else {
		d.handlers[name] = kept
	}
	d.mu.Unlock()

	for _, r := range snapshot {
		r.handler(payload)
	}
}

// Clear drops every registration, pending waiters included.
func (d *Dispatcher) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = make(map[string][]registration)
}

// Len reports the number of registrations for name.
func (d *Dispatcher) Len(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers[name])
}

// WaitForNext blocks until the next dispatch of name and returns its
// payload. Dispatches that happened before the call are not observed. If ctx
// ends first the one-shot registration is detached and ctx.Err() returned.
func (d *Dispatcher) WaitForNext(ctx context.Context, name string) (any, error) {
	ch := make(chan any, 1)
	id := d.register(name, func(payload any) { ch <- payload }, true)

	select {
	case payload := <-ch:
		return payload, nil
	case <-ctx.Done():
		d.remove(name, id)
		return nil, ctx.Err()
	}
}

// WaitFor is WaitForNext with the payload asserted to T.
func WaitFor[T any](ctx context.Context, d *Dispatcher, name string) (T, error) {
	var zero T
	payload, err := d.WaitForNext(ctx, name)
	if err != nil {
		return zero, err
	}
	v, ok := payload.(T)
	if !ok {
		return zero, fmt.Errorf("event %q: unexpected payload %T", name, payload)
	}
	return v, nil
}

func (d *Dispatcher) register(name string, h Handler, once bool) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.handlers[name] = append(d.handlers[name], registration{id: d.nextID, handler: h, once: once})
	return d.nextID
}

func (d *Dispatcher) remove(name string, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	regs := d.handlers[name]
	for i, r := range regs {
		if r.id == id {
			regs = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(regs) == 0 {
		delete(d.handlers, name)
	} else {
		d.handlers[name] = regs
	}
}
