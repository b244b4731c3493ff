package tool

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	ErrMissingName    = errors.New("missing tool name")
	ErrDuplicate      = errors.New("tool already added")
	ErrInvalidHandler = errors.New("tool handler must be a function")
	ErrNotFound       = errors.New("tool does not exist")
)

// Registry holds at most one registration per tool name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Registration
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Registration)}
}

func (r *Registry) Add(t Tool, h Handler) (Registration, error) {
	if t.Name == "" {
		return Registration{}, ErrMissingName
	}
	if h == nil {
		return Registration{}, fmt.Errorf("%w: %q", ErrInvalidHandler, t.Name)
	}
	if t.Type == "" {
		t.Type = TypeFunction
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[t.Name]; ok {
		return Registration{}, fmt.Errorf("tool %q: %w", t.Name, ErrDuplicate)
	}
	reg := Registration{Tool: t, Handler: h}
	r.tools[t.Name] = reg
	r.order = append(r.order, t.Name)
	return reg, nil
}

func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[name]; !ok {
		return fmt.Errorf("tool %q: %w", name, ErrNotFound)
	}
	delete(r.tools, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
	return nil
}

func (r *Registry) Get(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	return reg, ok
}

// Tools returns the definitions in registration order. Never nil.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Tool)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = make(map[string]Registration)
	r.order = nil
}
