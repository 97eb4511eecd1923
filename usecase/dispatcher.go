package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/fastygo/catalog/domain"
)

// EventHandler applies one item event.
type EventHandler func(ctx context.Context, event domain.ItemEvent) error

// Dispatcher routes item events to the handler registered under the event name.
type Dispatcher struct {
	handlers map[string]EventHandler
	validate *validator.Validate
	mu       sync.RWMutex
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]EventHandler),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (d *Dispatcher) Register(name string, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = handler
}

// Registered lists the names that currently have a handler.
func (d *Dispatcher) Registered() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	return names
}

// Dispatch validates the event and runs its handler.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.ItemEvent) error {
	if err := d.validate.Struct(event); err != nil {
		return domain.WrapError(domain.ErrCodeInvalid, "invalid item event", err)
	}

	d.mu.RLock()
	handler, ok := d.handlers[event.Name]
	d.mu.RUnlock()
	if !ok {
		return domain.WrapError(domain.ErrCodeInvalid, fmt.Sprintf("event handler %s not registered", event.Name), domain.ErrInvalidPayload)
	}
	return handler(ctx, event)
}
