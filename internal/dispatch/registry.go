package dispatch

import (
	"context"
	"fmt"
	"sort"

	"github.com/hudsor01/tenant-flow-sub014/internal/webhook"
)

// Handler turns one verified event into one atomic set of storage
// mutations. Implementations classify unrecoverable input with
// worker.Terminal; every other error is treated as retryable.
type Handler interface {
	Handle(ctx context.Context, evt webhook.Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt webhook.Event) error

func (f HandlerFunc) Handle(ctx context.Context, evt webhook.Event) error {
	return f(ctx, evt)
}

// Registry is a closed mapping from normalized event type to one
// registered handler. Registration happens once at startup; lookups are
// read-only afterwards, so no locking is needed.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds an event type to a handler. Double registration is a
// wiring bug and panics at startup rather than shadowing silently.
func (r *Registry) Register(eventType string, h Handler) {
	if _, exists := r.handlers[eventType]; exists {
		panic(fmt.Sprintf("dispatch: handler already registered for %q", eventType))
	}
	r.handlers[eventType] = h
}

// Lookup resolves the handler for an event type. Unknown types are not
// failures; the caller acknowledges and ignores them.
func (r *Registry) Lookup(eventType string) (Handler, bool) {
	h, ok := r.handlers[eventType]
	return h, ok
}

// Types returns the registered event types, sorted, for startup logging.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
