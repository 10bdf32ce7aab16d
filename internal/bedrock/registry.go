package bedrock

import (
	"reflect"
	"sort"
	"sync"
)

// Handler is invoked once per received event it is registered for.
type Handler func(*EventContext)

type registryEntry struct {
	handler       Handler
	autoSubscribe bool
}

// Registry maps event names to the set of handlers registered for them. A
// Registry is safe for concurrent use; On may be called while Lookup is
// iterating a previously returned snapshot.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]registryEntry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string][]registryEntry)}
}

// On registers handler for eventName. autoSubscribe controls whether a new
// session automatically subscribes to eventName on open. Registering the
// same handler twice for the same event name is a no-op; handler identity is
// compared by function pointer.
func (r *Registry) On(eventName string, autoSubscribe bool, handler Handler) {
	key := reflect.ValueOf(handler).Pointer()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.handlers[eventName] {
		if reflect.ValueOf(e.handler).Pointer() == key {
			return
		}
	}
	r.handlers[eventName] = append(r.handlers[eventName], registryEntry{
		handler:       handler,
		autoSubscribe: autoSubscribe,
	})
}

// Lookup returns a snapshot of the handlers currently registered for
// eventName. The returned slice is safe to iterate even if On is called
// concurrently for the same name; it never reflects a mutation made after
// Lookup returns.
func (r *Registry) Lookup(eventName string) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.handlers[eventName]
	if len(entries) == 0 {
		return nil
	}
	out := make([]Handler, len(entries))
	for i, e := range entries {
		out[i] = e.handler
	}
	return out
}

// AutoSubscribeNames returns the sorted set of event names that have at
// least one handler registered with autoSubscribe=true.
func (r *Registry) AutoSubscribeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, entries := range r.handlers {
		for _, e := range entries {
			if e.autoSubscribe {
				names = append(names, name)
				break
			}
		}
	}
	sort.Strings(names)
	return names
}
