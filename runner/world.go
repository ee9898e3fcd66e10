package runner

import (
	"fmt"
	"sync"
)

// World is per-scenario state shared between the hooks and steps of one
// scenario. Every scenario gets a fresh World.
//
// Usage pattern:
//
//	runner.WithSteps(func(ctx context.Context, w *runner.World, st *cuke.Step) error {
//	    switch st.Text {
//	    case "a cart":
//	        runner.Store(w, "cart", &Cart{})
//	    case "I pay":
//	        cart := runner.MustLoad[*Cart](w, "cart")
//	        return cart.Pay(ctx)
//	    }
//	    return nil
//	})
//
// World is safe for concurrent use, so steps may hand it to goroutines they
// start.
type World struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewWorld creates an empty World.
func NewWorld() *World {
	return &World{
		data: make(map[string]any),
	}
}

// Store saves a value under the given key.
// The type T is inferred from the value at the call site.
func Store[T any](w *World, key string, value T) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.data[key] = value
}

// Load retrieves a value by key with type assertion.
// Returns (zero, false) if key is missing or type doesn't match.
func Load[T any](w *World, key string) (T, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	v, ok := w.data[key]
	if !ok {
		var zero T
		return zero, false
	}

	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, false
	}

	return typed, true
}

// MustLoad retrieves a value by key with type assertion, or panics.
// Use this when an earlier step of the scenario is known to store the key.
// A panic inside a step fails that step.
func MustLoad[T any](w *World, key string) T {
	v, ok := Load[T](w, key)
	if !ok {
		panic(fmt.Sprintf("world: key %q not found or wrong type (expected %T)", key, *new(T)))
	}
	return v
}

// Has returns true if the key exists. Does not check the value's type.
func (w *World) Has(key string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.data[key]
	return ok
}

// Keys returns all keys currently stored.
// The order is not guaranteed.
func (w *World) Keys() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	keys := make([]string, 0, len(w.data))
	for k := range w.data {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of stored values.
func (w *World) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.data)
}

// Delete removes a value by key.
// No-op if key doesn't exist.
func (w *World) Delete(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.data, key)
}
