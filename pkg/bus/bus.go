// Package bus implements a type-keyed message bus: handlers are
// registered per exact message type and invoked on publish with a
// documented partial-failure policy. Two variants are provided —
// CooperativeBus (concurrent fan-out via goroutines) and BlockingBus
// (serial, registration order). They share the registration/
// partial-failure bookkeeping in this file but never share a
// subscriber registry with each other.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"sync"

	"github.com/coreflow/eventcore/pkg/coreerr"
)

// Handler processes a single message. Handlers must not rely on call
// ordering relative to other handlers registered for the same type.
type Handler func(ctx context.Context, msg any) error

// handlerEntry pairs a handler with a stable, loggable identity derived
// from its function pointer.
type handlerEntry struct {
	name string
	fn   Handler
}

func handlerName(fn Handler) string {
	ptr := reflect.ValueOf(fn).Pointer()
	if details := runtime.FuncForPC(ptr); details != nil {
		return details.Name()
	}
	return "unknown"
}

// registry is the shared type-keyed subscription map. Both bus variants
// embed it; it is not itself exported since the two variants must never
// share live registrations with each other.
type registry struct {
	mu       sync.RWMutex
	handlers map[string][]handlerEntry
}

func newRegistry() registry {
	return registry{handlers: make(map[string][]handlerEntry)}
}

func (r *registry) subscribe(messageType string, fn Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[messageType] = append(r.handlers[messageType], handlerEntry{
		name: handlerName(fn),
		fn:   fn,
	})
}

func (r *registry) snapshot(messageType string) []handlerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.handlers[messageType]
	out := make([]handlerEntry, len(entries))
	copy(out, entries)
	return out
}

// outcome records a single handler's pass/fail result: all handler
// outcomes are collected before deciding success/total-failure.
type outcome struct {
	name string
	err  error
}

// aggregate applies the partial-failure policy: it logs every handler
// failure, then returns nil if at least one handler succeeded, or a
// *coreerr.HandlerError if every handler failed.
func aggregate(messageType string, results []outcome, logger *slog.Logger) error {
	if len(results) == 0 {
		return nil
	}

	failures := 0
	for _, r := range results {
		if r.err != nil {
			failures++
			logger.Error("message handler failed",
				"message_type", messageType,
				"handler", r.name,
				"error", r.err,
			)
		}
	}

	if failures == 0 {
		return nil
	}
	if failures == len(results) {
		return &coreerr.HandlerError{
			MessageType: messageType,
			Descriptor:  "all_handlers",
			FailCount:   failures,
		}
	}
	return nil
}

func recoverToError(r any) error {
	return fmt.Errorf("handler panicked: %v", r)
}
