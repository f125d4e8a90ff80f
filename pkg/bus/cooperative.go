package bus

import (
	"context"
	"log/slog"
	"sync"
)

// CooperativeBus fans subscribers for a message type out as goroutines
// and awaits them all together, Go's goroutine+WaitGroup analogue of a
// cooperative gather over concurrent tasks. Subscribers for one message type
// observe no ordering relative to each other. Two publishes on the same
// caller goroutine, when the first is fully awaited (Publish returns)
// before the second starts, are ordered relative to each other; without
// that, no ordering is promised.
type CooperativeBus struct {
	registry
	logger *slog.Logger
}

// NewCooperativeBus constructs a CooperativeBus. A nil logger defaults
// to slog.Default(); hooks and loggers are always passed explicitly
// rather than reached for as a global.
func NewCooperativeBus(logger *slog.Logger) *CooperativeBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &CooperativeBus{registry: newRegistry(), logger: logger}
}

// Subscribe appends handler to messageType's handler list. No
// de-duplication: registering the same function twice invokes it twice.
func (b *CooperativeBus) Subscribe(messageType string, handler Handler) {
	b.subscribe(messageType, handler)
}

// Publish dispatches msg to every handler registered for messageType
// concurrently, awaiting all of them before returning. A message type
// with no handlers is a no-op. See aggregate in bus.go for the
// partial-failure policy this applies.
func (b *CooperativeBus) Publish(ctx context.Context, messageType string, msg any) error {
	entries := b.snapshot(messageType)
	if len(entries) == 0 {
		return nil
	}

	results := make([]outcome, len(entries))
	var wg sync.WaitGroup
	wg.Add(len(entries))

	for i, entry := range entries {
		go func(i int, entry handlerEntry) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = outcome{name: entry.name, err: recoverToError(r)}
				}
			}()

			err := entry.fn(ctx, msg)
			if err == nil {
				err = ctx.Err() // a caller-cancelled context counts as failure
			}
			results[i] = outcome{name: entry.name, err: err}
		}(i, entry)
	}

	wg.Wait()
	return aggregate(messageType, results, b.logger)
}
