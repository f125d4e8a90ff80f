package bus

import (
	"context"
	"log/slog"
)

// BlockingBus dispatches to subscribers serially, in registration order,
// on the calling goroutine. Publish returns only after every subscriber
// has returned.
type BlockingBus struct {
	registry
	logger *slog.Logger
}

// NewBlockingBus constructs a BlockingBus. A nil logger defaults to
// slog.Default().
func NewBlockingBus(logger *slog.Logger) *BlockingBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlockingBus{registry: newRegistry(), logger: logger}
}

// Subscribe appends handler to messageType's handler list.
func (b *BlockingBus) Subscribe(messageType string, handler Handler) {
	b.subscribe(messageType, handler)
}

// Publish dispatches msg to every handler registered for messageType,
// one at a time in registration order, on the calling goroutine.
func (b *BlockingBus) Publish(ctx context.Context, messageType string, msg any) error {
	entries := b.snapshot(messageType)
	if len(entries) == 0 {
		return nil
	}

	results := make([]outcome, len(entries))
	for i, entry := range entries {
		results[i] = runOne(ctx, entry, msg)
	}

	return aggregate(messageType, results, b.logger)
}

func runOne(ctx context.Context, entry handlerEntry, msg any) (result outcome) {
	defer func() {
		if r := recover(); r != nil {
			result = outcome{name: entry.name, err: recoverToError(r)}
		}
	}()
	return outcome{name: entry.name, err: entry.fn(ctx, msg)}
}
