// Command eventcoredemo wires the eventcore runtime's in-memory
// components together and runs a small money-transfer scenario end to
// end: flag-parsed config dir, godotenv, structured startup logging,
// and a runnable demonstration of the wiring. There is no HTTP/API
// surface here — this module is a library, not a service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/coreflow/eventcore/internal/fixtures"
	"github.com/coreflow/eventcore/pkg/aggregate"
	"github.com/coreflow/eventcore/pkg/dlq"
	"github.com/coreflow/eventcore/pkg/eventstore"
	"github.com/coreflow/eventcore/pkg/message"
	"github.com/coreflow/eventcore/pkg/observability"
	"github.com/coreflow/eventcore/pkg/projection"
	"github.com/coreflow/eventcore/pkg/retry"
	"github.com/coreflow/eventcore/pkg/runtimeconfig"
	"github.com/coreflow/eventcore/pkg/saga"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "path to configuration directory")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		logger.Warn("could not load .env file, continuing with existing environment", "path", envPath, "error", err)
	} else {
		logger.Info("loaded environment file", "path", envPath)
	}

	cfg := runtimeconfig.Defaults()
	configPath := filepath.Join(*configDir, "eventcore.yaml")
	if loaded, err := runtimeconfig.Load(configPath); err != nil {
		logger.Warn("using built-in defaults: could not load runtime config", "path", configPath, "error", err)
	} else {
		cfg = loaded
	}

	hooks := observability.New(nil, nil, logger)
	deadLetters := dlq.NewInMemoryQueue()
	policy := buildRetryPolicy(cfg.Retry)

	if err := run(context.Background(), logger, hooks, deadLetters, policy); err != nil {
		logger.Error("demo run failed", "error", err)
		os.Exit(1)
	}
}

func buildRetryPolicy(cfg runtimeconfig.RetryConfig) retry.Policy {
	switch cfg.Strategy {
	case "fixed":
		return retry.FixedDelay{Delay: cfg.InitialInterval, MaxAttempts: cfg.MaxAttempts}
	case "linear":
		return retry.LinearBackoff{Initial: cfg.InitialInterval, Increment: cfg.Increment, MaxDelay: cfg.MaxInterval, MaxAttempts: cfg.MaxAttempts}
	case "exponential":
		return retry.ExponentialBackoff{InitialInterval: cfg.InitialInterval, MaxInterval: cfg.MaxInterval, MaxAttempts: cfg.MaxAttempts, Jitter: cfg.Jitter}
	default:
		return retry.NoRetry{}
	}
}

// run executes a money-transfer scenario against the in-memory
// adapters: open two accounts, run a successful transfer through
// pkg/saga, project the resulting events into a read model via
// pkg/projection, and retry a deliberately-failing operation through
// pkg/retry before landing it in pkg/dlq.
func run(ctx context.Context, logger *slog.Logger, hooks *observability.Hooks, deadLetters *dlq.InMemoryQueue, policy retry.Policy) error {
	store := eventstore.NewInMemoryStore()
	repo := aggregate.NewRepository[*fixtures.Account](store, eventstore.NewInMemorySnapshotStore(), fixtures.NewAccount)

	alice := fixtures.NewAccount()
	if err := alice.Open("acct-alice", "Alice", 10_000); err != nil {
		return fmt.Errorf("open alice's account: %w", err)
	}
	if err := repo.Save(ctx, alice); err != nil {
		return fmt.Errorf("save alice's account: %w", err)
	}
	hooks.RecordEventStored(ctx, "acct-alice", alice.Version())

	bob := fixtures.NewAccount()
	if err := bob.Open("acct-bob", "Bob", 0); err != nil {
		return fmt.Errorf("open bob's account: %w", err)
	}
	if err := repo.Save(ctx, bob); err != nil {
		return fmt.Errorf("save bob's account: %w", err)
	}
	hooks.RecordEventStored(ctx, "acct-bob", bob.Version())

	transferSaga := fixtures.NewMoneyTransferSaga(fixtures.TransferRequest{
		TransferID:    "xfer-demo-1",
		FromAccountID: "acct-alice",
		ToAccountID:   "acct-bob",
		AmountCents:   2_500,
		Description:   "rent split",
	}, repo, saga.NewInMemoryStateStore())

	if err := transferSaga.Execute(ctx); err != nil {
		hooks.RecordAggregateError(ctx, "xfer-demo-1", err)
		return fmt.Errorf("execute transfer saga: %w", err)
	}
	logger.Info("transfer completed", "transfer_id", "xfer-demo-1")

	readModel := map[string]int64{}
	balances := projection.NewEngine("account-balances", projection.NewInMemoryStateStore(), logger)
	if err := balances.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize balances projection: %w", err)
	}
	balances.On("MoneyDeposited", func(_ context.Context, evt message.Event) error {
		data := evt.Data.(fixtures.MoneyDepositedData)
		readModel[evt.AggregateID] += data.AmountCents
		return nil
	})

	events, err := store.Load(ctx, "acct-bob", 0)
	if err != nil {
		return fmt.Errorf("load bob's events for projection demo: %w", err)
	}
	if err := balances.ProcessStream(ctx, events); err != nil {
		return fmt.Errorf("project bob's events: %w", err)
	}
	logger.Info("projected read model", "account", "acct-bob", "balance_cents", readModel["acct-bob"])

	// Demonstrate retry + dead-letter: a permanently-failing operation
	// exhausts its policy and lands in the dead-letter queue for later
	// operator inspection.
	attempts := 0
	err = retry.Do(ctx, policy, func(ctx context.Context) error {
		attempts++
		return fmt.Errorf("downstream notification service unavailable")
	})
	if err != nil {
		_ = deadLetters.Enqueue(ctx, dlq.DeadLetteredMessage{
			MessageID:    "notify-xfer-demo-1",
			MessageType:  "TransferNotification",
			Reason:       err.Error(),
			FailureCount: attempts,
		})
		logger.Warn("notification retries exhausted, dead-lettered", "attempts", attempts)
	}

	return nil
}
