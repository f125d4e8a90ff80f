package fixtures

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreflow/eventcore/pkg/aggregate"
	"github.com/coreflow/eventcore/pkg/eventstore"
	"github.com/coreflow/eventcore/pkg/saga"
)

func TestAccountOpenDepositWithdraw(t *testing.T) {
	acct := NewAccount()
	require.NoError(t, acct.Open("acct-1", "Ada Lovelace", 1000))
	require.NoError(t, acct.Deposit(500, "tx-1", "paycheck"))
	require.NoError(t, acct.Withdraw(200, "tx-2", "groceries"))

	assert.Equal(t, int64(1300), acct.BalanceCents())
	assert.Equal(t, AccountActive, acct.Status())
	assert.Len(t, acct.UncommittedEvents(), 3)
}

func TestAccountRejectsDoubleOpen(t *testing.T) {
	acct := NewAccount()
	require.NoError(t, acct.Open("acct-1", "Ada", 0))
	err := acct.Open("acct-1", "Ada", 0)
	assert.True(t, errors.Is(err, ErrAccountAlreadyOpened))
}

func TestAccountRejectsWithdrawBeyondBalance(t *testing.T) {
	acct := NewAccount()
	require.NoError(t, acct.Open("acct-1", "Ada", 100))
	err := acct.Withdraw(200, "tx-1", "too much")
	assert.True(t, errors.Is(err, ErrInsufficientBalance))
}

func TestAccountSuspendBlocksOperations(t *testing.T) {
	acct := NewAccount()
	require.NoError(t, acct.Open("acct-1", "Ada", 500))
	require.NoError(t, acct.Suspend("fraud review"))

	err := acct.Deposit(10, "tx-1", "blocked")
	assert.True(t, errors.Is(err, ErrAccountNotActive))

	require.NoError(t, acct.Reactivate())
	require.NoError(t, acct.Deposit(10, "tx-2", "now allowed"))
}

func TestAccountCloseRequiresZeroBalance(t *testing.T) {
	acct := NewAccount()
	require.NoError(t, acct.Open("acct-1", "Ada", 50))
	err := acct.Close()
	assert.True(t, errors.Is(err, ErrNonZeroBalance))

	require.NoError(t, acct.Withdraw(50, "tx-1", "drain"))
	require.NoError(t, acct.Close())
	assert.Equal(t, AccountClosed, acct.Status())
}

func TestAccountReplayReproducesState(t *testing.T) {
	acct := NewAccount()
	require.NoError(t, acct.Open("acct-1", "Ada", 1000))
	require.NoError(t, acct.Deposit(500, "tx-1", "paycheck"))

	fresh := NewAccount()
	fresh.SetAggregateID("acct-1")
	for _, evt := range acct.UncommittedEvents() {
		fresh.ReplayOne(evt)
	}

	assert.Equal(t, acct.BalanceCents(), fresh.BalanceCents())
	assert.Equal(t, acct.Status(), fresh.Status())
}

func TestMoneyTransferSagaSucceeds(t *testing.T) {
	store := eventstore.NewInMemoryStore()
	repo := aggregate.NewRepository[*Account](store, nil, NewAccount)
	ctx := context.Background()

	source := NewAccount()
	require.NoError(t, source.Open("acct-src", "Ada", 1000))
	require.NoError(t, repo.Save(ctx, source))

	dest := NewAccount()
	require.NoError(t, dest.Open("acct-dst", "Bob", 0))
	require.NoError(t, repo.Save(ctx, dest))

	transferSaga := NewMoneyTransferSaga(TransferRequest{
		TransferID:    "xfer-1",
		FromAccountID: "acct-src",
		ToAccountID:   "acct-dst",
		AmountCents:   300,
		Description:   "rent",
	}, repo, saga.NewInMemoryStateStore())

	require.NoError(t, transferSaga.Execute(ctx))

	reloadedSrc, err := repo.Load(ctx, "acct-src")
	require.NoError(t, err)
	reloadedDst, err := repo.Load(ctx, "acct-dst")
	require.NoError(t, err)

	assert.Equal(t, int64(700), reloadedSrc.BalanceCents())
	assert.Equal(t, int64(300), reloadedDst.BalanceCents())
}

func TestMoneyTransferSagaCompensatesOnFailedCredit(t *testing.T) {
	store := eventstore.NewInMemoryStore()
	repo := aggregate.NewRepository[*Account](store, nil, NewAccount)
	ctx := context.Background()

	source := NewAccount()
	require.NoError(t, source.Open("acct-src", "Ada", 1000))
	require.NoError(t, repo.Save(ctx, source))

	dest := NewAccount()
	require.NoError(t, dest.Open("acct-dst", "Bob", 0))
	require.NoError(t, dest.Suspend("frozen by compliance"))
	require.NoError(t, repo.Save(ctx, dest))

	transferSaga := NewMoneyTransferSaga(TransferRequest{
		TransferID:    "xfer-2",
		FromAccountID: "acct-src",
		ToAccountID:   "acct-dst",
		AmountCents:   300,
		Description:   "rent",
	}, repo, saga.NewInMemoryStateStore())

	err := transferSaga.Execute(ctx)
	require.Error(t, err)

	reloadedSrc, loadErr := repo.Load(ctx, "acct-src")
	require.NoError(t, loadErr)
	assert.Equal(t, int64(1000), reloadedSrc.BalanceCents(), "debit must be reversed when credit fails")
}
