package fixtures

import (
	"context"
	"fmt"

	"github.com/coreflow/eventcore/pkg/aggregate"
	"github.com/coreflow/eventcore/pkg/saga"
)

// TransferRequest describes a money transfer between two accounts,
// the input to NewMoneyTransferSaga.
type TransferRequest struct {
	TransferID    string
	FromAccountID string
	ToAccountID   string
	AmountCents   int64
	Description   string
}

// NewMoneyTransferSaga builds a two-step debit/credit pkg/saga.Saga:
// withdraw from the source account, then deposit into the destination;
// a failed credit compensates by re-depositing into the source account.
func NewMoneyTransferSaga(req TransferRequest, repo *aggregate.Repository[*Account], states saga.StateStore) *saga.Saga {
	return saga.NewSaga(req.TransferID, "MoneyTransfer", []saga.Step{
		{
			Name: "Debit",
			Action: func(ctx context.Context, _ map[string]saga.StepResult) (any, error) {
				return nil, withAccount(ctx, repo, req.FromAccountID, func(acct *Account) error {
					return acct.Withdraw(req.AmountCents, req.TransferID, req.Description)
				})
			},
			Compensation: func(ctx context.Context, _ map[string]saga.StepResult) error {
				return withAccount(ctx, repo, req.FromAccountID, func(acct *Account) error {
					return acct.Deposit(req.AmountCents, req.TransferID+"-reversal", fmt.Sprintf("reversal of %s", req.TransferID))
				})
			},
		},
		{
			Name: "Credit",
			Action: func(ctx context.Context, _ map[string]saga.StepResult) (any, error) {
				return nil, withAccount(ctx, repo, req.ToAccountID, func(acct *Account) error {
					return acct.Deposit(req.AmountCents, req.TransferID, req.Description)
				})
			},
		},
	}, states, nil)
}

// withAccount loads an account, applies fn, and saves the result,
// threading through the repository's optimistic-concurrency contract
// for every step a saga action takes.
func withAccount(ctx context.Context, repo *aggregate.Repository[*Account], accountID string, fn func(*Account) error) error {
	acct, err := repo.Load(ctx, accountID)
	if err != nil {
		return fmt.Errorf("load account %q: %w", accountID, err)
	}
	if err := fn(acct); err != nil {
		return err
	}
	if err := repo.Save(ctx, acct); err != nil {
		return fmt.Errorf("save account %q: %w", accountID, err)
	}
	return nil
}
