// Package fixtures provides a small banking domain — Account and
// MoneyTransfer — exercised by this package's own tests and by
// cmd/eventcoredemo, built on pkg/aggregate and pkg/saga.
package fixtures

import (
	"errors"
	"time"

	"github.com/coreflow/eventcore/pkg/aggregate"
	"github.com/coreflow/eventcore/pkg/eventstore"
	"github.com/coreflow/eventcore/pkg/message"
)

// AccountStatus is an account's lifecycle state.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
	AccountClosed    AccountStatus = "closed"
)

var (
	ErrAccountAlreadyOpened  = errors.New("account already opened")
	ErrNegativeInitialBalance = errors.New("initial balance cannot be negative")
	ErrAccountNotActive       = errors.New("account is not active")
	ErrNonPositiveAmount      = errors.New("amount must be positive")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrNotSuspended           = errors.New("account is not suspended")
	ErrNonZeroBalance         = errors.New("cannot close account with non-zero balance")
)

// accountState is Account's replayable state.
type accountState struct {
	OwnerName string
	BalanceCents int64
	Status    AccountStatus
	OpenedAt  time.Time
}

// Account is an event-sourced bank account, the fixture that exercises
// pkg/aggregate's Repository and pkg/saga in this package's tests and in
// cmd/eventcoredemo.
type Account struct {
	aggregate.Root
	state *accountState
}

// NewAccount constructs an Account ready for Open or replay.
func NewAccount() *Account {
	a := &Account{state: &accountState{}}
	a.Root.Init(a.state, map[string]aggregate.Transition{
		"AccountOpened":      a.whenOpened,
		"MoneyDeposited":     a.whenDeposited,
		"MoneyWithdrawn":     a.whenWithdrawn,
		"AccountSuspended":   a.whenSuspended,
		"AccountReactivated": a.whenReactivated,
		"AccountClosed":      a.whenClosed,
	})
	return a
}

// AggregateType names this aggregate for message.NewEventFromAggregate.
func (a *Account) AggregateType() string { return "account" }

func (a *Account) OwnerName() string       { return a.state.OwnerName }
func (a *Account) BalanceCents() int64     { return a.state.BalanceCents }
func (a *Account) Status() AccountStatus   { return a.state.Status }

// AccountOpenedData is the payload for "AccountOpened".
type AccountOpenedData struct {
	OwnerName           string
	InitialBalanceCents int64
	OpenedAt            time.Time
}

// MoneyDepositedData is the payload for "MoneyDeposited".
type MoneyDepositedData struct {
	AmountCents   int64
	TransactionID string
	Description   string
}

// MoneyWithdrawnData is the payload for "MoneyWithdrawn".
type MoneyWithdrawnData struct {
	AmountCents   int64
	TransactionID string
	Description   string
}

// AccountSuspendedData is the payload for "AccountSuspended".
type AccountSuspendedData struct {
	Reason string
}

// AccountClosedData is the payload for "AccountClosed".
type AccountClosedData struct {
	FinalBalanceCents int64
}

// Open opens a fresh account with an initial balance.
func (a *Account) Open(accountID, ownerName string, initialBalanceCents int64) error {
	if a.state.OwnerName != "" {
		return ErrAccountAlreadyOpened
	}
	if initialBalanceCents < 0 {
		return ErrNegativeInitialBalance
	}
	a.SetAggregateID(accountID)
	a.Apply(message.NewEventFromAggregate(a, "AccountOpened", AccountOpenedData{
		OwnerName:           ownerName,
		InitialBalanceCents: initialBalanceCents,
		OpenedAt:            time.Now().UTC(),
	}))
	return nil
}

// Deposit credits the account.
func (a *Account) Deposit(amountCents int64, transactionID, description string) error {
	if err := a.validateActive(); err != nil {
		return err
	}
	if amountCents <= 0 {
		return ErrNonPositiveAmount
	}
	a.Apply(message.NewEventFromAggregate(a, "MoneyDeposited", MoneyDepositedData{
		AmountCents: amountCents, TransactionID: transactionID, Description: description,
	}))
	return nil
}

// Withdraw debits the account, failing on insufficient balance.
func (a *Account) Withdraw(amountCents int64, transactionID, description string) error {
	if err := a.validateActive(); err != nil {
		return err
	}
	if amountCents <= 0 {
		return ErrNonPositiveAmount
	}
	if a.state.BalanceCents < amountCents {
		return ErrInsufficientBalance
	}
	a.Apply(message.NewEventFromAggregate(a, "MoneyWithdrawn", MoneyWithdrawnData{
		AmountCents: amountCents, TransactionID: transactionID, Description: description,
	}))
	return nil
}

// Suspend freezes the account against further deposits/withdrawals.
func (a *Account) Suspend(reason string) error {
	if a.state.Status != AccountActive {
		return ErrAccountNotActive
	}
	a.Apply(message.NewEventFromAggregate(a, "AccountSuspended", AccountSuspendedData{Reason: reason}))
	return nil
}

// Reactivate lifts a suspension.
func (a *Account) Reactivate() error {
	if a.state.Status != AccountSuspended {
		return ErrNotSuspended
	}
	a.Apply(message.NewEventFromAggregate(a, "AccountReactivated", nil))
	return nil
}

// Close closes a zero-balance active account.
func (a *Account) Close() error {
	if err := a.validateActive(); err != nil {
		return err
	}
	if a.state.BalanceCents != 0 {
		return ErrNonZeroBalance
	}
	a.Apply(message.NewEventFromAggregate(a, "AccountClosed", AccountClosedData{FinalBalanceCents: a.state.BalanceCents}))
	return nil
}

func (a *Account) validateActive() error {
	if a.state.Status != AccountActive {
		return ErrAccountNotActive
	}
	return nil
}

func (a *Account) whenOpened(state any, evt message.Event) {
	data := evt.Data.(AccountOpenedData)
	s := state.(*accountState)
	s.OwnerName = data.OwnerName
	s.BalanceCents = data.InitialBalanceCents
	s.Status = AccountActive
	s.OpenedAt = data.OpenedAt
}

func (a *Account) whenDeposited(state any, evt message.Event) {
	data := evt.Data.(MoneyDepositedData)
	state.(*accountState).BalanceCents += data.AmountCents
}

func (a *Account) whenWithdrawn(state any, evt message.Event) {
	data := evt.Data.(MoneyWithdrawnData)
	state.(*accountState).BalanceCents -= data.AmountCents
}

func (a *Account) whenSuspended(state any, _ message.Event) {
	state.(*accountState).Status = AccountSuspended
}

func (a *Account) whenReactivated(state any, _ message.Event) {
	state.(*accountState).Status = AccountActive
}

func (a *Account) whenClosed(state any, _ message.Event) {
	state.(*accountState).Status = AccountClosed
}

// SeedFromSnapshot implements aggregate.SnapshotSeedable, letting the
// repository skip replaying events already folded into snap.
func (a *Account) SeedFromSnapshot(snap eventstore.Snapshot) {
	if ownerName, ok := snap.State["owner_name"].(string); ok {
		a.state.OwnerName = ownerName
	}
	if balance, ok := snap.State["balance_cents"].(int64); ok {
		a.state.BalanceCents = balance
	}
	if status, ok := snap.State["status"].(string); ok {
		a.state.Status = AccountStatus(status)
	}
}

// ToSnapshotState renders the account's state into a snapshot payload
// suitable for eventstore.Snapshot.State.
func (a *Account) ToSnapshotState() map[string]any {
	return map[string]any{
		"owner_name":    a.state.OwnerName,
		"balance_cents": a.state.BalanceCents,
		"status":        string(a.state.Status),
	}
}
