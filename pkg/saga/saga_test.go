package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreflow/eventcore/pkg/coreerr"
)

func TestExecuteAllStepsSucceed(t *testing.T) {
	var ran []string
	s := &Saga{
		ID:     "s-1",
		Type:   "MoneyTransfer",
		States: NewInMemoryStateStore(),
		Steps: []Step{
			{Name: "Debit", Action: func(ctx context.Context, _ map[string]StepResult) (any, error) { ran = append(ran, "debit"); return nil, nil }},
			{Name: "Credit", Action: func(ctx context.Context, _ map[string]StepResult) (any, error) { ran = append(ran, "credit"); return nil, nil }},
		},
	}

	require.NoError(t, s.Execute(context.Background()))
	assert.Equal(t, []string{"debit", "credit"}, ran)

	st, ok, err := s.States.LoadState(context.Background(), "s-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, st.Status)
}

func TestExecuteThreadsPriorStepResultsIntoLaterStepsAndCompensation(t *testing.T) {
	var reserveSawDebit StepResult
	var creditCompensationSawReserve StepResult
	s := &Saga{
		ID:                   "s-1b",
		Type:                 "MoneyTransfer",
		States:               NewInMemoryStateStore(),
		CompensateFailedStep: true, // Credit's own compensation must run for the assertion below
		Steps: []Step{
			{
				Name:   "Debit",
				Action: func(ctx context.Context, _ map[string]StepResult) (any, error) { return "ledger-entry-1", nil },
			},
			{
				Name: "Reserve",
				Action: func(ctx context.Context, prior map[string]StepResult) (any, error) {
					reserveSawDebit = prior["Debit"]
					return "reservation-1", nil
				},
			},
			{
				Name:   "Credit",
				Action: func(ctx context.Context, _ map[string]StepResult) (any, error) { return nil, errors.New("ledger unavailable") },
				Compensation: func(ctx context.Context, prior map[string]StepResult) error {
					creditCompensationSawReserve = prior["Reserve"]
					return nil
				},
			},
		},
	}

	err := s.Execute(context.Background())
	require.Error(t, err)

	assert.Equal(t, StepResult{StepName: "Debit", Value: "ledger-entry-1"}, reserveSawDebit)
	assert.Equal(t, StepResult{StepName: "Reserve", Value: "reservation-1"}, creditCompensationSawReserve)
}

func TestExecuteCompensatesCompletedStepsInReverseOrderOnFailure(t *testing.T) {
	var compensated []string
	s := &Saga{
		ID:     "s-2",
		Type:   "MoneyTransfer",
		States: NewInMemoryStateStore(),
		Steps: []Step{
			{
				Name:         "Debit",
				Action:       func(ctx context.Context, _ map[string]StepResult) (any, error) { return nil, nil },
				Compensation: func(ctx context.Context, _ map[string]StepResult) error { compensated = append(compensated, "undo-debit"); return nil },
			},
			{
				Name:         "Reserve",
				Action:       func(ctx context.Context, _ map[string]StepResult) (any, error) { return nil, nil },
				Compensation: func(ctx context.Context, _ map[string]StepResult) error { compensated = append(compensated, "undo-reserve"); return nil },
			},
			{
				Name:   "Credit",
				Action: func(ctx context.Context, _ map[string]StepResult) (any, error) { return nil, errors.New("account frozen") },
			},
		},
	}

	err := s.Execute(context.Background())
	require.Error(t, err)
	var stepErr *coreerr.SagaStepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "Credit", stepErr.StepName)

	assert.Equal(t, []string{"undo-reserve", "undo-debit"}, compensated)

	st, _, _ := s.States.LoadState(context.Background(), "s-2")
	assert.Equal(t, StatusFailed, st.Status)
	assert.Equal(t, StepFailed, st.StepStatus["Credit"])
	assert.Equal(t, StepCompensated, st.StepStatus["Debit"])
}

func TestNewSagaDefaultsCompensateFailedStepToTrue(t *testing.T) {
	var compensatedFailedStep bool
	s := NewSaga("s-3a", "Test", []Step{
		{
			Name:         "Risky",
			Action:       func(ctx context.Context, _ map[string]StepResult) (any, error) { return nil, errors.New("boom") },
			Compensation: func(ctx context.Context, _ map[string]StepResult) error { compensatedFailedStep = true; return nil },
		},
	}, NewInMemoryStateStore(), nil)

	require.Error(t, s.Execute(context.Background()))
	assert.True(t, compensatedFailedStep)
}

func TestCompensateFailedStepCanBeOptedOut(t *testing.T) {
	var compensatedFailedStep bool
	s := NewSaga("s-3b", "Test", []Step{
		{
			Name:         "Risky",
			Action:       func(ctx context.Context, _ map[string]StepResult) (any, error) { return nil, errors.New("boom") },
			Compensation: func(ctx context.Context, _ map[string]StepResult) error { compensatedFailedStep = true; return nil },
		},
	}, NewInMemoryStateStore(), nil)
	s.CompensateFailedStep = false

	require.Error(t, s.Execute(context.Background()))
	assert.False(t, compensatedFailedStep)
}

func TestBareSagaLiteralLeavesCompensateFailedStepFalse(t *testing.T) {
	var compensatedFailedStep bool
	s := &Saga{
		ID:     "s-3c",
		Type:   "Test",
		States: NewInMemoryStateStore(),
		Steps: []Step{
			{
				Name:         "Risky",
				Action:       func(ctx context.Context, _ map[string]StepResult) (any, error) { return nil, errors.New("boom") },
				Compensation: func(ctx context.Context, _ map[string]StepResult) error { compensatedFailedStep = true; return nil },
			},
		},
	}

	require.Error(t, s.Execute(context.Background()))
	assert.False(t, compensatedFailedStep, "a bare &Saga{} leaves CompensateFailedStep at Go's zero value")
}

func TestStopOnFailurePolicyAbortsRemainingCompensation(t *testing.T) {
	var secondCompensated bool
	s := &Saga{
		ID:     "s-4",
		Type:   "Test",
		States: NewInMemoryStateStore(),
		Policy: StopOnFailure,
		Steps: []Step{
			{
				Name:         "First",
				Action:       func(ctx context.Context, _ map[string]StepResult) (any, error) { return nil, nil },
				Compensation: func(ctx context.Context, _ map[string]StepResult) error { secondCompensated = true; return nil },
			},
			{
				Name:         "Second",
				Action:       func(ctx context.Context, _ map[string]StepResult) (any, error) { return nil, nil },
				Compensation: func(ctx context.Context, _ map[string]StepResult) error { return errors.New("compensation unavailable") },
			},
			{
				Name:   "Third",
				Action: func(ctx context.Context, _ map[string]StepResult) (any, error) { return nil, errors.New("fails") },
			},
		},
	}

	err := s.Execute(context.Background())
	require.Error(t, err)
	assert.False(t, secondCompensated, "StopOnFailure must abort before reaching earlier steps")

	st, _, _ := s.States.LoadState(context.Background(), "s-4")
	assert.Equal(t, StatusFailed, st.Status)
}

func TestBestEffortPolicyRunsAllCompensationsDespiteFailure(t *testing.T) {
	var firstCompensated bool
	s := &Saga{
		ID:     "s-5",
		Type:   "Test",
		States: NewInMemoryStateStore(),
		Policy: BestEffort,
		Steps: []Step{
			{
				Name:         "First",
				Action:       func(ctx context.Context, _ map[string]StepResult) (any, error) { return nil, nil },
				Compensation: func(ctx context.Context, _ map[string]StepResult) error { firstCompensated = true; return nil },
			},
			{
				Name:         "Second",
				Action:       func(ctx context.Context, _ map[string]StepResult) (any, error) { return nil, nil },
				Compensation: func(ctx context.Context, _ map[string]StepResult) error { return errors.New("compensation unavailable") },
			},
			{
				Name:   "Third",
				Action: func(ctx context.Context, _ map[string]StepResult) (any, error) { return nil, errors.New("fails") },
			},
		},
	}

	err := s.Execute(context.Background())
	require.Error(t, err)
	assert.True(t, firstCompensated, "BestEffort must continue past a failed compensation")

	st, _, _ := s.States.LoadState(context.Background(), "s-5")
	assert.Equal(t, StatusFailed, st.Status, "compensation was attempted, so the saga is still a failed one")
}

func TestStepWithNilCompensationIsSkipped(t *testing.T) {
	s := &Saga{
		ID:     "s-6",
		Type:   "Test",
		States: NewInMemoryStateStore(),
		Steps: []Step{
			{Name: "NoSideEffect", Action: func(ctx context.Context, _ map[string]StepResult) (any, error) { return nil, nil }},
			{Name: "Fails", Action: func(ctx context.Context, _ map[string]StepResult) (any, error) { return nil, errors.New("boom") }},
		},
	}

	require.Error(t, s.Execute(context.Background()))
	st, _, _ := s.States.LoadState(context.Background(), "s-6")
	assert.Equal(t, StepCompleted, st.StepStatus["NoSideEffect"])
}
