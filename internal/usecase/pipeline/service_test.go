package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/simaogato/securesend-backend/internal/domain"
	"github.com/simaogato/securesend-backend/internal/usecase/checks"
)

const (
	validETHAddress = "0x52908400098527886E0F7030069857D2E4169EE7"
	testHash        = "0x88df016429689c079f3b2f6ad39fa052532c56795b733da78a91ebe6a713944b"
)

// MockNetworkChecker is a mock implementation of NetworkChecker for testing
type MockNetworkChecker struct {
	mock.Mock
}

func (m *MockNetworkChecker) CheckNetwork(ctx context.Context, assetSymbol string) (bool, error) {
	args := m.Called(ctx, assetSymbol)
	return args.Bool(0), args.Error(1)
}

// MockReputationChecker is a mock implementation of ReputationChecker for testing
type MockReputationChecker struct {
	mock.Mock
}

func (m *MockReputationChecker) CheckReputation(ctx context.Context, assetSymbol, address string) (bool, error) {
	args := m.Called(ctx, assetSymbol, address)
	return args.Bool(0), args.Error(1)
}

// MockExecutor is a mock implementation of Executor for testing
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, req domain.TransferRequest, rules domain.AssetRules) (domain.Receipt, error) {
	args := m.Called(ctx, req, rules)
	return args.Get(0).(domain.Receipt), args.Error(1)
}

// networkFunc adapts a function to NetworkChecker
type networkFunc func(ctx context.Context, assetSymbol string) (bool, error)

func (f networkFunc) CheckNetwork(ctx context.Context, assetSymbol string) (bool, error) {
	return f(ctx, assetSymbol)
}

type fixture struct {
	network    *MockNetworkChecker
	reputation *MockReputationChecker
	executor   *MockExecutor
	pipeline   *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		network:    new(MockNetworkChecker),
		reputation: new(MockReputationChecker),
		executor:   new(MockExecutor),
	}
	runner := checks.NewRunner(f.network, f.reputation, time.Second, time.Second, zap.NewNop())
	f.pipeline = NewPipeline(domain.DefaultRegistry(), runner, f.executor, time.Second, zap.NewNop())

	return f
}

func ethForm(amount string) domain.TransferForm {
	return domain.TransferForm{
		AssetSymbol:      "ETH",
		Amount:           amount,
		RecipientAddress: validETHAddress,
	}
}

func (f *fixture) healthy(reputationOK bool) {
	f.network.On("CheckNetwork", mock.Anything, "ETH").Return(true, nil)
	f.reputation.On("CheckReputation", mock.Anything, "ETH", validETHAddress).Return(reputationOK, nil)
}

func statuses(state domain.PipelineState) []domain.CheckStatus {
	out := make([]domain.CheckStatus, 0, len(state.Checks))
	for _, c := range state.Checks {
		out = append(out, c.Status)
	}
	return out
}

func TestSubmit_AllChecksPass_ReachesConfirmWithoutAck(t *testing.T) {
	f := newFixture(t)
	f.healthy(true)

	err := f.pipeline.Submit(context.Background(), ethForm("1"))
	require.NoError(t, err)

	state := f.pipeline.State()
	assert.Equal(t, domain.StageConfirm, state.Stage)
	assert.False(t, state.AckRequired)
	assert.Empty(t, state.Warnings)
	assert.Empty(t, state.Errors)
	assert.Equal(t, []domain.CheckStatus{
		domain.CheckStatusPassed, domain.CheckStatusPassed, domain.CheckStatusPassed, domain.CheckStatusPassed,
	}, statuses(state))

	assert.True(t, decimal.NewFromInt(1).Equal(state.Request.Amount))
	assert.True(t, decimal.RequireFromString("0.0025").Equal(state.Request.FeeEstimate))

	f.network.AssertExpectations(t)
	f.reputation.AssertExpectations(t)
}

func TestSubmit_ReputationFails_RequiresAcknowledgement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.healthy(false)

	receipt := domain.Receipt{Hash: testHash, ExplorerURL: "https://etherscan.io/tx/" + testHash}
	f.executor.On("Execute", mock.Anything, mock.Anything, mock.Anything).Return(receipt, nil).Once()

	require.NoError(t, f.pipeline.Submit(ctx, ethForm("1")))

	state := f.pipeline.State()
	assert.Equal(t, domain.StageChecking, state.Stage)
	assert.True(t, state.AckRequired)
	assert.False(t, state.Acknowledged)
	assert.Equal(t, []string{"recipient address is flagged as potentially malicious"}, state.Warnings)

	// Confirm is refused until the warnings are acknowledged
	_, err := f.pipeline.Confirm(ctx)
	assert.ErrorIs(t, err, domain.ErrAcknowledgementRequired)
	assert.Equal(t, domain.KindSoftCheck, domain.KindOf(err))
	f.executor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)

	require.NoError(t, f.pipeline.AcknowledgeWarnings())
	state = f.pipeline.State()
	assert.Equal(t, domain.StageConfirm, state.Stage)
	assert.True(t, state.Acknowledged)
	assert.NotEmpty(t, state.Warnings, "warnings stay visible at confirm")

	got, err := f.pipeline.Confirm(ctx)
	require.NoError(t, err)
	assert.Equal(t, receipt, got)

	state = f.pipeline.State()
	assert.Equal(t, domain.StageDone, state.Stage)
	require.NotNil(t, state.Receipt)
	assert.Equal(t, testHash, state.Receipt.Hash)

	f.executor.AssertExpectations(t)
}

func TestSubmit_HardCheckFailures_ReturnToInput(t *testing.T) {
	tests := []struct {
		name        string
		form        domain.TransferForm
		networkOK   bool
		networkErr  error
		failedCheck domain.CheckName
		errContains string
	}{
		{
			name:        "Malformed address",
			form:        domain.TransferForm{AssetSymbol: "ETH", Amount: "1", RecipientAddress: "0x1234"},
			networkOK:   true,
			failedCheck: domain.CheckAddressFormat,
			errContains: "invalid address format for ETH",
		},
		{
			name:        "Zero amount",
			form:        ethForm("0"),
			networkOK:   true,
			failedCheck: domain.CheckAmountBounds,
			errContains: "amount must be between 0.01 and 10 ETH",
		},
		{
			name:        "Amount above max",
			form:        ethForm("10.0001"),
			networkOK:   true,
			failedCheck: domain.CheckAmountBounds,
			errContains: "amount must be between",
		},
		{
			name:        "Network unreachable",
			form:        ethForm("1"),
			networkOK:   false,
			failedCheck: domain.CheckNetworkReachability,
			errContains: "ETH network is unreachable",
		},
		{
			name:        "Network probe error",
			form:        ethForm("1"),
			networkErr:  errors.New("connection refused"),
			failedCheck: domain.CheckNetworkReachability,
			errContains: "network check failed: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			f.network.On("CheckNetwork", mock.Anything, "ETH").Return(tt.networkOK, tt.networkErr)
			f.reputation.On("CheckReputation", mock.Anything, "ETH", mock.Anything).Return(false, nil)

			err := f.pipeline.Submit(ctx, tt.form)
			require.Error(t, err)
			assert.Equal(t, domain.KindHardCheck, domain.KindOf(err))
			assert.Contains(t, err.Error(), tt.errContains)

			state := f.pipeline.State()
			assert.Equal(t, domain.StageInput, state.Stage)
			assert.False(t, state.AckRequired)

			// every check reports a terminal status, none is skipped
			require.Len(t, state.Checks, 4)
			for _, c := range state.Checks {
				assert.True(t, c.Terminal(), "check %s must be terminal", c.Name)
			}
			failed, ok := state.Check(tt.failedCheck)
			require.True(t, ok)
			assert.Equal(t, domain.CheckStatusFailed, failed.Status)

			found := false
			for _, fe := range state.Errors {
				if fe.Field == string(tt.failedCheck) {
					found = true
					assert.Contains(t, fe.Message, tt.errContains)
				}
			}
			assert.True(t, found, "failed check must be attached as an error")

			// EXECUTING is unreachable regardless of acknowledgement
			assert.ErrorIs(t, f.pipeline.AcknowledgeWarnings(), domain.ErrIllegalTransition)
			_, err = f.pipeline.Confirm(ctx)
			assert.ErrorIs(t, err, domain.ErrIllegalTransition)
			f.executor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)

			f.network.AssertExpectations(t)
			f.reputation.AssertExpectations(t)
		})
	}
}

func TestSubmit_ResubmissionClearsChecks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.healthy(true)

	err := f.pipeline.Submit(ctx, ethForm("0"))
	require.Error(t, err)
	require.Len(t, f.pipeline.State().Errors, 1)

	require.NoError(t, f.pipeline.Submit(ctx, ethForm("2")))

	state := f.pipeline.State()
	assert.Equal(t, domain.StageConfirm, state.Stage)
	assert.Empty(t, state.Errors)
	assert.Empty(t, state.Warnings)
	assert.True(t, decimal.NewFromInt(2).Equal(state.Request.Amount))
}

func TestSubmit_InputErrors(t *testing.T) {
	tests := []struct {
		name       string
		form       domain.TransferForm
		wantKind   domain.ErrorKind
		wantFields []string
	}{
		{
			name:       "Missing amount and recipient",
			form:       domain.TransferForm{AssetSymbol: "ETH", Amount: "  "},
			wantKind:   domain.KindInput,
			wantFields: []string{domain.FieldAmount, domain.FieldRecipient},
		},
		{
			name:       "Malformed amount",
			form:       domain.TransferForm{AssetSymbol: "ETH", Amount: "one", RecipientAddress: validETHAddress},
			wantKind:   domain.KindInput,
			wantFields: []string{domain.FieldAmount},
		},
		{
			name:       "Malformed fee",
			form:       domain.TransferForm{AssetSymbol: "ETH", Amount: "1", RecipientAddress: validETHAddress, FeeEstimate: "cheap"},
			wantKind:   domain.KindInput,
			wantFields: []string{domain.FieldFee},
		},
		{
			name:       "Missing asset",
			form:       domain.TransferForm{Amount: "1", RecipientAddress: validETHAddress},
			wantKind:   domain.KindInput,
			wantFields: []string{domain.FieldAsset},
		},
		{
			name:       "Unsupported asset",
			form:       domain.TransferForm{AssetSymbol: "DOGE", Amount: "1", RecipientAddress: validETHAddress},
			wantKind:   domain.KindUnsupportedAsset,
			wantFields: []string{domain.FieldAsset},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			err := f.pipeline.Submit(context.Background(), tt.form)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, domain.KindOf(err))

			state := f.pipeline.State()
			assert.Equal(t, domain.StageInput, state.Stage)
			assert.Empty(t, state.Checks)

			fields := make([]string, 0, len(state.Errors))
			for _, fe := range state.Errors {
				fields = append(fields, fe.Field)
				assert.NotEmpty(t, fe.Message)
			}
			assert.Equal(t, tt.wantFields, fields)

			f.network.AssertNotCalled(t, "CheckNetwork", mock.Anything, mock.Anything)
			f.reputation.AssertNotCalled(t, "CheckReputation", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestReset_IsIdempotentFromEveryStage(t *testing.T) {
	ctx := context.Background()
	receipt := domain.Receipt{Hash: testHash, ExplorerURL: "https://etherscan.io/tx/" + testHash}

	setups := []struct {
		name  string
		setup func(t *testing.T, f *fixture)
		stage domain.Stage
	}{
		{
			name:  "Input",
			setup: func(t *testing.T, f *fixture) {},
			stage: domain.StageInput,
		},
		{
			name: "Checking with pending acknowledgement",
			setup: func(t *testing.T, f *fixture) {
				f.healthy(false)
				require.NoError(t, f.pipeline.Submit(ctx, ethForm("1")))
			},
			stage: domain.StageChecking,
		},
		{
			name: "Confirm",
			setup: func(t *testing.T, f *fixture) {
				f.healthy(true)
				require.NoError(t, f.pipeline.Submit(ctx, ethForm("1")))
			},
			stage: domain.StageConfirm,
		},
		{
			name: "Done",
			setup: func(t *testing.T, f *fixture) {
				f.healthy(true)
				f.executor.On("Execute", mock.Anything, mock.Anything, mock.Anything).Return(receipt, nil)
				require.NoError(t, f.pipeline.Submit(ctx, ethForm("1")))
				_, err := f.pipeline.Confirm(ctx)
				require.NoError(t, err)
			},
			stage: domain.StageDone,
		},
		{
			name: "Error",
			setup: func(t *testing.T, f *fixture) {
				f.healthy(true)
				f.executor.On("Execute", mock.Anything, mock.Anything, mock.Anything).Return(domain.Receipt{}, errors.New("insufficient funds"))
				require.NoError(t, f.pipeline.Submit(ctx, ethForm("1")))
				_, err := f.pipeline.Confirm(ctx)
				require.Error(t, err)
			},
			stage: domain.StageError,
		},
	}

	for _, tt := range setups {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(t, f)
			before := f.pipeline.State()
			require.Equal(t, tt.stage, before.Stage)

			for i := 0; i < 2; i++ {
				f.pipeline.Reset()

				state := f.pipeline.State()
				assert.Equal(t, domain.StageInput, state.Stage)
				assert.Empty(t, state.Checks)
				assert.Empty(t, state.Warnings)
				assert.Empty(t, state.Errors)
				assert.Nil(t, state.Receipt)
				assert.Empty(t, state.ExecutionError)
				assert.False(t, state.AckRequired)
				assert.NotEqual(t, before.ID, state.ID, "reset starts a new run")
			}
		})
	}
}

func TestConfirm_TwiceDoesNotExecuteTwice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.healthy(true)

	receipt := domain.Receipt{Hash: testHash, ExplorerURL: "https://etherscan.io/tx/" + testHash}
	f.executor.On("Execute", mock.Anything, mock.Anything, mock.Anything).Return(receipt, nil).Once()

	var completed []domain.PipelineState
	f.pipeline.OnComplete(func(ctx context.Context, state domain.PipelineState) error {
		completed = append(completed, state)
		return nil
	})

	require.NoError(t, f.pipeline.Submit(ctx, ethForm("1")))

	_, err := f.pipeline.Confirm(ctx)
	require.NoError(t, err)

	_, err = f.pipeline.Confirm(ctx)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	state := f.pipeline.State()
	assert.Equal(t, domain.StageDone, state.Stage)
	assert.Equal(t, &receipt, state.Receipt)

	require.Len(t, completed, 1)
	assert.Equal(t, domain.StageDone, completed[0].Stage)
	assert.Equal(t, testHash, completed[0].Receipt.Hash)

	f.executor.AssertNumberOfCalls(t, "Execute", 1)
}

func TestConfirm_ConcurrentCallsWhileExecuting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.healthy(true)

	started := make(chan struct{})
	release := make(chan struct{})
	receipt := domain.Receipt{Hash: testHash, ExplorerURL: "https://etherscan.io/tx/" + testHash}
	f.executor.On("Execute", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			close(started)
			<-release
		}).
		Return(receipt, nil).Once()

	require.NoError(t, f.pipeline.Submit(ctx, ethForm("1")))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.pipeline.Confirm(ctx)
		assert.NoError(t, err)
	}()

	<-started
	assert.Equal(t, domain.StageExecuting, f.pipeline.State().Stage)

	_, err := f.pipeline.Confirm(ctx)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	assert.ErrorIs(t, f.pipeline.Cancel(), domain.ErrNotCancellable)

	close(release)
	wg.Wait()

	assert.Equal(t, domain.StageDone, f.pipeline.State().Stage)
	f.executor.AssertNumberOfCalls(t, "Execute", 1)
}

func TestReset_DuringExecutionStillRecordsTheTransfer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.healthy(true)

	started := make(chan struct{})
	release := make(chan struct{})
	receipt := domain.Receipt{Hash: testHash, ExplorerURL: "https://etherscan.io/tx/" + testHash}
	f.executor.On("Execute", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			close(started)
			<-release
		}).
		Return(receipt, nil).Once()

	var mu sync.Mutex
	var completed []domain.PipelineState
	f.pipeline.OnComplete(func(ctx context.Context, state domain.PipelineState) error {
		mu.Lock()
		defer mu.Unlock()
		completed = append(completed, state)
		return nil
	})

	require.NoError(t, f.pipeline.Submit(ctx, ethForm("1.5")))
	runID := f.pipeline.State().ID

	type result struct {
		receipt domain.Receipt
		err     error
	}
	done := make(chan result, 1)
	go func() {
		r, err := f.pipeline.Confirm(ctx)
		done <- result{receipt: r, err: err}
	}()

	<-started
	f.pipeline.Reset()
	assert.Equal(t, domain.StageInput, f.pipeline.State().Stage)

	close(release)
	res := <-done

	assert.ErrorIs(t, res.err, domain.ErrCancelled)
	assert.Equal(t, testHash, res.receipt.Hash)

	state := f.pipeline.State()
	assert.Equal(t, domain.StageInput, state.Stage)
	assert.Nil(t, state.Receipt, "the fresh run never sees the abandoned receipt")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, completed, 1)
	assert.Equal(t, runID, completed[0].ID)
	assert.Equal(t, domain.StageDone, completed[0].Stage)
	require.NotNil(t, completed[0].Receipt)
	assert.Equal(t, testHash, completed[0].Receipt.Hash)
	assert.Equal(t, "1.5", completed[0].Request.Amount.String())
	f.executor.AssertNumberOfCalls(t, "Execute", 1)
}

func TestReset_DuringFailedExecutionRecordsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.healthy(true)

	started := make(chan struct{})
	release := make(chan struct{})
	f.executor.On("Execute", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			close(started)
			<-release
		}).
		Return(domain.Receipt{}, errors.New("insufficient funds")).Once()

	listenerCalls := 0
	f.pipeline.OnComplete(func(ctx context.Context, state domain.PipelineState) error {
		listenerCalls++
		return nil
	})

	require.NoError(t, f.pipeline.Submit(ctx, ethForm("1")))

	done := make(chan error, 1)
	go func() {
		_, err := f.pipeline.Confirm(ctx)
		done <- err
	}()

	<-started
	f.pipeline.Reset()
	close(release)

	assert.ErrorIs(t, <-done, domain.ErrCancelled)
	assert.Equal(t, 0, listenerCalls)
	assert.Equal(t, domain.StageInput, f.pipeline.State().Stage)
}

func TestConfirm_ExecutorFailure_IsFatalForTheRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.healthy(true)
	f.executor.On("Execute", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.Receipt{}, errors.New("timeout")).Once()

	require.NoError(t, f.pipeline.Submit(ctx, ethForm("1")))

	_, err := f.pipeline.Confirm(ctx)
	require.Error(t, err)
	assert.Equal(t, domain.KindExecution, domain.KindOf(err))

	state := f.pipeline.State()
	assert.Equal(t, domain.StageError, state.Stage)
	assert.Equal(t, "timeout", state.ExecutionError)
	assert.Nil(t, state.Receipt)

	// only reset is valid from ERROR
	assert.ErrorIs(t, f.pipeline.Submit(ctx, ethForm("1")), domain.ErrIllegalTransition)
	_, err = f.pipeline.Confirm(ctx)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	assert.ErrorIs(t, f.pipeline.AcknowledgeWarnings(), domain.ErrIllegalTransition)
	assert.ErrorIs(t, f.pipeline.Cancel(), domain.ErrIllegalTransition)

	f.pipeline.Reset()
	assert.Equal(t, domain.StageInput, f.pipeline.State().Stage)

	f.executor.AssertNumberOfCalls(t, "Execute", 1)
}

func TestConfirm_ExecuteTimeout(t *testing.T) {
	ctx := context.Background()
	network := new(MockNetworkChecker)
	reputation := new(MockReputationChecker)
	executor := new(MockExecutor)
	network.On("CheckNetwork", mock.Anything, "ETH").Return(true, nil)
	reputation.On("CheckReputation", mock.Anything, "ETH", validETHAddress).Return(true, nil)

	release := make(chan struct{})
	defer close(release)
	executor.On("Execute", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { <-release }).
		Return(domain.Receipt{Hash: testHash}, nil)

	runner := checks.NewRunner(network, reputation, time.Second, time.Second, zap.NewNop())
	p := NewPipeline(domain.DefaultRegistry(), runner, executor, 20*time.Millisecond, zap.NewNop())

	require.NoError(t, p.Submit(ctx, ethForm("1")))

	_, err := p.Confirm(ctx)
	require.Error(t, err)

	state := p.State()
	assert.Equal(t, domain.StageError, state.Stage)
	assert.Equal(t, "timeout", state.ExecutionError)
	assert.Nil(t, state.Receipt)
}

func TestCancel_DuringChecksDiscardsResults(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	network := networkFunc(func(ctx context.Context, assetSymbol string) (bool, error) {
		close(started)
		<-ctx.Done()
		return false, ctx.Err()
	})
	reputation := new(MockReputationChecker)
	reputation.On("CheckReputation", mock.Anything, "ETH", validETHAddress).Return(true, nil)

	runner := checks.NewRunner(network, reputation, 5*time.Second, time.Second, zap.NewNop())
	p := NewPipeline(domain.DefaultRegistry(), runner, new(MockExecutor), time.Second, zap.NewNop())

	submitErr := make(chan error, 1)
	go func() {
		submitErr <- p.Submit(ctx, ethForm("1"))
	}()

	<-started
	assert.Equal(t, domain.StageChecking, p.State().Stage)
	require.NoError(t, p.Cancel())

	select {
	case err := <-submitErr:
		assert.ErrorIs(t, err, domain.ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("submit did not return after cancel")
	}

	state := p.State()
	assert.Equal(t, domain.StageInput, state.Stage)
	assert.Empty(t, state.Checks)
	assert.Empty(t, state.Errors)
}

func TestCancel_FromConfirmResetsToInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.healthy(true)

	assert.ErrorIs(t, f.pipeline.Cancel(), domain.ErrIllegalTransition, "nothing to cancel at input")

	require.NoError(t, f.pipeline.Submit(ctx, ethForm("1")))
	require.NoError(t, f.pipeline.Cancel())

	state := f.pipeline.State()
	assert.Equal(t, domain.StageInput, state.Stage)
	assert.Empty(t, state.Checks)
	assert.True(t, state.Request.Amount.IsZero())

	_, err := f.pipeline.Confirm(ctx)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	f.executor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_AsyncCheckTimeoutIsHardFailure(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	network := networkFunc(func(ctx context.Context, assetSymbol string) (bool, error) {
		<-release // ignores ctx on purpose
		return true, nil
	})
	reputation := new(MockReputationChecker)
	reputation.On("CheckReputation", mock.Anything, "ETH", validETHAddress).Return(true, nil)

	runner := checks.NewRunner(network, reputation, 20*time.Millisecond, time.Second, zap.NewNop())
	p := NewPipeline(domain.DefaultRegistry(), runner, new(MockExecutor), time.Second, zap.NewNop())

	err := p.Submit(context.Background(), ethForm("1"))
	require.Error(t, err)
	assert.Equal(t, domain.KindHardCheck, domain.KindOf(err))

	state := p.State()
	assert.Equal(t, domain.StageInput, state.Stage)
	check, ok := state.Check(domain.CheckNetworkReachability)
	require.True(t, ok)
	assert.Equal(t, domain.CheckStatusFailed, check.Status)
	assert.Contains(t, check.Detail, "timed out")
}

func TestSubscribe_ObservesChecksInCanonicalOrder(t *testing.T) {
	network := networkFunc(func(ctx context.Context, assetSymbol string) (bool, error) {
		time.Sleep(30 * time.Millisecond)
		return true, nil
	})
	reputation := new(MockReputationChecker)
	reputation.On("CheckReputation", mock.Anything, "ETH", validETHAddress).Return(true, nil)

	runner := checks.NewRunner(network, reputation, time.Second, time.Second, zap.NewNop())
	p := NewPipeline(domain.DefaultRegistry(), runner, new(MockExecutor), time.Second, zap.NewNop())

	var snapshots []domain.PipelineState
	unsubscribe := p.Subscribe(func(state domain.PipelineState) {
		snapshots = append(snapshots, state)
	})

	require.NoError(t, p.Submit(context.Background(), ethForm("1")))
	unsubscribe()

	require.NotEmpty(t, snapshots)
	assert.Equal(t, domain.StageChecking, snapshots[0].Stage)
	assert.Equal(t, domain.StageConfirm, snapshots[len(snapshots)-1].Stage)

	for _, s := range snapshots {
		if s.Stage != domain.StageChecking {
			continue
		}
		// a terminal check is never followed by an earlier pending one
		seenPending := false
		for _, c := range s.Checks {
			if c.Status == domain.CheckStatusPending {
				seenPending = true
				continue
			}
			assert.False(t, seenPending, "check %s reported before an earlier check", c.Name)
		}
	}

	// the first snapshot shows every check pending
	assert.Equal(t, domain.PendingChecks(), snapshots[0].Checks)

	// no more notifications after unsubscribe
	count := len(snapshots)
	p.Reset()
	assert.Len(t, snapshots, count)
}

func TestOnComplete_ListenerErrorDoesNotChangeState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.healthy(true)
	f.executor.On("Execute", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.Receipt{Hash: testHash, ExplorerURL: "#"}, nil)

	f.pipeline.OnComplete(func(ctx context.Context, state domain.PipelineState) error {
		return errors.New("database unavailable")
	})

	require.NoError(t, f.pipeline.Submit(ctx, ethForm("1")))
	_, err := f.pipeline.Confirm(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.StageDone, f.pipeline.State().Stage)
}

func TestDiscard(t *testing.T) {
	ctx := context.Background()

	t.Run("Resets outside execution", func(t *testing.T) {
		f := newFixture(t)
		f.healthy(true)
		require.NoError(t, f.pipeline.Submit(ctx, ethForm("1")))

		require.NoError(t, f.pipeline.Discard())
		assert.Equal(t, domain.StageInput, f.pipeline.State().Stage)

		_, err := f.pipeline.Confirm(ctx)
		assert.ErrorIs(t, err, domain.ErrIllegalTransition)
		f.executor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Refused while executing", func(t *testing.T) {
		f := newFixture(t)
		f.healthy(true)

		started := make(chan struct{})
		release := make(chan struct{})
		f.executor.On("Execute", mock.Anything, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				close(started)
				<-release
			}).
			Return(domain.Receipt{Hash: testHash, ExplorerURL: "#"}, nil).Once()

		require.NoError(t, f.pipeline.Submit(ctx, ethForm("1")))

		done := make(chan error, 1)
		go func() {
			_, err := f.pipeline.Confirm(ctx)
			done <- err
		}()

		<-started
		assert.ErrorIs(t, f.pipeline.Discard(), domain.ErrNotCancellable)
		assert.Equal(t, domain.StageExecuting, f.pipeline.State().Stage)

		close(release)
		require.NoError(t, <-done)
		assert.Equal(t, domain.StageDone, f.pipeline.State().Stage)
	})
}
