package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/simaogato/securesend-backend/internal/domain"
	"github.com/simaogato/securesend-backend/internal/usecase/checks"
	"github.com/simaogato/securesend-backend/internal/usecase/gate"
)

const DefaultExecuteTimeout = 30 * time.Second

// CheckRunner runs the security checks of a request
type CheckRunner interface {
	Run(ctx context.Context, req domain.TransferRequest, rules domain.AssetRules, onResult checks.ResultFunc) []domain.SecurityCheckResult
}

// Observer receives a snapshot after every state change
type Observer func(state domain.PipelineState)

// CompleteFunc is called once per run that reaches DONE
type CompleteFunc func(ctx context.Context, state domain.PipelineState) error

// Pipeline is the transaction state machine of a single transfer form.
// It exclusively owns its PipelineState; all methods are safe for concurrent use.
//
// Observers are called synchronously, in state-change order, and must not call
// back into the same pipeline.
type Pipeline struct {
	registry       *domain.Registry
	runner         CheckRunner
	executor       domain.Executor
	executeTimeout time.Duration
	logger         *zap.Logger

	mu         sync.Mutex
	state      *domain.PipelineState
	rules      domain.AssetRules
	generation uint64
	cancelRun  context.CancelFunc

	notifyMu   sync.Mutex
	observers  map[int]Observer
	nextID     int
	onComplete []CompleteFunc
}

// NewPipeline creates a pipeline at a fresh INPUT stage
func NewPipeline(
	registry *domain.Registry,
	runner CheckRunner,
	executor domain.Executor,
	executeTimeout time.Duration,
	logger *zap.Logger,
) *Pipeline {
	if executeTimeout <= 0 {
		executeTimeout = DefaultExecuteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		registry:       registry,
		runner:         runner,
		executor:       executor,
		executeTimeout: executeTimeout,
		logger:         logger,
		state:          domain.NewPipelineState(),
		observers:      make(map[int]Observer),
	}
}

// State returns a snapshot of the current state
func (p *Pipeline) State() domain.PipelineState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Clone()
}

// Subscribe registers an observer and returns a function that removes it
func (p *Pipeline) Subscribe(observer Observer) func() {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	id := p.nextID
	p.nextID++
	p.observers[id] = observer

	return func() {
		p.notifyMu.Lock()
		defer p.notifyMu.Unlock()
		delete(p.observers, id)
	}
}

// OnComplete registers a listener for runs that reach DONE.
// Listener errors are logged and never change the pipeline state.
func (p *Pipeline) OnComplete(fn CompleteFunc) {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()
	p.onComplete = append(p.onComplete, fn)
}

// Submit validates the form and runs the security checks.
// Logic:
//  1. Only allowed at INPUT; previous checks and errors are cleared
//  2. Resolve the asset rules and parse the form; failures stay at INPUT with field errors
//  3. Move to CHECKING and run all checks, publishing each result in canonical order
//  4. Any hard failure returns to INPUT with the failures attached
//  5. Soft failures only: stay at CHECKING until AcknowledgeWarnings
//  6. Otherwise move to CONFIRM
//
// Submit blocks until the checks finish or the run is cancelled.
func (p *Pipeline) Submit(ctx context.Context, form domain.TransferForm) error {
	p.mu.Lock()

	if p.state.Stage != domain.StageInput {
		stage := p.state.Stage
		p.mu.Unlock()
		return fmt.Errorf("submit from %s: %w", stage, domain.ErrIllegalTransition)
	}

	p.state.Checks = nil
	p.state.Warnings = nil
	p.state.Errors = nil

	rules, req, err := p.prepare(form)
	if err != nil {
		p.state.Errors = fieldErrorsOf(err)
		p.touchAndNotifyLocked()
		return err
	}

	p.state.Request = req
	p.state.Checks = domain.PendingChecks()
	p.state.AckRequired = false
	p.state.Acknowledged = false
	p.rules = rules

	p.generation++
	gen := p.generation
	runCtx, cancel := context.WithCancel(ctx)
	p.cancelRun = cancel

	p.transitionLocked(domain.StageChecking)
	defer cancel()

	results := p.runner.Run(runCtx, req, rules, func(index int, result domain.SecurityCheckResult) {
		p.applyCheck(gen, index, result)
	})

	p.mu.Lock()
	if p.generation != gen || p.state.Stage != domain.StageChecking {
		p.mu.Unlock()
		return domain.ErrCancelled
	}
	p.cancelRun = nil

	p.state.Checks = append([]domain.SecurityCheckResult(nil), results...)
	p.state.Warnings = gate.Warnings(results)

	if failures := gate.HardFailures(results); len(failures) > 0 {
		fieldErrs := make(domain.FieldErrors, 0, len(failures))
		for _, f := range failures {
			fieldErrs = append(fieldErrs, domain.FieldError{Field: string(f.Name), Message: f.Detail})
		}
		p.state.Errors = fieldErrs
		p.transitionLocked(domain.StageInput)
		return domain.NewError(domain.KindHardCheck, "run security checks", fieldErrs)
	}

	if gate.RequiresAck(results) {
		p.state.AckRequired = true
		p.touchAndNotifyLocked()
		return nil
	}

	p.transitionLocked(domain.StageConfirm)
	return nil
}

// prepare resolves the asset rules and parses the form. Caller holds p.mu.
func (p *Pipeline) prepare(form domain.TransferForm) (domain.AssetRules, domain.TransferRequest, error) {
	symbol := domain.NormalizeSymbol(form.AssetSymbol)
	if symbol == "" {
		return domain.AssetRules{}, domain.TransferRequest{}, domain.NewError(domain.KindInput, "submit",
			domain.FieldErrors{{Field: domain.FieldAsset, Message: "asset is required"}})
	}

	rules, err := p.registry.GetRules(symbol)
	if err != nil {
		return domain.AssetRules{}, domain.TransferRequest{}, err
	}

	req, err := form.Parse(rules)
	if err != nil {
		return domain.AssetRules{}, domain.TransferRequest{}, err
	}

	return rules, req, nil
}

func fieldErrorsOf(err error) []domain.FieldError {
	var fieldErrs domain.FieldErrors
	if errors.As(err, &fieldErrs) {
		return fieldErrs
	}
	if domain.KindOf(err) == domain.KindUnsupportedAsset {
		var pipelineErr *domain.Error
		errors.As(err, &pipelineErr)
		return []domain.FieldError{{Field: domain.FieldAsset, Message: pipelineErr.Err.Error()}}
	}
	return []domain.FieldError{{Field: domain.FieldAsset, Message: err.Error()}}
}

// applyCheck publishes a single check result while the run is still current
func (p *Pipeline) applyCheck(gen uint64, index int, result domain.SecurityCheckResult) {
	p.mu.Lock()
	if p.generation != gen || p.state.Stage != domain.StageChecking || index >= len(p.state.Checks) {
		p.mu.Unlock()
		return
	}

	p.state.Checks[index] = result
	p.state.Warnings = gate.Warnings(p.state.Checks)
	p.touchAndNotifyLocked()
}

// AcknowledgeWarnings accepts the soft warnings of the current run and moves to CONFIRM
func (p *Pipeline) AcknowledgeWarnings() error {
	p.mu.Lock()

	if p.state.Stage != domain.StageChecking || !p.state.AckRequired {
		stage := p.state.Stage
		p.mu.Unlock()
		return fmt.Errorf("acknowledge warnings from %s: %w", stage, domain.ErrIllegalTransition)
	}

	p.state.Acknowledged = true
	p.transitionLocked(domain.StageConfirm)
	return nil
}

// Confirm executes the transfer and blocks until the executor returns.
// The executor call is not interruptible: cancellation of ctx is ignored
// once execution starts, only the execute timeout applies.
func (p *Pipeline) Confirm(ctx context.Context) (domain.Receipt, error) {
	p.mu.Lock()

	switch {
	case p.state.Stage == domain.StageChecking && p.state.AckRequired && !p.state.Acknowledged:
		p.mu.Unlock()
		return domain.Receipt{}, domain.NewError(domain.KindSoftCheck, "confirm", domain.ErrAcknowledgementRequired)
	case p.state.Stage != domain.StageConfirm:
		stage := p.state.Stage
		p.mu.Unlock()
		return domain.Receipt{}, fmt.Errorf("confirm from %s: %w", stage, domain.ErrIllegalTransition)
	}

	req := p.state.Request
	rules := p.rules
	gen := p.generation
	running := p.state.Clone()

	p.transitionLocked(domain.StageExecuting)

	receipt, err := p.execute(context.WithoutCancel(ctx), req, rules)

	p.mu.Lock()
	if p.generation != gen || p.state.Stage != domain.StageExecuting {
		p.mu.Unlock()
		p.logger.Warn("execution finished after the run was reset",
			zap.String("run_id", running.ID.String()),
			zap.String("hash", receipt.Hash),
			zap.Error(err),
		)
		if err != nil {
			return domain.Receipt{}, domain.ErrCancelled
		}
		// the transfer happened; completion listeners still record it
		running.Receipt = &receipt
		p.complete(context.WithoutCancel(ctx), running)
		return receipt, domain.ErrCancelled
	}

	if err != nil {
		p.state.ExecutionError = err.Error()
		p.transitionLocked(domain.StageError)
		return domain.Receipt{}, domain.NewError(domain.KindExecution, "execute transfer", err)
	}

	p.state.Receipt = &receipt
	snapshot := p.state.Clone()
	p.transitionLocked(domain.StageDone)

	p.complete(context.WithoutCancel(ctx), snapshot)

	return receipt, nil
}

func (p *Pipeline) execute(ctx context.Context, req domain.TransferRequest, rules domain.AssetRules) (domain.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, p.executeTimeout)
	defer cancel()

	type outcome struct {
		receipt domain.Receipt
		err     error
	}
	done := make(chan outcome, 1)

	go func() {
		receipt, err := p.executor.Execute(ctx, req, rules)
		done <- outcome{receipt: receipt, err: err}
	}()

	select {
	case o := <-done:
		return o.receipt, o.err
	case <-ctx.Done():
		return domain.Receipt{}, errors.New("timeout")
	}
}

func (p *Pipeline) complete(ctx context.Context, state domain.PipelineState) {
	state.Stage = domain.StageDone
	state.UpdatedAt = time.Now()

	p.notifyMu.Lock()
	listeners := append([]CompleteFunc(nil), p.onComplete...)
	p.notifyMu.Unlock()

	for _, fn := range listeners {
		if err := fn(ctx, state); err != nil {
			p.logger.Error("completion listener failed",
				zap.String("run_id", state.ID.String()),
				zap.Error(err),
			)
		}
	}
}

// Cancel abandons the current run from CHECKING or CONFIRM and returns to a fresh INPUT.
// In-flight check results are discarded.
func (p *Pipeline) Cancel() error {
	p.mu.Lock()

	switch p.state.Stage {
	case domain.StageChecking, domain.StageConfirm:
		p.resetLocked()
		return nil
	case domain.StageExecuting:
		p.mu.Unlock()
		return domain.ErrNotCancellable
	default:
		stage := p.state.Stage
		p.mu.Unlock()
		return fmt.Errorf("cancel from %s: %w", stage, domain.ErrIllegalTransition)
	}
}

// Reset discards the current run from any stage and returns to a fresh INPUT.
// Resetting while EXECUTING abandons the run's state, but a successful
// executor result is still handed to the completion listeners once.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	p.resetLocked()
}

// Discard resets the pipeline unless a transfer is executing.
// The stage check and the reset happen under one lock, so a Confirm
// either starts before and is refused here, or finds a fresh INPUT.
func (p *Pipeline) Discard() error {
	p.mu.Lock()

	if p.state.Stage == domain.StageExecuting {
		p.mu.Unlock()
		return domain.ErrNotCancellable
	}

	p.resetLocked()
	return nil
}

// resetLocked replaces the state with a fresh one and releases p.mu
func (p *Pipeline) resetLocked() {
	if p.cancelRun != nil {
		p.cancelRun()
		p.cancelRun = nil
	}
	p.generation++

	from := p.state.Stage
	p.state = domain.NewPipelineState()
	p.rules = domain.AssetRules{}

	p.logger.Info("pipeline reset",
		zap.String("run_id", p.state.ID.String()),
		zap.String("from", string(from)),
	)
	p.notifyLocked()
}

// transitionLocked moves to stage, notifies observers and releases p.mu
func (p *Pipeline) transitionLocked(to domain.Stage) {
	from := p.state.Stage
	p.state.Stage = to

	p.logger.Info("pipeline stage changed",
		zap.String("run_id", p.state.ID.String()),
		zap.String("asset", p.state.Request.AssetSymbol),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	p.touchAndNotifyLocked()
}

// touchAndNotifyLocked stamps the state, notifies observers and releases p.mu
func (p *Pipeline) touchAndNotifyLocked() {
	p.state.UpdatedAt = time.Now()
	p.notifyLocked()
}

// notifyLocked hands a snapshot to the observers and releases p.mu.
// notifyMu is taken before p.mu is released so observers see changes in order.
func (p *Pipeline) notifyLocked() {
	snapshot := p.state.Clone()

	p.notifyMu.Lock()
	p.mu.Unlock()
	defer p.notifyMu.Unlock()

	for _, observer := range p.observers {
		observer(snapshot)
	}
}
