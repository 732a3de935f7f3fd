package checks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/simaogato/securesend-backend/internal/domain"
)

const (
	DefaultNetworkTimeout    = 5 * time.Second
	DefaultReputationTimeout = 5 * time.Second
)

// ResultFunc receives check results in canonical order.
// A result is delivered once it and every earlier check are terminal.
type ResultFunc func(index int, result domain.SecurityCheckResult)

// Runner executes the security checks of a transfer request
type Runner struct {
	Network           domain.NetworkChecker
	Reputation        domain.ReputationChecker
	NetworkTimeout    time.Duration
	ReputationTimeout time.Duration

	logger *zap.Logger
}

// NewRunner creates a new Runner instance.
// Zero timeouts select the defaults.
func NewRunner(
	network domain.NetworkChecker,
	reputation domain.ReputationChecker,
	networkTimeout, reputationTimeout time.Duration,
	logger *zap.Logger,
) *Runner {
	if networkTimeout <= 0 {
		networkTimeout = DefaultNetworkTimeout
	}
	if reputationTimeout <= 0 {
		reputationTimeout = DefaultReputationTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		Network:           network,
		Reputation:        reputation,
		NetworkTimeout:    networkTimeout,
		ReputationTimeout: reputationTimeout,
		logger:            logger,
	}
}

type indexedResult struct {
	index  int
	result domain.SecurityCheckResult
}

// Run executes every check and returns one result per check in canonical order.
// Logic:
//  1. AddressFormat and AmountBounds are evaluated locally
//  2. NetworkReachability and AddressReputation run concurrently, each under its own timeout
//  3. Results are buffered and handed to onResult in canonical order, not completion order
//
// Every check always produces a terminal result; a failing check never stops the others.
func (r *Runner) Run(ctx context.Context, req domain.TransferRequest, rules domain.AssetRules, onResult ResultFunc) []domain.SecurityCheckResult {
	order := domain.CheckOrder()
	results := make([]domain.SecurityCheckResult, len(order))
	completed := make(chan indexedResult, len(order))

	completed <- indexedResult{index: 0, result: checkAddressFormat(req, rules)}
	completed <- indexedResult{index: 1, result: checkAmountBounds(req, rules)}

	// provider errors also become Failed results; Wait reports the first
	var g errgroup.Group
	g.Go(func() error {
		result, err := r.checkNetwork(ctx, req)
		completed <- indexedResult{index: 2, result: result}
		return err
	})
	g.Go(func() error {
		result, err := r.checkReputation(ctx, req)
		completed <- indexedResult{index: 3, result: result}
		return err
	})

	ready := make([]bool, len(order))
	next := 0
	for range order {
		res := <-completed
		results[res.index] = res.result
		ready[res.index] = true

		for next < len(order) && ready[next] {
			if onResult != nil {
				onResult(next, results[next])
			}
			next++
		}
	}

	if err := g.Wait(); err != nil {
		r.logger.Warn("security check provider failed",
			zap.String("asset", req.AssetSymbol),
			zap.Error(err),
		)
	}

	return results
}

func checkAddressFormat(req domain.TransferRequest, rules domain.AssetRules) domain.SecurityCheckResult {
	if !rules.MatchAddress(req.RecipientAddress) {
		return domain.Failed(domain.CheckAddressFormat, "invalid address format for "+rules.Symbol)
	}
	return domain.Passed(domain.CheckAddressFormat)
}

func checkAmountBounds(req domain.TransferRequest, rules domain.AssetRules) domain.SecurityCheckResult {
	if !rules.InBounds(req.Amount) {
		return domain.Failed(domain.CheckAmountBounds, fmt.Sprintf("amount must be between %s and %s %s",
			rules.MinAmount.String(), rules.MaxAmount.String(), rules.Symbol))
	}
	return domain.Passed(domain.CheckAmountBounds)
}

// checkNetwork returns the check result and the provider error behind a failure, if any
func (r *Runner) checkNetwork(ctx context.Context, req domain.TransferRequest) (domain.SecurityCheckResult, error) {
	name := domain.CheckNetworkReachability
	if r.Network == nil {
		return domain.Failed(name, "network checker is not configured"), nil
	}

	ok, err := probe(ctx, r.NetworkTimeout, func(ctx context.Context) (bool, error) {
		return r.Network.CheckNetwork(ctx, req.AssetSymbol)
	})
	if err != nil {
		return domain.Failed(name, describeProbeError("network check", r.NetworkTimeout, err)), fmt.Errorf("network check: %w", err)
	}
	if !ok {
		return domain.Failed(name, req.AssetSymbol+" network is unreachable"), nil
	}

	return domain.Passed(name), nil
}

func (r *Runner) checkReputation(ctx context.Context, req domain.TransferRequest) (domain.SecurityCheckResult, error) {
	name := domain.CheckAddressReputation
	if r.Reputation == nil {
		return domain.Failed(name, "reputation checker is not configured"), nil
	}

	ok, err := probe(ctx, r.ReputationTimeout, func(ctx context.Context) (bool, error) {
		return r.Reputation.CheckReputation(ctx, req.AssetSymbol, req.RecipientAddress)
	})
	if err != nil {
		return domain.Failed(name, describeProbeError("reputation check", r.ReputationTimeout, err)), fmt.Errorf("reputation check: %w", err)
	}
	if !ok {
		return domain.Failed(name, "recipient address is flagged as potentially malicious"), nil
	}

	return domain.Passed(name), nil
}

// probe runs fn under a timeout. It returns as soon as the deadline passes,
// even when fn ignores its context.
func probe(ctx context.Context, timeout time.Duration, fn func(context.Context) (bool, error)) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		ok  bool
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		ok, err := fn(ctx)
		done <- outcome{ok: ok, err: err}
	}()

	select {
	case o := <-done:
		return o.ok, o.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func describeProbeError(what string, timeout time.Duration, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("%s timed out after %s", what, timeout)
	case errors.Is(err, context.Canceled):
		return what + " was cancelled"
	default:
		return what + " failed: " + err.Error()
	}
}
