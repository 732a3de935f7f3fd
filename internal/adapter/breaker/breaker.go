package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/simaogato/securesend-backend/internal/domain"
)

// Config controls when a provider breaker opens
type Config struct {
	ConsecutiveFailures uint32        // failures in a row that open the breaker
	Timeout             time.Duration // time spent open before a half-open probe
	MaxRequests         uint32        // requests allowed while half-open
}

// DefaultConfig returns the breaker settings used when none are configured
func DefaultConfig() Config {
	return Config{
		ConsecutiveFailures: 5,
		Timeout:             30 * time.Second,
		MaxRequests:         1,
	}
}

// set keeps one breaker per name
type set struct {
	config Config
	prefix string
	logger *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func newSet(prefix string, config Config, logger *zap.Logger) *set {
	if config.ConsecutiveFailures == 0 {
		config.ConsecutiveFailures = DefaultConfig().ConsecutiveFailures
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &set{
		config:   config,
		prefix:   prefix,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (s *set) get(name string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cb, ok := s.breakers[name]; ok {
		return cb
	}

	threshold := s.config.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.prefix + "-" + name,
		MaxRequests: s.config.MaxRequests,
		Timeout:     s.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			s.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	s.breakers[name] = cb

	return cb
}

// isSuccessful reports whether a call outcome leaves the breaker healthy.
// A cancelled caller says nothing about the provider.
func isSuccessful(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

// state returns the state of a breaker, closed if it was never used
func (s *set) state(name string) gobreaker.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cb, ok := s.breakers[name]; ok {
		return cb.State()
	}
	return gobreaker.StateClosed
}

func (s *set) execute(name string, fn func() (bool, error)) (bool, error) {
	result, err := s.get(name).Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return false, fmt.Errorf("%s %s is unavailable (circuit breaker open): %w", s.prefix, name, err)
		}
		return false, err
	}

	return result.(bool), nil
}

// NetworkChecker guards a domain.NetworkChecker with one breaker per asset.
// Only provider errors count as failures; an unreachable answer does not.
type NetworkChecker struct {
	next     domain.NetworkChecker
	breakers *set
}

// NewNetworkChecker wraps next
func NewNetworkChecker(next domain.NetworkChecker, config Config, logger *zap.Logger) *NetworkChecker {
	return &NetworkChecker{
		next:     next,
		breakers: newSet("network", config, logger),
	}
}

// CheckNetwork calls the wrapped checker unless the asset's breaker is open
func (c *NetworkChecker) CheckNetwork(ctx context.Context, assetSymbol string) (bool, error) {
	symbol := domain.NormalizeSymbol(assetSymbol)
	return c.breakers.execute(symbol, func() (bool, error) {
		return c.next.CheckNetwork(ctx, symbol)
	})
}

// State returns the breaker state of an asset
func (c *NetworkChecker) State(assetSymbol string) gobreaker.State {
	return c.breakers.state(domain.NormalizeSymbol(assetSymbol))
}

// ReputationChecker guards a domain.ReputationChecker with a single breaker
type ReputationChecker struct {
	next     domain.ReputationChecker
	breakers *set
}

// NewReputationChecker wraps next
func NewReputationChecker(next domain.ReputationChecker, config Config, logger *zap.Logger) *ReputationChecker {
	return &ReputationChecker{
		next:     next,
		breakers: newSet("reputation", config, logger),
	}
}

// CheckReputation calls the wrapped checker unless the breaker is open
func (c *ReputationChecker) CheckReputation(ctx context.Context, assetSymbol, address string) (bool, error) {
	return c.breakers.execute("provider", func() (bool, error) {
		return c.next.CheckReputation(ctx, assetSymbol, address)
	})
}

// State returns the breaker state
func (c *ReputationChecker) State() gobreaker.State {
	return c.breakers.state("provider")
}
