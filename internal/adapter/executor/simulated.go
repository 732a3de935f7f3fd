package executor

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/simaogato/securesend-backend/internal/domain"
)

// Simulated implements domain.Executor without touching any chain.
// It waits for Latency and returns a random 32-byte transaction hash.
type Simulated struct {
	Latency     time.Duration
	FailMessage string // when set, every execution fails with this message
}

// NewSimulated creates a new Simulated executor
func NewSimulated(latency time.Duration, failMessage string) *Simulated {
	return &Simulated{
		Latency:     latency,
		FailMessage: failMessage,
	}
}

// Execute simulates sending the transfer
func (s *Simulated) Execute(ctx context.Context, req domain.TransferRequest, rules domain.AssetRules) (domain.Receipt, error) {
	if s.Latency > 0 {
		timer := time.NewTimer(s.Latency)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return domain.Receipt{}, ctx.Err()
		}
	}

	if s.FailMessage != "" {
		return domain.Receipt{}, errors.New(s.FailMessage)
	}

	hash := SimulatedHash(req)
	return domain.Receipt{
		Hash:        hash,
		ExplorerURL: rules.ExplorerURL(hash),
	}, nil
}

// SimulatedHash derives a 0x-prefixed 64 hex digit hash from the request and a random nonce
func SimulatedHash(req domain.TransferRequest) string {
	nonce := uuid.New()
	return crypto.Keccak256Hash(
		nonce[:],
		[]byte(req.AssetSymbol),
		[]byte(req.RecipientAddress),
		[]byte(req.Amount.String()),
	).Hex()
}
