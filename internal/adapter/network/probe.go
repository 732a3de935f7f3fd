package network

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/simaogato/securesend-backend/internal/domain"
)

// Static implements domain.NetworkChecker with a fixed answer
type Static struct {
	Reachable bool
}

// CheckNetwork returns the configured answer
func (s Static) CheckNetwork(ctx context.Context, assetSymbol string) (bool, error) {
	return s.Reachable, nil
}

// Endpoint is the JSON-RPC node of an EVM asset
type Endpoint struct {
	URL     string
	ChainID int64 // 0 skips the chain ID comparison
}

// EVMProbe implements domain.NetworkChecker by asking the asset's JSON-RPC node for its chain ID.
// Assets without an endpoint are delegated to Fallback.
type EVMProbe struct {
	Endpoints map[string]Endpoint
	Fallback  domain.NetworkChecker

	logger *zap.Logger
}

// NewEVMProbe creates a new EVMProbe instance
func NewEVMProbe(endpoints map[string]Endpoint, fallback domain.NetworkChecker, logger *zap.Logger) *EVMProbe {
	if fallback == nil {
		fallback = Static{Reachable: true}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	normalized := make(map[string]Endpoint, len(endpoints))
	for symbol, ep := range endpoints {
		normalized[domain.NormalizeSymbol(symbol)] = ep
	}

	return &EVMProbe{
		Endpoints: normalized,
		Fallback:  fallback,
		logger:    logger,
	}
}

// CheckNetwork reports whether the asset's node answers with the expected chain ID.
// Logic:
//  1. No endpoint configured: ask Fallback
//  2. Dial the node and request eth_chainId
//  3. A transport failure is returned as an error, a wrong chain ID as unreachable
func (p *EVMProbe) CheckNetwork(ctx context.Context, assetSymbol string) (bool, error) {
	symbol := domain.NormalizeSymbol(assetSymbol)

	ep, ok := p.Endpoints[symbol]
	if !ok {
		return p.Fallback.CheckNetwork(ctx, symbol)
	}

	client, err := ethclient.DialContext(ctx, ep.URL)
	if err != nil {
		return false, fmt.Errorf("failed to dial %s node: %w", symbol, err)
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get %s chain ID: %w", symbol, err)
	}

	if ep.ChainID != 0 && chainID.Int64() != ep.ChainID {
		p.logger.Warn("node reported wrong chain ID",
			zap.String("asset", symbol),
			zap.Int64("expected", ep.ChainID),
			zap.String("got", chainID.String()),
		)
		return false, nil
	}

	return true, nil
}
