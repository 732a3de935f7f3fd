package domain

import (
	"context"
)

// Executor performs the actual transfer for a validated request.
// It is opaque to the pipeline and is never retried automatically.
type Executor interface {
	// Execute sends the transfer and returns its receipt
	Execute(ctx context.Context, req TransferRequest, rules AssetRules) (Receipt, error)
}

// NetworkChecker probes connectivity to the execution backend of an asset
type NetworkChecker interface {
	// CheckNetwork returns true when the asset's network is reachable
	CheckNetwork(ctx context.Context, assetSymbol string) (bool, error)
}

// ReputationChecker screens recipient addresses against known malicious addresses
type ReputationChecker interface {
	// CheckReputation returns true when the address is not known to be malicious
	CheckReputation(ctx context.Context, assetSymbol, address string) (bool, error)
}

// ReceiptRepository defines the interface for receipt persistence operations
type ReceiptRepository interface {
	// Save stores the receipt of a completed run
	Save(ctx context.Context, record *ReceiptRecord) error

	// GetByHash retrieves a receipt by transaction hash
	GetByHash(ctx context.Context, hash string) (*ReceiptRecord, error)

	// List returns the receipts matching filter, newest first
	List(ctx context.Context, filter ReceiptFilter) ([]*ReceiptRecord, error)
}

// AddressFlagger marks addresses as known malicious
type AddressFlagger interface {
	// Flag adds address to the blocklist of assetSymbol, or of every asset when assetSymbol is empty
	Flag(ctx context.Context, assetSymbol, address string) error
}
