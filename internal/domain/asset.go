package domain

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// ExplorerPlaceholder is used for assets without a block explorer
const ExplorerPlaceholder = "#"

var (
	// HexAddressPattern matches 0x-prefixed 20-byte hex addresses (EVM chains)
	HexAddressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

	// Base58AddressPattern matches base58 public keys of 32 to 44 characters (Solana)
	Base58AddressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

	// FallbackAddressPattern accepts anything longer than 30 characters.
	// Used for assets registered without an explicit pattern.
	FallbackAddressPattern = regexp.MustCompile(`^.{31,}$`)
)

var (
	defaultMinAmount   = decimal.RequireFromString("0.01")
	defaultMaxAmount   = decimal.NewFromInt(10)
	defaultFeeEstimate = decimal.RequireFromString("0.0025")
)

// AssetRules represents the validation rule set for a single asset.
//
// Address matching is a format check only. A matching address is not proven
// to be valid on-chain: no checksum (EIP-55, base58check) or per-network
// length verification is performed.
type AssetRules struct {
	Symbol         string
	AddressPattern *regexp.Regexp
	MinAmount      decimal.Decimal
	MaxAmount      decimal.Decimal
	DefaultFee     decimal.Decimal
	ExplorerTxURL  string // fmt pattern with a single %s for the hash, or ExplorerPlaceholder
}

// NewAssetRules builds a rule set from raw configuration values.
// An empty pattern selects FallbackAddressPattern and an empty explorer selects ExplorerPlaceholder.
func NewAssetRules(symbol, pattern string, minAmount, maxAmount, defaultFee decimal.Decimal, explorerTxURL string) (AssetRules, error) {
	rules := AssetRules{
		Symbol:        NormalizeSymbol(symbol),
		MinAmount:     minAmount,
		MaxAmount:     maxAmount,
		DefaultFee:    defaultFee,
		ExplorerTxURL: explorerTxURL,
	}

	if pattern == "" {
		rules.AddressPattern = FallbackAddressPattern
	} else {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return AssetRules{}, fmt.Errorf("invalid address pattern for %s: %w", rules.Symbol, err)
		}
		rules.AddressPattern = re
	}

	if rules.ExplorerTxURL == "" {
		rules.ExplorerTxURL = ExplorerPlaceholder
	}

	if err := rules.Validate(); err != nil {
		return AssetRules{}, err
	}

	return rules, nil
}

// Validate ensures the rule set is usable
func (r AssetRules) Validate() error {
	if r.Symbol == "" {
		return errors.New("asset symbol cannot be empty")
	}

	if r.AddressPattern == nil {
		return errors.New("asset " + r.Symbol + " must have an address pattern")
	}

	if r.MinAmount.IsNegative() {
		return errors.New("asset " + r.Symbol + " min amount must not be negative")
	}

	if r.MinAmount.GreaterThan(r.MaxAmount) {
		return errors.New("asset " + r.Symbol + " min amount must not exceed max amount")
	}

	if r.DefaultFee.IsNegative() {
		return errors.New("asset " + r.Symbol + " default fee must not be negative")
	}

	if r.ExplorerTxURL != ExplorerPlaceholder && strings.Count(r.ExplorerTxURL, "%s") != 1 {
		return errors.New("asset " + r.Symbol + " explorer URL must contain exactly one %s")
	}

	return nil
}

// MatchAddress reports whether address has the asset's address format
func (r AssetRules) MatchAddress(address string) bool {
	return r.AddressPattern.MatchString(address)
}

// InBounds reports whether MinAmount <= amount <= MaxAmount
func (r AssetRules) InBounds(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(r.MinAmount) && amount.LessThanOrEqual(r.MaxAmount)
}

// ExplorerURL returns the block explorer link for a transaction hash
func (r AssetRules) ExplorerURL(hash string) string {
	if r.ExplorerTxURL == ExplorerPlaceholder {
		return ExplorerPlaceholder
	}
	return fmt.Sprintf(r.ExplorerTxURL, hash)
}

// NormalizeSymbol trims and upper-cases an asset symbol
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Registry provides the rule sets of every supported asset, keyed by symbol.
// Lookups are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]AssetRules
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		rules: make(map[string]AssetRules),
	}
}

// DefaultRegistry creates a registry holding the built-in ETH, BNB and SOL rule sets
func DefaultRegistry() *Registry {
	registry := NewRegistry()

	builtins := []AssetRules{
		{
			Symbol:         "ETH",
			AddressPattern: HexAddressPattern,
			ExplorerTxURL:  "https://etherscan.io/tx/%s",
		},
		{
			Symbol:         "BNB",
			AddressPattern: HexAddressPattern,
			ExplorerTxURL:  "https://bscscan.com/tx/%s",
		},
		{
			Symbol:         "SOL",
			AddressPattern: Base58AddressPattern,
			ExplorerTxURL:  "https://solscan.io/tx/%s",
		},
	}

	for _, rules := range builtins {
		rules.MinAmount = defaultMinAmount
		rules.MaxAmount = defaultMaxAmount
		rules.DefaultFee = defaultFeeEstimate
		// built-ins are valid by construction
		if err := registry.Register(rules); err != nil {
			panic(err)
		}
	}

	return registry
}

// DefaultBounds returns the amount bounds and fee used by the built-in assets
func DefaultBounds() (minAmount, maxAmount, fee decimal.Decimal) {
	return defaultMinAmount, defaultMaxAmount, defaultFeeEstimate
}

// Register adds a rule set. Duplicate symbols are rejected.
func (r *Registry) Register(rules AssetRules) error {
	rules.Symbol = NormalizeSymbol(rules.Symbol)
	if err := rules.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rules[rules.Symbol]; exists {
		return errors.New("asset " + rules.Symbol + " is already registered")
	}
	r.rules[rules.Symbol] = rules

	return nil
}

// GetRules returns the rule set for an asset symbol.
// Unknown symbols fail with an UNSUPPORTED_ASSET error.
func (r *Registry) GetRules(symbol string) (AssetRules, error) {
	normalized := NormalizeSymbol(symbol)

	r.mu.RLock()
	rules, ok := r.rules[normalized]
	r.mu.RUnlock()

	if !ok {
		return AssetRules{}, NewUnsupportedAssetError(normalized)
	}
	return rules, nil
}

// Symbols lists the registered asset symbols in lexical order
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	symbols := make([]string, 0, len(r.rules))
	for symbol := range r.rules {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	return symbols
}
