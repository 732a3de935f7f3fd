package seeder

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/simaogato/securesend-backend/internal/domain"
)

// FlaggedAddress is a blocklist entry to be seeded. An empty AssetSymbol flags the address on every asset.
type FlaggedAddress struct {
	AssetSymbol string
	Address     string
}

// BlocklistSeeder handles seeding of known malicious addresses
type BlocklistSeeder struct {
	flagger  domain.AddressFlagger
	registry *domain.Registry
	logger   *zap.Logger
}

// NewBlocklistSeeder creates a new BlocklistSeeder instance
func NewBlocklistSeeder(flagger domain.AddressFlagger, registry *domain.Registry, logger *zap.Logger) *BlocklistSeeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlocklistSeeder{
		flagger:  flagger,
		registry: registry,
		logger:   logger,
	}
}

// Entries flattens global and per-asset address lists into seed entries
func Entries(global []string, perAsset map[string][]string) []FlaggedAddress {
	entries := make([]FlaggedAddress, 0, len(global))
	for _, address := range global {
		entries = append(entries, FlaggedAddress{Address: address})
	}
	for symbol, addresses := range perAsset {
		for _, address := range addresses {
			entries = append(entries, FlaggedAddress{AssetSymbol: symbol, Address: address})
		}
	}
	return entries
}

// Seed ensures every entry is on the blocklist.
// Logic:
//  1. Skip blank addresses
//  2. Per-asset entries must name a registered asset
//  3. Flag each address; flagging twice is a no-op
func (s *BlocklistSeeder) Seed(ctx context.Context, entries []FlaggedAddress) error {
	seeded := 0
	for _, entry := range entries {
		address := strings.TrimSpace(entry.Address)
		if address == "" {
			continue
		}

		symbol := domain.NormalizeSymbol(entry.AssetSymbol)
		if symbol != "" {
			if _, err := s.registry.GetRules(symbol); err != nil {
				return fmt.Errorf("flagged address %s: %w", address, err)
			}
		}

		if err := s.flagger.Flag(ctx, symbol, address); err != nil {
			return fmt.Errorf("failed to flag %s: %w", address, err)
		}
		seeded++
	}

	s.logger.Info("blocklist seeded", zap.Int("addresses", seeded))
	return nil
}
