package dashboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/simaogato/securesend-backend/internal/domain"
)

const (
	DefaultWindow       = 24 * time.Hour
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 500
)

// AssetVolume is the outbound volume of one asset
type AssetVolume struct {
	AssetSymbol   string
	TransferCount int
	Volume        decimal.Decimal
	Fees          decimal.Decimal
}

// SendSummary represents the completed transfers within a time window
type SendSummary struct {
	Since         time.Time
	TransferCount int
	Assets        []AssetVolume // sorted by symbol
}

// DashboardService handles history and volume reporting over stored receipts
type DashboardService struct {
	ReceiptRepo domain.ReceiptRepository

	now func() time.Time
}

// NewDashboardService creates a new DashboardService instance
func NewDashboardService(receiptRepo domain.ReceiptRepository) *DashboardService {
	return &DashboardService{
		ReceiptRepo: receiptRepo,
		now:         time.Now,
	}
}

// RecentTransfers lists completed transfers, newest first.
// A non-positive limit selects DefaultHistoryLimit; limits are capped at MaxHistoryLimit.
func (s *DashboardService) RecentTransfers(ctx context.Context, assetSymbol string, limit int) ([]*domain.ReceiptRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	records, err := s.ReceiptRepo.List(ctx, domain.ReceiptFilter{
		AssetSymbol: assetSymbol,
		Limit:       limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	return records, nil
}

// GetSummary calculates outbound volume per asset
// Logic:
//   - Window: receipts completed within the last window (DefaultWindow when non-positive)
//   - Volume: sum of amounts per asset, in the asset's native unit
//   - Fees: sum of fee estimates per asset
//
// Amounts of different assets are never added together.
func (s *DashboardService) GetSummary(ctx context.Context, window time.Duration) (*SendSummary, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	since := s.now().Add(-window)

	// 1. Get all receipts in the window
	records, err := s.ReceiptRepo.List(ctx, domain.ReceiptFilter{Since: since})
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}

	// 2. Aggregate per asset
	byAsset := make(map[string]*AssetVolume)
	for _, record := range records {
		v, ok := byAsset[record.AssetSymbol]
		if !ok {
			v = &AssetVolume{AssetSymbol: record.AssetSymbol, Volume: decimal.Zero, Fees: decimal.Zero}
			byAsset[record.AssetSymbol] = v
		}
		v.TransferCount++
		v.Volume = v.Volume.Add(record.Amount)
		v.Fees = v.Fees.Add(record.FeeEstimate)
	}

	// 3. Sort for a stable report
	summary := &SendSummary{
		Since:         since,
		TransferCount: len(records),
		Assets:        make([]AssetVolume, 0, len(byAsset)),
	}
	for _, v := range byAsset {
		summary.Assets = append(summary.Assets, *v)
	}
	sort.Slice(summary.Assets, func(i, j int) bool {
		return summary.Assets[i].AssetSymbol < summary.Assets[j].AssetSymbol
	})

	return summary, nil
}
