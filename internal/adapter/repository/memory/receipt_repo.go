package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/simaogato/securesend-backend/internal/domain"
)

// ReceiptRepository implements domain.ReceiptRepository in process memory.
// Used when no database is configured.
type ReceiptRepository struct {
	mu     sync.RWMutex
	byHash map[string]domain.ReceiptRecord
}

// NewReceiptRepository creates a new in-memory ReceiptRepository
func NewReceiptRepository() *ReceiptRepository {
	return &ReceiptRepository{
		byHash: make(map[string]domain.ReceiptRecord),
	}
}

// Save stores a receipt. Hashes are unique.
func (r *ReceiptRepository) Save(ctx context.Context, record *domain.ReceiptRecord) error {
	if record == nil {
		return errors.New("receipt record cannot be nil")
	}
	if record.Hash == "" {
		return errors.New("receipt hash cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byHash[record.Hash]; exists {
		return fmt.Errorf("receipt with hash %s already exists", record.Hash)
	}
	r.byHash[record.Hash] = *record

	return nil
}

// GetByHash retrieves a receipt by transaction hash
func (r *ReceiptRepository) GetByHash(ctx context.Context, hash string) (*domain.ReceiptRecord, error) {
	r.mu.RLock()
	record, ok := r.byHash[hash]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("receipt with hash %s: %w", hash, domain.ErrReceiptNotFound)
	}
	return &record, nil
}

// List returns the receipts matching filter, newest first
func (r *ReceiptRepository) List(ctx context.Context, filter domain.ReceiptFilter) ([]*domain.ReceiptRecord, error) {
	symbol := domain.NormalizeSymbol(filter.AssetSymbol)

	r.mu.RLock()
	records := make([]*domain.ReceiptRecord, 0, len(r.byHash))
	for _, record := range r.byHash {
		if symbol != "" && record.AssetSymbol != symbol {
			continue
		}
		if !filter.Since.IsZero() && record.CompletedAt.Before(filter.Since) {
			continue
		}
		records = append(records, &record)
	}
	r.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].CompletedAt.Equal(records[j].CompletedAt) {
			return records[i].Hash < records[j].Hash
		}
		return records[i].CompletedAt.After(records[j].CompletedAt)
	})

	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}
	return records, nil
}
