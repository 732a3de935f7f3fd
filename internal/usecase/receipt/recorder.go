package receipt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/simaogato/securesend-backend/internal/domain"
)

// RecorderService persists the receipts of completed pipeline runs
type RecorderService struct {
	ReceiptRepo domain.ReceiptRepository

	logger *zap.Logger
}

// NewRecorderService creates a new RecorderService instance
func NewRecorderService(receiptRepo domain.ReceiptRepository, logger *zap.Logger) *RecorderService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RecorderService{
		ReceiptRepo: receiptRepo,
		logger:      logger,
	}
}

// Record stores the receipt of a DONE state. It matches pipeline.CompleteFunc.
func (s *RecorderService) Record(ctx context.Context, state domain.PipelineState) error {
	if state.Stage != domain.StageDone || state.Receipt == nil {
		return fmt.Errorf("record receipt for run %s: run is not done", state.ID)
	}

	record := &domain.ReceiptRecord{
		RunID:            state.ID,
		AssetSymbol:      state.Request.AssetSymbol,
		Amount:           state.Request.Amount,
		RecipientAddress: state.Request.RecipientAddress,
		FeeEstimate:      state.Request.FeeEstimate,
		Hash:             state.Receipt.Hash,
		ExplorerURL:      state.Receipt.ExplorerURL,
		CompletedAt:      state.UpdatedAt,
	}

	if err := s.ReceiptRepo.Save(ctx, record); err != nil {
		return fmt.Errorf("failed to save receipt: %w", err)
	}

	s.logger.Info("receipt recorded",
		zap.String("run_id", record.RunID.String()),
		zap.String("asset", record.AssetSymbol),
		zap.String("hash", record.Hash),
	)
	return nil
}

// Lookup returns a stored receipt by transaction hash
func (s *RecorderService) Lookup(ctx context.Context, hash string) (*domain.ReceiptRecord, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return nil, errors.New("transaction hash cannot be empty")
	}

	return s.ReceiptRepo.GetByHash(ctx, hash)
}
