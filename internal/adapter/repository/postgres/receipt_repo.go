package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/simaogato/securesend-backend/internal/domain"
)

// uniqueViolation is the Postgres error code for a duplicate key
const uniqueViolation = "23505"

// receiptRepository implements domain.ReceiptRepository
type receiptRepository struct {
	db *DB
}

// NewReceiptRepository creates a new receipt repository
func NewReceiptRepository(db *DB) domain.ReceiptRepository {
	return &receiptRepository{db: db}
}

// Save stores the receipt of a completed run
func (r *receiptRepository) Save(ctx context.Context, record *domain.ReceiptRecord) error {
	if record == nil {
		return errors.New("receipt record cannot be nil")
	}

	query := `
		INSERT INTO receipts (hash, run_id, asset_symbol, amount, recipient_address, fee_estimate, explorer_url, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.Hash,
		record.RunID,
		record.AssetSymbol,
		record.Amount.String(),
		record.RecipientAddress,
		record.FeeEstimate.String(),
		record.ExplorerURL,
		record.CompletedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("receipt with hash %s already exists", record.Hash)
		}
		return fmt.Errorf("failed to create receipt: %w", err)
	}

	return nil
}

// GetByHash retrieves a receipt by transaction hash
func (r *receiptRepository) GetByHash(ctx context.Context, hash string) (*domain.ReceiptRecord, error) {
	query := `
		SELECT hash, run_id, asset_symbol, amount, recipient_address, fee_estimate, explorer_url, completed_at
		FROM receipts
		WHERE hash = $1
	`

	var record domain.ReceiptRecord
	var amountStr, feeStr string

	err := r.db.QueryRowContext(ctx, query, hash).Scan(
		&record.Hash,
		&record.RunID,
		&record.AssetSymbol,
		&amountStr,
		&record.RecipientAddress,
		&feeStr,
		&record.ExplorerURL,
		&record.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("receipt with hash %s: %w", hash, domain.ErrReceiptNotFound)
		}
		return nil, fmt.Errorf("failed to get receipt by hash: %w", err)
	}

	// Parse amount (NUMERIC)
	record.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}

	// Parse fee_estimate (NUMERIC)
	record.FeeEstimate, err = decimal.NewFromString(feeStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fee_estimate: %w", err)
	}

	return &record, nil
}

// List returns the receipts matching filter, newest first
func (r *receiptRepository) List(ctx context.Context, filter domain.ReceiptFilter) ([]*domain.ReceiptRecord, error) {
	query := `
		SELECT hash, run_id, asset_symbol, amount, recipient_address, fee_estimate, explorer_url, completed_at
		FROM receipts
		WHERE ($1::text = '' OR asset_symbol = $1)
		  AND ($2::timestamptz IS NULL OR completed_at >= $2)
		ORDER BY completed_at DESC, hash ASC
	`
	args := []interface{}{domain.NormalizeSymbol(filter.AssetSymbol), nullTime(filter.Since)}
	if filter.Limit > 0 {
		query += " LIMIT $3"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var records []*domain.ReceiptRecord
	for rows.Next() {
		var record domain.ReceiptRecord
		var amountStr, feeStr string

		err := rows.Scan(
			&record.Hash,
			&record.RunID,
			&record.AssetSymbol,
			&amountStr,
			&record.RecipientAddress,
			&feeStr,
			&record.ExplorerURL,
			&record.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}

		if record.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("failed to parse amount: %w", err)
		}
		if record.FeeEstimate, err = decimal.NewFromString(feeStr); err != nil {
			return nil, fmt.Errorf("failed to parse fee_estimate: %w", err)
		}

		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating receipts: %w", err)
	}

	return records, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
