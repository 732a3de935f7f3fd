package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferForm represents the raw transfer input as typed by the user
type TransferForm struct {
	AssetSymbol      string
	Amount           string
	RecipientAddress string
	FeeEstimate      string // optional, defaults to the asset's fee
}

// TransferRequest represents a parsed outbound transfer.
// Amount and RecipientAddress are frozen for the lifetime of a pipeline run.
type TransferRequest struct {
	AssetSymbol      string
	Amount           decimal.Decimal // native unit of the asset
	RecipientAddress string
	FeeEstimate      decimal.Decimal // informational only
}

// Parse converts the form into a TransferRequest using the asset's rules.
// Missing or malformed fields are reported together as FieldErrors.
func (f TransferForm) Parse(rules AssetRules) (TransferRequest, error) {
	var fieldErrs FieldErrors

	req := TransferRequest{
		AssetSymbol:      rules.Symbol,
		RecipientAddress: strings.TrimSpace(f.RecipientAddress),
		FeeEstimate:      rules.DefaultFee,
	}

	rawAmount := strings.TrimSpace(f.Amount)
	if rawAmount == "" {
		fieldErrs = append(fieldErrs, FieldError{Field: FieldAmount, Message: "amount is required"})
	} else {
		amount, err := decimal.NewFromString(rawAmount)
		if err != nil {
			fieldErrs = append(fieldErrs, FieldError{Field: FieldAmount, Message: "amount must be a number"})
		} else {
			req.Amount = amount
		}
	}

	if req.RecipientAddress == "" {
		fieldErrs = append(fieldErrs, FieldError{Field: FieldRecipient, Message: "recipient address is required"})
	}

	if rawFee := strings.TrimSpace(f.FeeEstimate); rawFee != "" {
		fee, err := decimal.NewFromString(rawFee)
		if err != nil {
			fieldErrs = append(fieldErrs, FieldError{Field: FieldFee, Message: "fee estimate must be a number"})
		} else {
			req.FeeEstimate = fee
		}
	}

	if len(fieldErrs) > 0 {
		return TransferRequest{}, NewError(KindInput, "parse transfer form", fieldErrs)
	}

	return req, nil
}

// Receipt is the result of a successful execution
type Receipt struct {
	Hash        string
	ExplorerURL string
}

// ReceiptRecord is a persisted receipt together with the request that produced it
type ReceiptRecord struct {
	RunID            uuid.UUID
	AssetSymbol      string
	Amount           decimal.Decimal
	RecipientAddress string
	FeeEstimate      decimal.Decimal
	Hash             string
	ExplorerURL      string
	CompletedAt      time.Time
}

// ReceiptFilter narrows a receipt listing. Zero values do not restrict.
type ReceiptFilter struct {
	AssetSymbol string
	Since       time.Time
	Limit       int
}
