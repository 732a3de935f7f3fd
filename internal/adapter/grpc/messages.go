package grpc

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/securesend-backend/internal/domain"
	"github.com/simaogato/securesend-backend/internal/usecase/dashboard"
)

// Message keys shared by the server and the client
const (
	keySessionID = "session_id"
	keyState     = "state"
	keyError     = "error"
	keyReceipt   = "receipt"
	keyAssets    = "assets"
	keyHash      = "hash"
	keyReceipts  = "receipts"
	keyLimit     = "limit"
	keyWindow    = "window"
	keySummary   = "summary"

	keyAsset     = "asset"
	keyAmount    = "amount"
	keyRecipient = "recipient"
	keyFee       = "fee"
)

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func boolField(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

func numberField(s *structpb.Struct, key string) float64 {
	return s.GetFields()[key].GetNumberValue()
}

func structField(s *structpb.Struct, key string) *structpb.Struct {
	return s.GetFields()[key].GetStructValue()
}

func listField(s *structpb.Struct, key string) []*structpb.Value {
	return s.GetFields()[key].GetListValue().GetValues()
}

func parseSessionID(req *structpb.Struct) (uuid.UUID, error) {
	raw := stringField(req, keySessionID)
	if raw == "" {
		return uuid.Nil, errors.New("session_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid session_id format: %w", err)
	}
	return id, nil
}

func formFromStruct(req *structpb.Struct) domain.TransferForm {
	return domain.TransferForm{
		AssetSymbol:      stringField(req, keyAsset),
		Amount:           stringField(req, keyAmount),
		RecipientAddress: stringField(req, keyRecipient),
		FeeEstimate:      stringField(req, keyFee),
	}
}

func formToMap(sessionID uuid.UUID, form domain.TransferForm) map[string]interface{} {
	return map[string]interface{}{
		keySessionID: sessionID.String(),
		keyAsset:     form.AssetSymbol,
		keyAmount:    form.Amount,
		keyRecipient: form.RecipientAddress,
		keyFee:       form.FeeEstimate,
	}
}

// stateToMap renders a state into structpb-compatible values.
// Amounts travel as decimal strings.
func stateToMap(state domain.PipelineState) map[string]interface{} {
	checks := make([]interface{}, 0, len(state.Checks))
	for _, c := range state.Checks {
		checks = append(checks, map[string]interface{}{
			"name":   string(c.Name),
			"status": string(c.Status),
			"detail": c.Detail,
		})
	}

	warnings := make([]interface{}, 0, len(state.Warnings))
	for _, w := range state.Warnings {
		warnings = append(warnings, w)
	}

	fieldErrs := make([]interface{}, 0, len(state.Errors))
	for _, e := range state.Errors {
		fieldErrs = append(fieldErrs, map[string]interface{}{
			"field":   e.Field,
			"message": e.Message,
		})
	}

	m := map[string]interface{}{
		"run_id":          state.ID.String(),
		"stage":           string(state.Stage),
		keyAsset:          state.Request.AssetSymbol,
		keyAmount:         state.Request.Amount.String(),
		keyRecipient:      state.Request.RecipientAddress,
		keyFee:            state.Request.FeeEstimate.String(),
		"checks":          checks,
		"warnings":        warnings,
		"ack_required":    state.AckRequired,
		"acknowledged":    state.Acknowledged,
		"errors":          fieldErrs,
		"execution_error": state.ExecutionError,
		"updated_at":      state.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if state.Receipt != nil {
		m[keyReceipt] = map[string]interface{}{
			keyHash:        state.Receipt.Hash,
			"explorer_url": state.Receipt.ExplorerURL,
		}
	}

	return m
}

// stateFromStruct is the inverse of stateToMap
func stateFromStruct(s *structpb.Struct) (domain.PipelineState, error) {
	if s == nil {
		return domain.PipelineState{}, errors.New("response has no state")
	}

	var state domain.PipelineState
	var err error

	if state.ID, err = uuid.Parse(stringField(s, "run_id")); err != nil {
		return domain.PipelineState{}, fmt.Errorf("invalid run_id: %w", err)
	}
	state.Stage = domain.Stage(stringField(s, "stage"))
	state.Request.AssetSymbol = stringField(s, keyAsset)
	state.Request.RecipientAddress = stringField(s, keyRecipient)
	if state.Request.Amount, err = decimal.NewFromString(stringField(s, keyAmount)); err != nil {
		return domain.PipelineState{}, fmt.Errorf("invalid amount: %w", err)
	}
	if state.Request.FeeEstimate, err = decimal.NewFromString(stringField(s, keyFee)); err != nil {
		return domain.PipelineState{}, fmt.Errorf("invalid fee: %w", err)
	}

	for _, v := range listField(s, "checks") {
		c := v.GetStructValue()
		state.Checks = append(state.Checks, domain.SecurityCheckResult{
			Name:   domain.CheckName(stringField(c, "name")),
			Status: domain.CheckStatus(stringField(c, "status")),
			Detail: stringField(c, "detail"),
		})
	}
	for _, v := range listField(s, "warnings") {
		state.Warnings = append(state.Warnings, v.GetStringValue())
	}
	for _, v := range listField(s, "errors") {
		e := v.GetStructValue()
		state.Errors = append(state.Errors, domain.FieldError{
			Field:   stringField(e, "field"),
			Message: stringField(e, "message"),
		})
	}

	state.AckRequired = boolField(s, "ack_required")
	state.Acknowledged = boolField(s, "acknowledged")
	state.ExecutionError = stringField(s, "execution_error")

	if r := structField(s, keyReceipt); r != nil {
		state.Receipt = &domain.Receipt{
			Hash:        stringField(r, keyHash),
			ExplorerURL: stringField(r, "explorer_url"),
		}
	}

	if raw := stringField(s, "updated_at"); raw != "" {
		if state.UpdatedAt, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return domain.PipelineState{}, fmt.Errorf("invalid updated_at: %w", err)
		}
	}

	return state, nil
}

// errorToMap renders a classified error so the client can rebuild it
func errorToMap(err error) map[string]interface{} {
	var pipelineErr *domain.Error
	if errors.As(err, &pipelineErr) {
		return map[string]interface{}{
			"kind":    string(pipelineErr.Kind),
			"op":      pipelineErr.Op,
			"message": pipelineErr.Err.Error(),
		}
	}
	return map[string]interface{}{
		"message": err.Error(),
	}
}

func errorFromStruct(s *structpb.Struct) error {
	if s == nil {
		return nil
	}
	cause := errors.New(stringField(s, "message"))
	kind := domain.ErrorKind(stringField(s, "kind"))
	if kind == "" {
		return cause
	}
	return &domain.Error{Kind: kind, Op: stringField(s, "op"), Err: cause}
}

func receiptToMap(r *domain.ReceiptRecord) map[string]interface{} {
	return map[string]interface{}{
		"run_id":       r.RunID.String(),
		keyAsset:       r.AssetSymbol,
		keyAmount:      r.Amount.String(),
		keyRecipient:   r.RecipientAddress,
		keyFee:         r.FeeEstimate.String(),
		keyHash:        r.Hash,
		"explorer_url": r.ExplorerURL,
		"completed_at": r.CompletedAt.UTC().Format(time.RFC3339Nano),
	}
}

func receiptFromStruct(s *structpb.Struct) (*domain.ReceiptRecord, error) {
	if s == nil {
		return nil, errors.New("response has no receipt")
	}

	record := &domain.ReceiptRecord{
		AssetSymbol:      stringField(s, keyAsset),
		RecipientAddress: stringField(s, keyRecipient),
		Hash:             stringField(s, keyHash),
		ExplorerURL:      stringField(s, "explorer_url"),
	}

	var err error
	if record.RunID, err = uuid.Parse(stringField(s, "run_id")); err != nil {
		return nil, fmt.Errorf("invalid run_id: %w", err)
	}
	if record.Amount, err = decimal.NewFromString(stringField(s, keyAmount)); err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}
	if record.FeeEstimate, err = decimal.NewFromString(stringField(s, keyFee)); err != nil {
		return nil, fmt.Errorf("invalid fee: %w", err)
	}
	if record.CompletedAt, err = time.Parse(time.RFC3339Nano, stringField(s, "completed_at")); err != nil {
		return nil, fmt.Errorf("invalid completed_at: %w", err)
	}

	return record, nil
}

func assetToMap(r domain.AssetRules) map[string]interface{} {
	return map[string]interface{}{
		"symbol":          r.Symbol,
		"pattern":         r.AddressPattern.String(),
		"min_amount":      r.MinAmount.String(),
		"max_amount":      r.MaxAmount.String(),
		"default_fee":     r.DefaultFee.String(),
		"explorer_tx_url": r.ExplorerTxURL,
	}
}

func assetFromStruct(s *structpb.Struct) (domain.AssetRules, error) {
	minAmount, err := decimal.NewFromString(stringField(s, "min_amount"))
	if err != nil {
		return domain.AssetRules{}, fmt.Errorf("invalid min_amount: %w", err)
	}
	maxAmount, err := decimal.NewFromString(stringField(s, "max_amount"))
	if err != nil {
		return domain.AssetRules{}, fmt.Errorf("invalid max_amount: %w", err)
	}
	fee, err := decimal.NewFromString(stringField(s, "default_fee"))
	if err != nil {
		return domain.AssetRules{}, fmt.Errorf("invalid default_fee: %w", err)
	}

	return domain.NewAssetRules(
		stringField(s, "symbol"),
		stringField(s, "pattern"),
		minAmount, maxAmount, fee,
		stringField(s, "explorer_tx_url"),
	)
}

// parseWindow reads a Go duration string such as "24h"; empty selects the default window
func parseWindow(req *structpb.Struct) (time.Duration, error) {
	raw := stringField(req, keyWindow)
	if raw == "" {
		return 0, nil
	}
	window, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid window: %w", err)
	}
	if window < 0 {
		return 0, errors.New("invalid window: must not be negative")
	}
	return window, nil
}

func summaryToMap(summary *dashboard.SendSummary) map[string]interface{} {
	assets := make([]interface{}, 0, len(summary.Assets))
	for _, a := range summary.Assets {
		assets = append(assets, map[string]interface{}{
			"symbol":         a.AssetSymbol,
			"transfer_count": a.TransferCount,
			"volume":         a.Volume.String(),
			"fees":           a.Fees.String(),
		})
	}

	return map[string]interface{}{
		"since":          summary.Since.UTC().Format(time.RFC3339Nano),
		"transfer_count": summary.TransferCount,
		keyAssets:        assets,
	}
}

func summaryFromStruct(s *structpb.Struct) (*dashboard.SendSummary, error) {
	if s == nil {
		return nil, errors.New("response has no summary")
	}

	summary := &dashboard.SendSummary{
		TransferCount: int(numberField(s, "transfer_count")),
	}

	var err error
	if summary.Since, err = time.Parse(time.RFC3339Nano, stringField(s, "since")); err != nil {
		return nil, fmt.Errorf("invalid since: %w", err)
	}

	for _, v := range listField(s, keyAssets) {
		a := v.GetStructValue()
		volume := dashboard.AssetVolume{
			AssetSymbol:   stringField(a, "symbol"),
			TransferCount: int(numberField(a, "transfer_count")),
		}
		if volume.Volume, err = decimal.NewFromString(stringField(a, "volume")); err != nil {
			return nil, fmt.Errorf("invalid volume: %w", err)
		}
		if volume.Fees, err = decimal.NewFromString(stringField(a, "fees")); err != nil {
			return nil, fmt.Errorf("invalid fees: %w", err)
		}
		summary.Assets = append(summary.Assets, volume)
	}

	return summary, nil
}
