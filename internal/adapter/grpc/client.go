package grpc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/securesend-backend/internal/domain"
	"github.com/simaogato/securesend-backend/internal/usecase/dashboard"
)

// Client calls the TransferPipeline service.
// Rejections that the server answers with a state (input errors, failed checks,
// execution failures) are returned as *domain.Error next to that state.
type Client struct {
	cc    grpc.ClientConnInterface
	token string
}

// NewClient creates a client sending token as authorization metadata
func NewClient(cc grpc.ClientConnInterface, token string) *Client {
	return &Client{cc: cc, token: token}
}

func (c *Client) invoke(ctx context.Context, method string, fields map[string]interface{}) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", c.token)
	}

	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) invokeState(ctx context.Context, method string, fields map[string]interface{}) (domain.PipelineState, error) {
	out, err := c.invoke(ctx, method, fields)
	if err != nil {
		return domain.PipelineState{}, err
	}

	state, err := stateFromStruct(structField(out, keyState))
	if err != nil {
		return domain.PipelineState{}, fmt.Errorf("failed to decode %s response: %w", method, err)
	}

	return state, errorFromStruct(structField(out, keyError))
}

func sessionRequest(id uuid.UUID) map[string]interface{} {
	return map[string]interface{}{keySessionID: id.String()}
}

// OpenSession starts a new transfer form on the server
func (c *Client) OpenSession(ctx context.Context) (uuid.UUID, domain.PipelineState, error) {
	out, err := c.invoke(ctx, MethodOpenSession, map[string]interface{}{})
	if err != nil {
		return uuid.Nil, domain.PipelineState{}, err
	}

	id, err := uuid.Parse(stringField(out, keySessionID))
	if err != nil {
		return uuid.Nil, domain.PipelineState{}, fmt.Errorf("invalid session_id in response: %w", err)
	}

	state, err := stateFromStruct(structField(out, keyState))
	if err != nil {
		return uuid.Nil, domain.PipelineState{}, err
	}

	return id, state, nil
}

// Submit sends the form and waits for the security checks
func (c *Client) Submit(ctx context.Context, id uuid.UUID, form domain.TransferForm) (domain.PipelineState, error) {
	return c.invokeState(ctx, MethodSubmit, formToMap(id, form))
}

// AcknowledgeWarnings accepts the soft warnings of the current run
func (c *Client) AcknowledgeWarnings(ctx context.Context, id uuid.UUID) (domain.PipelineState, error) {
	return c.invokeState(ctx, MethodAcknowledgeWarnings, sessionRequest(id))
}

// Confirm executes the transfer and waits for the result
func (c *Client) Confirm(ctx context.Context, id uuid.UUID) (domain.PipelineState, error) {
	return c.invokeState(ctx, MethodConfirm, sessionRequest(id))
}

// Cancel abandons the current run
func (c *Client) Cancel(ctx context.Context, id uuid.UUID) (domain.PipelineState, error) {
	return c.invokeState(ctx, MethodCancel, sessionRequest(id))
}

// Reset returns the session to a fresh form
func (c *Client) Reset(ctx context.Context, id uuid.UUID) (domain.PipelineState, error) {
	return c.invokeState(ctx, MethodReset, sessionRequest(id))
}

// GetState returns the session's current state
func (c *Client) GetState(ctx context.Context, id uuid.UUID) (domain.PipelineState, error) {
	return c.invokeState(ctx, MethodGetState, sessionRequest(id))
}

// CloseSession discards the session
func (c *Client) CloseSession(ctx context.Context, id uuid.UUID) error {
	_, err := c.invoke(ctx, MethodCloseSession, sessionRequest(id))
	return err
}

// GetReceipt looks up a completed transfer by hash
func (c *Client) GetReceipt(ctx context.Context, hash string) (*domain.ReceiptRecord, error) {
	out, err := c.invoke(ctx, MethodGetReceipt, map[string]interface{}{keyHash: hash})
	if err != nil {
		return nil, err
	}
	return receiptFromStruct(structField(out, keyReceipt))
}

// ListAssets returns the rule sets of the supported assets
func (c *Client) ListAssets(ctx context.Context) ([]domain.AssetRules, error) {
	out, err := c.invoke(ctx, MethodListAssets, map[string]interface{}{})
	if err != nil {
		return nil, err
	}

	values := listField(out, keyAssets)
	assets := make([]domain.AssetRules, 0, len(values))
	for _, v := range values {
		rules, err := assetFromStruct(v.GetStructValue())
		if err != nil {
			return nil, fmt.Errorf("failed to decode asset: %w", err)
		}
		assets = append(assets, rules)
	}

	return assets, nil
}

// ListReceipts returns completed transfers, newest first. An empty asset lists every asset.
func (c *Client) ListReceipts(ctx context.Context, asset string, limit int) ([]*domain.ReceiptRecord, error) {
	out, err := c.invoke(ctx, MethodListReceipts, map[string]interface{}{keyAsset: asset, keyLimit: limit})
	if err != nil {
		return nil, err
	}

	values := listField(out, keyReceipts)
	records := make([]*domain.ReceiptRecord, 0, len(values))
	for _, v := range values {
		record, err := receiptFromStruct(v.GetStructValue())
		if err != nil {
			return nil, fmt.Errorf("failed to decode receipt: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

// GetSummary returns the outbound volume of the last window; zero selects the server default
func (c *Client) GetSummary(ctx context.Context, window time.Duration) (*dashboard.SendSummary, error) {
	fields := map[string]interface{}{}
	if window > 0 {
		fields[keyWindow] = window.String()
	}

	out, err := c.invoke(ctx, MethodGetSummary, fields)
	if err != nil {
		return nil, err
	}
	return summaryFromStruct(structField(out, keySummary))
}
