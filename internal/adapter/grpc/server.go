package grpc

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/securesend-backend/internal/domain"
	"github.com/simaogato/securesend-backend/internal/usecase/dashboard"
	"github.com/simaogato/securesend-backend/internal/usecase/pipeline"
	"github.com/simaogato/securesend-backend/internal/usecase/receipt"
	"github.com/simaogato/securesend-backend/internal/usecase/session"
)

// Server implements the TransferPipeline gRPC server
type Server struct {
	Sessions  *session.Manager
	Registry  *domain.Registry
	Receipts  *receipt.RecorderService
	Dashboard *dashboard.DashboardService
}

var _ TransferPipelineServer = (*Server)(nil)

// NewServer creates a new gRPC server instance
func NewServer(
	sessions *session.Manager,
	registry *domain.Registry,
	receipts *receipt.RecorderService,
	dashboardService *dashboard.DashboardService,
) *Server {
	return &Server{
		Sessions:  sessions,
		Registry:  registry,
		Receipts:  receipts,
		Dashboard: dashboardService,
	}
}

func respond(fields map[string]interface{}) (*structpb.Struct, error) {
	resp, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return resp, nil
}

func respondState(state domain.PipelineState, err error) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		keyState: stateToMap(state),
	}
	if err != nil {
		fields[keyError] = errorToMap(err)
	}
	return respond(fields)
}

func (s *Server) pipeline(req *structpb.Struct) (*pipeline.Pipeline, error) {
	id, err := parseSessionID(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	p, err := s.Sessions.Get(id)
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

// OpenSession handles the OpenSession RPC
func (s *Server) OpenSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, p := s.Sessions.Open()

	return respond(map[string]interface{}{
		keySessionID: id.String(),
		keyState:     stateToMap(p.State()),
	})
}

// Submit handles the Submit RPC. It returns once every check has reported.
// Rejected submissions are answered with the state and the error, not a status.
func (s *Server) Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := s.pipeline(req)
	if err != nil {
		return nil, err
	}

	err = p.Submit(ctx, formFromStruct(req))
	if err != nil && !recoverable(err) {
		return nil, mapError(err)
	}

	return respondState(p.State(), err)
}

// AcknowledgeWarnings handles the AcknowledgeWarnings RPC
func (s *Server) AcknowledgeWarnings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := s.pipeline(req)
	if err != nil {
		return nil, err
	}

	if err := p.AcknowledgeWarnings(); err != nil {
		return nil, mapError(err)
	}

	return respondState(p.State(), nil)
}

// Confirm handles the Confirm RPC. It returns once the executor finished.
// An execution failure is answered with the ERROR state and the error.
func (s *Server) Confirm(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := s.pipeline(req)
	if err != nil {
		return nil, err
	}

	_, err = p.Confirm(ctx)
	if err != nil && !recoverable(err) {
		return nil, mapError(err)
	}

	return respondState(p.State(), err)
}

// Cancel handles the Cancel RPC
func (s *Server) Cancel(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := s.pipeline(req)
	if err != nil {
		return nil, err
	}

	if err := p.Cancel(); err != nil {
		return nil, mapError(err)
	}

	return respondState(p.State(), nil)
}

// Reset handles the Reset RPC
func (s *Server) Reset(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := s.pipeline(req)
	if err != nil {
		return nil, err
	}

	p.Reset()

	return respondState(p.State(), nil)
}

// GetState handles the GetState RPC
func (s *Server) GetState(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := s.pipeline(req)
	if err != nil {
		return nil, err
	}

	return respondState(p.State(), nil)
}

// CloseSession handles the CloseSession RPC
func (s *Server) CloseSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := parseSessionID(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if err := s.Sessions.Close(id); err != nil {
		return nil, mapError(err)
	}

	return respond(map[string]interface{}{})
}

// GetReceipt handles the GetReceipt RPC
func (s *Server) GetReceipt(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	record, err := s.Receipts.Lookup(ctx, stringField(req, keyHash))
	if err != nil {
		return nil, mapError(err)
	}

	return respond(map[string]interface{}{
		keyReceipt: receiptToMap(record),
	})
}

// ListAssets handles the ListAssets RPC
func (s *Server) ListAssets(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	symbols := s.Registry.Symbols()
	assets := make([]interface{}, 0, len(symbols))

	for _, symbol := range symbols {
		rules, err := s.Registry.GetRules(symbol)
		if err != nil {
			return nil, mapError(err)
		}
		assets = append(assets, assetToMap(rules))
	}

	return respond(map[string]interface{}{
		keyAssets: assets,
	})
}

// ListReceipts handles the ListReceipts RPC. Receipts are returned newest first.
func (s *Server) ListReceipts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	records, err := s.Dashboard.RecentTransfers(ctx, stringField(req, keyAsset), int(numberField(req, keyLimit)))
	if err != nil {
		return nil, mapError(err)
	}

	receipts := make([]interface{}, 0, len(records))
	for _, record := range records {
		receipts = append(receipts, receiptToMap(record))
	}

	return respond(map[string]interface{}{
		keyReceipts: receipts,
	})
}

// GetSummary handles the GetSummary RPC
func (s *Server) GetSummary(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	window, err := parseWindow(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	summary, err := s.Dashboard.GetSummary(ctx, window)
	if err != nil {
		return nil, mapError(err)
	}

	return respond(map[string]interface{}{
		keySummary: summaryToMap(summary),
	})
}

// recoverable reports whether err leaves the pipeline in a state the user acts on
func recoverable(err error) bool {
	switch domain.KindOf(err) {
	case domain.KindInput, domain.KindUnsupportedAsset, domain.KindHardCheck, domain.KindExecution:
		return true
	}
	return false
}

// mapError converts domain errors to gRPC status errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	errorMsg := err.Error()

	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrReceiptNotFound):
		return status.Errorf(codes.NotFound, "%s", errorMsg)
	case errors.Is(err, domain.ErrCancelled):
		return status.Errorf(codes.Aborted, "%s", errorMsg)
	case errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, domain.ErrNotCancellable),
		errors.Is(err, domain.ErrAcknowledgementRequired):
		return status.Errorf(codes.FailedPrecondition, "%s", errorMsg)
	}

	switch domain.KindOf(err) {
	case domain.KindInput, domain.KindUnsupportedAsset, domain.KindHardCheck:
		return status.Errorf(codes.InvalidArgument, "%s", errorMsg)
	case domain.KindSoftCheck:
		return status.Errorf(codes.FailedPrecondition, "%s", errorMsg)
	}

	// Map remaining validation errors to InvalidArgument
	if strings.Contains(errorMsg, "cannot be empty") ||
		strings.Contains(errorMsg, "invalid") {
		return status.Errorf(codes.InvalidArgument, "%s", errorMsg)
	}

	// Default to Internal error for unknown errors
	return status.Errorf(codes.Internal, "%s", errorMsg)
}
