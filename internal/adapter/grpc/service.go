package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "securesend.v1.TransferPipeline"

// Method names of the TransferPipeline service
const (
	MethodOpenSession         = "OpenSession"
	MethodSubmit              = "Submit"
	MethodAcknowledgeWarnings = "AcknowledgeWarnings"
	MethodConfirm             = "Confirm"
	MethodCancel              = "Cancel"
	MethodReset               = "Reset"
	MethodGetState            = "GetState"
	MethodCloseSession        = "CloseSession"
	MethodGetReceipt          = "GetReceipt"
	MethodListAssets          = "ListAssets"
	MethodListReceipts        = "ListReceipts"
	MethodGetSummary          = "GetSummary"
)

// FullMethod returns "/securesend.v1.TransferPipeline/<method>"
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// TransferPipelineServer is the server API of the TransferPipeline service.
// Every request and response is a google.protobuf.Struct.
type TransferPipelineServer interface {
	OpenSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AcknowledgeWarnings(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Confirm(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Cancel(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetState(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CloseSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetReceipt(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAssets(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListReceipts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSummary(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(srv TransferPipelineServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(TransferPipelineServer), ctx, in)
			}

			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethod(method),
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(TransferPipelineServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the TransferPipeline service for grpc.Server.RegisterService
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TransferPipelineServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(MethodOpenSession, TransferPipelineServer.OpenSession),
		unaryHandler(MethodSubmit, TransferPipelineServer.Submit),
		unaryHandler(MethodAcknowledgeWarnings, TransferPipelineServer.AcknowledgeWarnings),
		unaryHandler(MethodConfirm, TransferPipelineServer.Confirm),
		unaryHandler(MethodCancel, TransferPipelineServer.Cancel),
		unaryHandler(MethodReset, TransferPipelineServer.Reset),
		unaryHandler(MethodGetState, TransferPipelineServer.GetState),
		unaryHandler(MethodCloseSession, TransferPipelineServer.CloseSession),
		unaryHandler(MethodGetReceipt, TransferPipelineServer.GetReceipt),
		unaryHandler(MethodListAssets, TransferPipelineServer.ListAssets),
		unaryHandler(MethodListReceipts, TransferPipelineServer.ListReceipts),
		unaryHandler(MethodGetSummary, TransferPipelineServer.GetSummary),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "securesend/v1/transfer_pipeline.proto",
}

// RegisterTransferPipelineServer registers srv on s
func RegisterTransferPipelineServer(s grpc.ServiceRegistrar, srv TransferPipelineServer) {
	s.RegisterService(&ServiceDesc, srv)
}
