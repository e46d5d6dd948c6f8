// Package api exposes backtests and live predictions over gRPC. Messages are
// google.protobuf.Struct values carrying the same JSON shapes as the HTTP API.
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"chasebtc/pkg/chasebtc"
)

// BacktestServer is the server API for the chasebtc.v1.BacktestService.
type BacktestServer interface {
	Run(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Predict(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes chasebtc.v1.BacktestService for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: chasebtc.GRPCService,
	HandlerType: (*BacktestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: runHandler},
		{MethodName: "Predict", Handler: predictHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chasebtc/v1/backtest.proto",
}

// RegisterBacktestServer registers srv on s.
func RegisterBacktestServer(s grpc.ServiceRegistrar, srv BacktestServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func runHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktestServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: chasebtc.GRPCRunMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BacktestServer).Run(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func predictHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktestServer).Predict(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: chasebtc.GRPCPredictMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BacktestServer).Predict(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
