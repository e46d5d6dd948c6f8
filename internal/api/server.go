package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"chasebtc/internal/domain"
	"chasebtc/internal/features"
	"chasebtc/internal/service"
	"chasebtc/pkg/chasebtc"
)

// Backend is the application surface served over gRPC.
type Backend interface {
	Predict(ctx context.Context, req service.PredictRequest) (*domain.Prediction, error)
	Backtest(ctx context.Context, req service.BacktestRequest) (*service.BacktestResponse, error)
}

// Compile-time interface checks.
var (
	_ Backend        = (*service.Service)(nil)
	_ BacktestServer = (*Server)(nil)
)

// Server implements BacktestServer on top of a Backend.
type Server struct {
	backend Backend
	log     *slog.Logger
}

// NewServer creates a Server.
func NewServer(backend Backend, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{backend: backend, log: log.With("component", "grpc")}
}

// Run executes a backtest described by a BacktestParams-shaped struct.
func (s *Server) Run(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var p chasebtc.BacktestParams
	if err := chasebtc.FromStruct(in, &p); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp, err := s.backend.Backtest(ctx, service.BacktestRequestFromWire(p))
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := chasebtc.ToStruct(resp.Wire())
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Predict returns a live signal for a PredictParams-shaped struct.
func (s *Server) Predict(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var p chasebtc.PredictParams
	if err := chasebtc.FromStruct(in, &p); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	pred, err := s.backend.Predict(ctx, service.PredictRequestFromWire(p))
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := chasebtc.ToStruct(service.PredictionWire(*pred))
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// NewGRPCServer builds a grpc.Server with the backtest service, the standard
// health service and request logging registered.
func NewGRPCServer(srv *Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(logInterceptor(srv.log)))
	gs := grpc.NewServer(opts...)
	RegisterBacktestServer(gs, srv)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(chasebtc.GRPCService, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return gs
}

// toStatus maps application errors to gRPC status codes.
func toStatus(err error) error {
	switch {
	case domain.IsValidation(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrNoData):
		return status.Error(codes.NotFound, err.Error())
	case features.IsUnavailable(err):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func logInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		level := slog.LevelDebug
		if code == codes.Internal {
			level = slog.LevelError
		}
		log.Log(ctx, level, "grpc request",
			"method", info.FullMethod,
			"code", code.String(),
			"elapsed", time.Since(start),
		)
		return resp, err
	}
}
