package chasebtc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// gRPC service and method names.
const (
	GRPCService       = "chasebtc.v1.BacktestService"
	GRPCRunMethod     = "/" + GRPCService + "/Run"
	GRPCPredictMethod = "/" + GRPCService + "/Predict"
)

// ToStruct converts a JSON-tagged value into a protobuf Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("building struct from %T: %w", v, err)
	}
	return s, nil
}

// FromStruct decodes a protobuf Struct into the JSON-tagged value v.
func FromStruct(s *structpb.Struct, v any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding struct: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding struct into %T: %w", v, err)
	}
	return nil
}

// GRPCClient calls the chasebtc gRPC service.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// DialGRPC connects to the gRPC server at target without transport security.
// Extra options are appended, e.g. a custom dialer in tests.
func DialGRPC(target string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", target, err)
	}
	return &GRPCClient{conn: conn}, nil
}

// Close releases the connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// Backtest runs a backtest over gRPC.
func (c *GRPCClient) Backtest(ctx context.Context, p BacktestParams) (*BacktestResponse, error) {
	var out BacktestResponse
	if err := c.invoke(ctx, GRPCRunMethod, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Predict requests a live signal over gRPC.
func (c *GRPCClient) Predict(ctx context.Context, p PredictParams) (*PredictResponse, error) {
	var out PredictResponse
	if err := c.invoke(ctx, GRPCPredictMethod, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *GRPCClient) invoke(ctx context.Context, method string, in, out any) error {
	req, err := ToStruct(in)
	if err != nil {
		return err
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, method, req, resp); err != nil {
		return err
	}
	return FromStruct(resp, out)
}
