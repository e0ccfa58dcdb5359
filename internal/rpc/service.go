// Package rpc serves the ledger over gRPC.
//
// The service is registered from a hand-written descriptor whose messages are
// protobuf well-known types, so no generated stubs are needed:
//
//	primechain.ledger.v1.Ledger/Head      google.protobuf.Empty       -> google.protobuf.BytesValue
//	primechain.ledger.v1.Ledger/GetBlock  google.protobuf.UInt64Value -> google.protobuf.Struct
//	primechain.ledger.v1.Ledger/Append    google.protobuf.Struct      -> google.protobuf.UInt64Value
//
// Blocks and append requests travel as Structs with the same field names as
// the HTTP API's JSON bodies.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/captals/primechain/internal/chain"
	"github.com/captals/primechain/pkg/hashing"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "primechain.ledger.v1.Ledger"

const (
	methodHead     = "/" + ServiceName + "/Head"
	methodGetBlock = "/" + ServiceName + "/GetBlock"
	methodAppend   = "/" + ServiceName + "/Append"
)

// LedgerServer is the server API for the Ledger service.
type LedgerServer interface {
	Head(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error)
	GetBlock(context.Context, *wrapperspb.UInt64Value) (*structpb.Struct, error)
	Append(context.Context, *structpb.Struct) (*wrapperspb.UInt64Value, error)
}

// ServiceDesc describes the Ledger service for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Head", Handler: headHandler},
		{MethodName: "GetBlock", Handler: getBlockHandler},
		{MethodName: "Append", Handler: appendHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "primechain/ledger/v1/ledger.proto",
}

// RegisterLedgerServer registers srv on s.
func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// appendRequest mirrors the HTTP append body.
type appendRequest struct {
	PrevHash     *hashing.Hash      `json:"prev_hash"`
	IdentityRoot *hashing.Hash      `json:"identity_root"`
	StateRoot    hashing.Hash       `json:"state_root"`
	Certificate  *chain.Certificate `json:"certificate"`
}

// Service implements LedgerServer on top of a chain.Ledger.
type Service struct {
	ledger chain.Ledger
	logger *zap.Logger
}

// NewService creates a Service.
func NewService(ledger chain.Ledger, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{ledger: ledger, logger: logger}
}

// Head returns the current head hash. An empty ledger yields 32 zero bytes.
func (s *Service) Head(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	head, err := s.ledger.HeadHash(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(head.Bytes()), nil
}

// GetBlock returns the block at the requested index.
func (s *Service) GetBlock(ctx context.Context, req *wrapperspb.UInt64Value) (*structpb.Struct, error) {
	b, err := s.ledger.Get(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	st, err := toStruct(b)
	if err != nil {
		s.logger.Error("encode block", zap.Uint64("index", b.Index), zap.Error(err))
		return nil, status.Error(codes.Internal, "encode block")
	}
	return st, nil
}

// Append submits a block built on the claimed head.
func (s *Service) Append(ctx context.Context, req *structpb.Struct) (*wrapperspb.UInt64Value, error) {
	var in appendRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode append request: %v", err)
	}
	switch {
	case in.PrevHash == nil:
		return nil, status.Error(codes.InvalidArgument, "prev_hash is required")
	case in.IdentityRoot == nil:
		return nil, status.Error(codes.InvalidArgument, "identity_root is required")
	case in.Certificate == nil:
		return nil, status.Error(codes.InvalidArgument, "certificate is required")
	}

	idx, err := s.ledger.Append(ctx, *in.PrevHash, *in.IdentityRoot, in.StateRoot, in.Certificate)
	if err != nil {
		s.logger.Info("append rejected", zap.Error(err))
		return nil, toStatus(err)
	}
	return wrapperspb.UInt64(idx), nil
}

// toStatus maps ledger errors onto gRPC status codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, chain.ErrChainLinkage):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, chain.ErrCertificateRejected):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, chain.ErrIndexOutOfRange):
		return status.Error(codes.OutOfRange, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// toStruct converts v to a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// fromStruct decodes st into v through its JSON form. Keys that v does not
// declare are rejected, as on the HTTP API.
func fromStruct(st *structpb.Struct, v any) error {
	if st == nil {
		return fmt.Errorf("empty message")
	}
	raw, err := json.Marshal(st.AsMap())
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func headHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).Head(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodHead}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServer).Head(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getBlockHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.UInt64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).GetBlock(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetBlock}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServer).GetBlock(ctx, req.(*wrapperspb.UInt64Value))
	}
	return interceptor(ctx, in, info, handler)
}

func appendHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).Append(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodAppend}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServer).Append(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
