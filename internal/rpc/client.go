package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/captals/primechain/internal/chain"
	"github.com/captals/primechain/pkg/hashing"
)

// Client calls the Ledger service over an existing connection.
// Errors are gRPC status errors; use status.Code to inspect them.
type Client struct {
	conn  grpc.ClientConnInterface
	token string
}

// NewClient wraps conn. A non-empty token is sent as a bearer credential on
// every call.
func NewClient(conn grpc.ClientConnInterface, token string) *Client {
	return &Client{conn: conn, token: token}
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", bearer(c.token))
}

// Head returns the current head hash.
func (c *Client) Head(ctx context.Context) (hashing.Hash, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.conn.Invoke(c.outgoing(ctx), methodHead, &emptypb.Empty{}, out); err != nil {
		return hashing.Zero, err
	}
	return hashing.FromBytes(out.GetValue())
}

// GetBlock fetches the block at index.
func (c *Client) GetBlock(ctx context.Context, index uint64) (*chain.Block, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(c.outgoing(ctx), methodGetBlock, wrapperspb.UInt64(index), out); err != nil {
		return nil, err
	}
	var b chain.Block
	if err := fromStruct(out, &b); err != nil {
		return nil, fmt.Errorf("decode block %d: %w", index, err)
	}
	return &b, nil
}

// Append submits a block built on prev and returns its index.
func (c *Client) Append(ctx context.Context, prev, identityRoot, stateRoot hashing.Hash, cert *chain.Certificate) (uint64, error) {
	req, err := toStruct(appendRequest{
		PrevHash:     &prev,
		IdentityRoot: &identityRoot,
		StateRoot:    stateRoot,
		Certificate:  cert,
	})
	if err != nil {
		return 0, fmt.Errorf("encode append request: %w", err)
	}
	out := new(wrapperspb.UInt64Value)
	if err := c.conn.Invoke(c.outgoing(ctx), methodAppend, req, out); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}
