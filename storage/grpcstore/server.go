package grpcstore

import (
	"context"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"nearfs.io/upload/cidutil"
	"nearfs.io/upload/model"
	"nearfs.io/upload/storage"
)

// Server exposes a storage.Backend over the BlockStore gRPC service.
type Server struct {
	UnimplementedBlockStoreServer
	Backend storage.Backend
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.Backend == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing backend")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	ok, err := s.Backend.Has(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bool(ok), nil
}

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.Backend == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing backend")
	}
	blk, err := splitPut(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	// Enforce the CID contract on the server side too.
	if err := cidutil.Verify(blk.CID, blk.Data); err != nil {
		return nil, status.Error(codes.DataLoss, err.Error())
	}
	if _, err := s.Backend.Submit(ctx, []model.Block{blk}); err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.String(cidutil.String(blk.CID)), nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Backend == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing backend")
	}
	g, ok := s.Backend.(storage.Getter)
	if !ok {
		return nil, status.Error(codes.Unimplemented, "backend cannot read blocks")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	b, err := g.Get(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := cidutil.Verify(id, b); err != nil {
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	return wrapperspb.Bytes(b), nil
}

// joinPut frames a block as its binary CID followed by its data.
func joinPut(b model.Block) []byte {
	id := b.CID.Bytes()
	out := make([]byte, 0, len(id)+len(b.Data))
	out = append(out, id...)
	return append(out, b.Data...)
}

func splitPut(p []byte) (model.Block, error) {
	n, id, err := cid.CidFromBytes(p)
	if err != nil {
		return model.Block{}, err
	}
	if !id.Defined() {
		return model.Block{}, storage.ErrInvalidCID
	}
	return model.Block{CID: id, Data: p[n:]}, nil
}
