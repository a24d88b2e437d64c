package grpccas

import (
	"context"
	"errors"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/resultledger/cidutil"
	"xdao.co/resultledger/storage"
)

// Server exposes a storage.CAS over the CAS gRPC service.
type Server struct {
	UnimplementedCASServer
	CAS storage.CAS
}

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	b := in.GetValue()
	expected, err := cidutil.Fingerprint(b)
	if err != nil {
		return nil, status.Error(codes.Internal, "cid computation failed")
	}
	id, err := s.CAS.Put(ctx, b)
	if err != nil {
		return nil, mapErr(err)
	}
	if !id.Equals(expected) {
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	return wrapperspb.String(id.String()), nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	b, err := s.CAS.Get(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	if !cidutil.Matches(id, b) {
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	return wrapperspb.Bool(s.CAS.Has(ctx, id)), nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, storage.ErrInvalidCID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, storage.ErrCIDMismatch):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, storage.ErrImmutable):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, storage.ErrUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
