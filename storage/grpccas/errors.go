package grpccas

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/resultledger/storage"
)

var errNoConn = errors.New("grpccas: no connection")

func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return storage.FromContext("grpc", err)
	}

	switch st.Code() {
	case codes.NotFound:
		return storage.ErrNotFound
	case codes.InvalidArgument:
		// Server uses InvalidArgument for malformed/undefined CIDs.
		return storage.ErrInvalidCID
	case codes.DataLoss:
		// Server uses DataLoss when bytes do not match the requested CID.
		return storage.ErrCIDMismatch
	case codes.AlreadyExists:
		return storage.ErrImmutable
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled, codes.ResourceExhausted:
		return storage.Unavailable("grpc", err)
	default:
		return err
	}
}
