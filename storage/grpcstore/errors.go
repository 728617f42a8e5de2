package grpcstore

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"nearfs.io/upload/model"
	"nearfs.io/upload/storage"
)

// mapRPC turns a gRPC status back into the module's error kinds.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return model.WrapError(model.KindNetwork, err, "grpcstore")
	}

	switch st.Code() {
	case codes.NotFound:
		return storage.ErrNotFound
	case codes.InvalidArgument:
		// Server uses InvalidArgument for malformed/undefined CIDs.
		return model.WrapError(model.KindCIDMismatch, storage.ErrInvalidCID, "grpcstore: %s", st.Message())
	case codes.DataLoss:
		// Server uses DataLoss when bytes do not match the claimed CID.
		return model.WrapError(model.KindCIDMismatch, storage.ErrCIDMismatch, "grpcstore: %s", st.Message())
	case codes.ResourceExhausted:
		return model.NewError(model.KindPayloadTooLarge, "grpcstore: %s", st.Message())
	case codes.FailedPrecondition, codes.Unimplemented, codes.PermissionDenied, codes.Unauthenticated:
		return model.NewError(model.KindConfiguration, "grpcstore: %s", st.Message())
	default:
		return model.WrapError(model.KindNetwork, err, "grpcstore")
	}
}

// mapErr turns a backend error into a gRPC status for the wire.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, storage.ErrInvalidCID):
		return status.Error(codes.InvalidArgument, err.Error())
	case storage.IsCorrupt(err):
		return status.Error(codes.DataLoss, err.Error())
	}
	switch model.KindOf(err) {
	case model.KindPayloadTooLarge:
		return status.Error(codes.ResourceExhausted, err.Error())
	case model.KindConfiguration:
		return status.Error(codes.FailedPrecondition, err.Error())
	case model.KindNetwork:
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
