package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dgr198213-ui/Agent00/internal/rules"
	"github.com/dgr198213-ui/Agent00/internal/types"
)

// Error mapping:
//   - missing rules map to NOT_FOUND
//   - malformed requests and rule validation errors map to INVALID_ARGUMENT
//   - context timeouts map to DEADLINE_EXCEEDED, cancellation to CANCELED
//   - rule source failures map to UNAVAILABLE

// toStatus converts a domain error to a gRPC status error.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var syntaxErr *rules.SyntaxError
	switch {
	case errors.Is(err, types.ErrRuleNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &syntaxErr),
		errors.Is(err, types.ErrInvalidCondition),
		errors.Is(err, types.ErrInvalidPriority),
		errors.Is(err, types.ErrInvalidConfidence),
		errors.Is(err, types.ErrEmptyCondition),
		errors.Is(err, types.ErrEmptyName):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Unavailable, err.Error())
	}
}

func invalidArgument(msg string) error {
	return status.Error(codes.InvalidArgument, msg)
}

func internalError(err error) error {
	return status.Error(codes.Internal, err.Error())
}
