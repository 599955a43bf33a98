package server

import (
	"context"

	apperrors "github.com/mirakulix/play-together-api/internal/platform/errors"
	"google.golang.org/grpc"
)

// errorMappingInterceptor converts domain errors returned by handlers into
// gRPC statuses with localized detail, so callers see the error taxonomy
// instead of internal error strings.
func errorMappingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			err = apperrors.HandleError(err, apperrors.DefaultLocale)
		}
		return resp, err
	}
}
