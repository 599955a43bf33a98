package server

import (
	"context"
	"log"

	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// accessLogInterceptor logs each unary gRPC call with its status code and,
// when a span is active, the trace id so log lines can be correlated with
// exported traces.
func accessLogInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)

		code := codes.OK
		if err != nil {
			if st, ok := status.FromError(err); ok {
				code = st.Code()
			} else {
				code = codes.Unknown
			}
		}

		traceID := ""
		if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
			traceID = sc.TraceID().String()
		}

		if traceID != "" {
			log.Printf("grpc %s code=%s trace=%s", info.FullMethod, code, traceID)
		} else {
			log.Printf("grpc %s code=%s", info.FullMethod, code)
		}
		return resp, err
	}
}
