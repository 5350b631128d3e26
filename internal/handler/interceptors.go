package handler

import (
	"context"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-doc-approvals/pkg/auth"
	"github.com/pesio-ai/be-doc-approvals/pkg/logger"
)

// IdentityInterceptor copies the caller identity from incoming metadata
// into the request context. Calls without identity pass through and fail
// in the handler if the method needs a caller.
func IdentityInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if uc, ok := auth.FromIncomingMetadata(ctx); ok {
		ctx = auth.WithUserContext(ctx, uc)
	}
	return handler(ctx, req)
}

// LoggingInterceptor logs one line per unary call.
func LoggingInterceptor(log *logger.Logger) grpc.UnaryServerInterceptor {
	l := log.Component("grpc")
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		evt := l.Info()
		if code == codes.Internal || code == codes.Unavailable || code == codes.Unknown {
			evt = l.Error().Err(err)
		}
		evt.
			Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC request")
		return resp, err
	}
}

// RecoveryInterceptor turns handler panics into INTERNAL errors.
func RecoveryInterceptor(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if p := recover(); p != nil {
				log.Error().
					Interface("panic", p).
					Str("method", info.FullMethod).
					Bytes("stack", debug.Stack()).
					Msg("Recovered from panic")
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
