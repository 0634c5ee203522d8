package handler

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-print-rfq/internal/platform/logger"
)

// Metadata keys read from incoming gRPC calls.
const (
	userIDMetadataKey    = "x-user-id"
	requestIDMetadataKey = "x-request-id"
)

type grpcCtxKey int

const grpcRequestIDKey grpcCtxKey = iota

// actorFromContext returns the caller identity sent as x-user-id metadata.
func actorFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	return firstValue(md.Get(userIDMetadataKey))
}

// RequestIDFromContext returns the request ID assigned by UnaryServerInterceptor.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(grpcRequestIDKey).(string); ok {
		return v
	}
	return ""
}

// UnaryServerInterceptor propagates or assigns a request ID, turns panics
// into Internal errors and writes one log line per call.
func UnaryServerInterceptor(log *logger.Logger) grpc.UnaryServerInterceptor {
	if log == nil {
		log = logger.Nop()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		start := time.Now()

		requestID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			requestID = firstValue(md.Get(requestIDMetadataKey))
		}
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx = context.WithValue(ctx, grpcRequestIDKey, requestID)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDMetadataKey, requestID))

		defer func() {
			if p := recover(); p != nil {
				log.Error().
					Interface("panic", p).
					Str("request_id", requestID).
					Str("method", info.FullMethod).
					Bytes("stack", debug.Stack()).
					Msg("Recovered from panic")
				resp, err = nil, status.Error(codes.Internal, "internal error")
			}

			code := status.Code(err)
			evt := log.Info()
			switch code {
			case codes.OK, codes.NotFound, codes.InvalidArgument, codes.FailedPrecondition, codes.Aborted:
			default:
				evt = log.Error()
			}
			evt.
				Str("request_id", requestID).
				Str("method", info.FullMethod).
				Str("code", code.String()).
				Dur("duration", time.Since(start)).
				Msg("gRPC request")
		}()

		return next(ctx, req)
	}
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
