package interceptors

import (
	"context"
	"log/slog"
	"time"

	"connectrpc.com/connect"
)

// NewLoggingInterceptor logs start and outcome of every RPC.
func NewLoggingInterceptor(logger *slog.Logger) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()

			logger.DebugContext(ctx, "RPC started", appendLoggerFields(ctx,
				"procedure", req.Spec().Procedure,
				"peer", req.Peer().Addr,
			)...)

			resp, err := next(ctx, req)

			duration := time.Since(start)

			if err != nil {
				level := slog.LevelError
				switch connect.CodeOf(err) {
				case connect.CodeInvalidArgument, connect.CodeUnauthenticated, connect.CodeNotFound,
					connect.CodeFailedPrecondition, connect.CodeResourceExhausted:
					level = slog.LevelWarn
				}
				logger.Log(ctx, level, "RPC failed", appendLoggerFields(ctx,
					"procedure", req.Spec().Procedure,
					"code", connect.CodeOf(err).String(),
					"duration", duration.String(),
					"duration_ms", duration.Milliseconds(),
					"error", err,
				)...)
			} else {
				logger.InfoContext(ctx, "RPC completed", appendLoggerFields(ctx,
					"procedure", req.Spec().Procedure,
					"duration", duration.String(),
					"duration_ms", duration.Milliseconds(),
				)...)
			}

			return resp, err
		}
	}
}

func appendLoggerFields(ctx context.Context, base ...any) []any {
	if requestID, ok := RequestIDFromContext(ctx); ok && requestID != "" {
		base = append(base, "request_id", requestID)
	}
	if userID, ok := GetUserIDFromContext(ctx); ok {
		base = append(base, "user_id", userID)
	}
	return base
}
