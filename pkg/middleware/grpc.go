package middleware

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-backoffice/internal/auth"
	"github.com/fekuna/omnipos-backoffice/pkg/logger"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// ContextInterceptor lifts the caller identity out of incoming metadata into the
// request context and writes one access log line per call.
func ContextInterceptor(log logger.ZapLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(auth.MetadataUserID); len(vals) > 0 {
				ctx = auth.WithUserID(ctx, vals[0])
			}
		}

		start := time.Now()
		resp, err := handler(ctx, req)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		}
		if userID := auth.GetUserID(ctx); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}
		if err != nil {
			log.Warn("grpc request failed", append(fields, zap.Error(err))...)
		} else {
			log.Debug("grpc request", fields...)
		}
		return resp, err
	}
}
