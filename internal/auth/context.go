package auth

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
)

const (
	HeaderUserID   = "X-User-ID"
	MetadataUserID = "x-user-id"
)

type userIDKey struct{}

// WithUserID stores the acting staff user on ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey{}, userID)
}

// GetUserID returns the acting staff user, or "" for anonymous callers.
func GetUserID(ctx context.Context) string {
	if val, ok := ctx.Value(userIDKey{}).(string); ok {
		return val
	}

	// Fallback to metadata
	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if val := md.Get(MetadataUserID); len(val) > 0 {
			return strings.TrimSpace(val[0])
		}
	}
	return ""
}
