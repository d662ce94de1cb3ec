package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fekuna/omnipos-backoffice/internal/auth"
	"github.com/fekuna/omnipos-backoffice/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestActorAndRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := logger.Wrap(zap.New(core))

	var seen string
	h := Actor(RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = auth.GetUserID(r.Context())
		w.WriteHeader(http.StatusCreated)
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
	req.Header.Set(auth.HeaderUserID, "staff-7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "staff-7", seen)
	assert.Equal(t, http.StatusCreated, rec.Code)

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(http.StatusCreated), fields["status"])
	assert.Equal(t, "staff-7", fields["user_id"])
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
}

func TestRequestLoggerServerError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := RequestLogger(logger.Wrap(zap.New(core)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[0].Level)
}

func TestContextInterceptor(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	intercept := ContextInterceptor(logger.Wrap(zap.New(core)))
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(auth.MetadataUserID, "staff-9"))
	resp, err := intercept(ctx, "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return auth.GetUserID(ctx), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "staff-9", resp)

	_, err = intercept(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.Unavailable, "down")
	})
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(err))

	failed := logs.FilterMessage("grpc request failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, codes.Unavailable.String(), failed[0].ContextMap()["code"])
}
