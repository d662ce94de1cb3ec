package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fekuna/omnipos-backoffice/internal/auth"
	"github.com/fekuna/omnipos-backoffice/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRouter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := NewRouter(logger.Wrap(zap.New(core)), []Route{{
		Prefix: "/orders",
		Register: func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(auth.GetUserID(r.Context())))
			})
			r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
		},
	}})

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set(auth.HeaderUserID, "cashier-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cashier-1", rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 2)
	assert.NotEmpty(t, entries[0].ContextMap()["request_id"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}

func TestHealthz(t *testing.T) {
	healthy := Check{Name: "postgres", Ping: func(context.Context) error { return nil }}
	down := Check{Name: "redis", Ping: func(context.Context) error { return errors.New("connection refused") }}

	rec := httptest.NewRecorder()
	NewRouter(logger.NewNop(), nil, healthy).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	NewRouter(logger.NewNop(), nil, healthy, down).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Success bool              `json:"success"`
		Checks  map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "ok", body.Checks["postgres"])
	assert.Equal(t, "connection refused", body.Checks["redis"])
}

func TestServerRunsAndDrains(t *testing.T) {
	httpLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	grpcLis := bufconn.Listen(1 << 20)

	router := NewRouter(logger.NewNop(), nil)
	srv := New(router, logger.NewNop(), 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, httpLis, grpcLis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return grpcLis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	client := healthpb.NewHealthClient(conn)
	require.Eventually(t, func() bool {
		res, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
		return err == nil && res.Status == healthpb.HealthCheckResponse_SERVING
	}, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, conn.Close())

	res, err := http.Get("http://" + httpLis.Addr().String() + "/healthz")
	require.NoError(t, err)
	_ = res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	http.DefaultClient.CloseIdleConnections()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
