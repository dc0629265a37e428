package grpc

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/turtacn/PII-Anonymizer/internal/config"
	"github.com/turtacn/PII-Anonymizer/internal/testutil"
)

type toggleChecker struct {
	healthy atomic.Bool
}

func (c *toggleChecker) Name() string { return "redis" }

func (c *toggleChecker) Check(context.Context) error {
	if c.healthy.Load() {
		return nil
	}
	return assert.AnError
}

func startServer(t *testing.T, opts ...Option) (*Server, healthpb.HealthClient) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv, err := NewServer(config.GRPCConfig{Enabled: true}, append(opts, WithListener(ln))...)
	require.NoError(t, err)
	go func() { _ = srv.Start() }()
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := grpc.DialContext(ctx, srv.Addr(),
		grpc.WithTransportCredentials(insecure.NewCredentials()), grpc.WithBlock())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return srv, healthpb.NewHealthClient(conn)
}

func TestServer_HealthServing(t *testing.T) {
	_, client := startServer(t)

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestServer_WatchHealthFollowsCheckers(t *testing.T) {
	srv, client := startServer(t)
	checker := &toggleChecker{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.WatchHealth(ctx, 20*time.Millisecond, checker)

	statusOf := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
		if err != nil {
			return healthpb.HealthCheckResponse_UNKNOWN
		}
		return resp.Status
	}

	assert.Eventually(t, func() bool { return statusOf() == healthpb.HealthCheckResponse_NOT_SERVING },
		2*time.Second, 10*time.Millisecond)

	checker.healthy.Store(true)
	assert.Eventually(t, func() bool { return statusOf() == healthpb.HealthCheckResponse_SERVING },
		2*time.Second, 10*time.Millisecond)
}

func TestServer_DoubleStart(t *testing.T) {
	srv, _ := startServer(t)
	assert.Error(t, srv.Start())
}

func TestServer_StopBeforeStart(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv, err := NewServer(config.GRPCConfig{}, WithListener(ln))
	require.NoError(t, err)
	assert.NoError(t, srv.Stop(context.Background()))
}

func TestNewServer_ListenError(t *testing.T) {
	_, err := NewServer(config.GRPCConfig{Host: "256.0.0.1", Port: 1})
	assert.Error(t, err)
}

func TestRecoveryUnaryInterceptor(t *testing.T) {
	logger := testutil.NewMockLogger()
	interceptor := recoveryUnaryInterceptor(logger)
	info := &grpc.UnaryServerInfo{FullMethod: "/svc.A/B"}

	_, err := interceptor(context.Background(), nil, info, func(context.Context, interface{}) (interface{}, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.True(t, logger.HasMessage("error", "grpc panic recovered"))

	resp, err := interceptor(context.Background(), nil, info, func(context.Context, interface{}) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestLoggingUnaryInterceptor_SkipsHealth(t *testing.T) {
	logger := testutil.NewMockLogger()
	interceptor := loggingUnaryInterceptor(logger)
	handler := func(context.Context, interface{}) (interface{}, error) { return nil, nil }

	_, _ = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, handler)
	assert.Empty(t, logger.GetMessages())

	_, _ = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc.A/B"}, handler)
	assert.True(t, logger.HasMessage("info", "grpc request"))
}

func TestSplitMethodName(t *testing.T) {
	s, m := splitMethodName("/grpc.health.v1.Health/Check")
	assert.Equal(t, "grpc.health.v1.Health", s)
	assert.Equal(t, "Check", m)

	s, m = splitMethodName("Check")
	assert.Equal(t, "unknown", s)
	assert.Equal(t, "Check", m)
}

//Personal.AI order the ending
