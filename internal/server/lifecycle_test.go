package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
)

type mockService struct {
	started atomic.Bool
	stopped atomic.Bool
	done    chan struct{}
	once    sync.Once
	startFn func() error
	order   *[]string
	mu      *sync.Mutex
	name    string
}

func newMockService(name string, mu *sync.Mutex, order *[]string) *mockService {
	return &mockService{done: make(chan struct{}), name: name, mu: mu, order: order}
}

func (m *mockService) Start() error {
	m.started.Store(true)
	if m.startFn != nil {
		return m.startFn()
	}
	<-m.done
	return nil
}

func (m *mockService) Stop(context.Context) error {
	m.stopped.Store(true)
	if m.order != nil {
		m.mu.Lock()
		*m.order = append(*m.order, m.name)
		m.mu.Unlock()
	}
	m.once.Do(func() { close(m.done) })
	return nil
}

func waitStarted(t *testing.T, svcs ...*mockService) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, s := range svcs {
			if !s.started.Load() {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond, "services did not start in time")
}

func TestLifecycleStartsAndStopsServicesInReverseOrder(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t), time.Second)

	var mu sync.Mutex
	var order []string
	svc1 := newMockService("svc1", &mu, &order)
	svc2 := newMockService("svc2", &mu, &order)
	lc.Add("svc1", svc1)
	lc.Add("svc2", svc2)

	var hooked atomic.Bool
	lc.OnShutdown("hook", func() {
		assert.True(t, svc1.stopped.Load(), "hooks run after services stop")
		hooked.Store(true)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	waitStarted(t, svc1, svc2)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}

	assert.True(t, svc1.stopped.Load())
	assert.True(t, svc2.stopped.Load())
	assert.True(t, hooked.Load())
	assert.Equal(t, []string{"svc2", "svc1"}, order)
}

func TestLifecycleServiceFailureShutsDown(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t), time.Second)

	boom := errors.New("bind failed")
	failing := newMockService("failing", nil, nil)
	failing.startFn = func() error { return boom }
	healthy := newMockService("healthy", nil, nil)

	lc.Add("healthy", healthy)
	lc.Add("failing", failing)

	done := make(chan error, 1)
	go func() { done <- lc.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "service failing")
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down after a failure")
	}
	assert.True(t, healthy.stopped.Load())
}

func TestFuncService(t *testing.T) {
	started := false
	stopped := false

	svc := &FuncService{
		StartFn: func() error {
			started = true
			return nil
		},
		StopFn: func(context.Context) error {
			stopped = true
			return nil
		},
	}

	assert.NoError(t, svc.Start())
	assert.True(t, started)
	assert.NoError(t, svc.Stop(context.Background()))
	assert.True(t, stopped)
}

func TestHTTPServiceStopsCleanly(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("pong")) })
	svc := HTTPService(&http.Server{Handler: mux, ReadHeaderTimeout: time.Second}, lis)

	done := make(chan error, 1)
	go func() { done <- svc.Start() }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + lis.Addr().String() + "/ping")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, svc.Stop(context.Background()))
	select {
	case err := <-done:
		assert.NoError(t, err, "ErrServerClosed is a clean stop")
	case <-time.After(5 * time.Second):
		t.Fatal("http service did not stop")
	}
}

func TestGRPCServiceStopsCleanly(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	svc := GRPCService(grpc.NewServer(), lis)

	done := make(chan error, 1)
	go func() { done <- svc.Start() }()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, svc.Stop(context.Background()))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("grpc service did not stop")
	}
}
