// Package server runs the fight server's listeners and shuts them down
// gracefully on SIGINT, SIGTERM or the first listener failure.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// Service is a long-running component.
type Service interface {
	// Start blocks until the service stops. A clean stop returns nil.
	Start() error
	// Stop asks the service to finish in-flight work before ctx ends.
	Stop(ctx context.Context) error
}

// FuncService adapts a start/stop function pair into the Service interface.
type FuncService struct {
	StartFn func() error
	StopFn  func(ctx context.Context) error
}

// Start calls the underlying start function.
func (f *FuncService) Start() error { return f.StartFn() }

// Stop calls the underlying stop function.
func (f *FuncService) Stop(ctx context.Context) error { return f.StopFn(ctx) }

// GRPCService serves srv on lis.
//
// Postcondition: Stop drains open calls and streams, falling back to a hard
// stop when ctx ends first.
func GRPCService(srv *grpc.Server, lis net.Listener) Service {
	return &FuncService{
		StartFn: func() error {
			if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return err
			}
			return nil
		},
		StopFn: func(ctx context.Context) error {
			done := make(chan struct{})
			go func() {
				srv.GracefulStop()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				srv.Stop()
				return ctx.Err()
			}
		},
	}
}

// HTTPService serves srv on lis.
func HTTPService(srv *http.Server, lis net.Listener) Service {
	return &FuncService{
		StartFn: func() error {
			if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
		StopFn: func(ctx context.Context) error {
			// Shutdown does not track hijacked websocket feeds. They end
			// when their fight loop stops.
			return srv.Shutdown(ctx)
		},
	}
}

// Lifecycle manages the startup and shutdown of multiple services.
// Services start concurrently and stop in reverse registration order,
// followed by the shutdown hooks in reverse order.
type Lifecycle struct {
	logger          *zap.Logger
	shutdownTimeout time.Duration

	mu       sync.Mutex
	services []namedService
	hooks    []namedHook
}

type namedService struct {
	name    string
	service Service
}

type namedHook struct {
	name string
	fn   func()
}

// NewLifecycle creates a Lifecycle.
//
// Precondition: logger must be non-nil; shutdownTimeout > 0.
func NewLifecycle(logger *zap.Logger, shutdownTimeout time.Duration) *Lifecycle {
	return &Lifecycle{logger: logger, shutdownTimeout: shutdownTimeout}
}

// Add registers a named service.
//
// Precondition: name must be non-empty; svc must be non-nil.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, namedService{name: name, service: svc})
}

// OnShutdown registers fn to run after every service has stopped.
func (l *Lifecycle) OnShutdown(name string, fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, namedHook{name: name, fn: fn})
}

// Run starts all services and blocks until a termination signal, ctx
// cancellation, or a service failure.
//
// Postcondition: Every service is stopped and every hook has run. Returns
// the first service failure, or nil on a signal or cancellation.
func (l *Lifecycle) Run(ctx context.Context) error {
	start := time.Now()
	l.mu.Lock()
	services := append([]namedService(nil), l.services...)
	hooks := append([]namedHook(nil), l.hooks...)
	l.mu.Unlock()

	sigCtx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	g, gctx := errgroup.WithContext(sigCtx)

	for _, ns := range services {
		g.Go(func() error {
			l.logger.Info("starting service", zap.String("service", ns.name))
			if err := ns.service.Start(); err != nil {
				l.logger.Error("service failed",
					zap.String("service", ns.name),
					zap.Error(err),
					zap.Duration("uptime", time.Since(start)),
				)
				return fmt.Errorf("service %s: %w", ns.name, err)
			}
			return nil
		})
	}
	l.logger.Info("all services started", zap.Int("count", len(services)))

	<-gctx.Done()
	switch {
	case sigCtx.Err() == nil:
		l.logger.Info("service error, shutting down")
	case ctx.Err() == nil:
		l.logger.Info("received signal, shutting down")
	default:
		l.logger.Info("context cancelled, shutting down")
	}

	l.shutdown(services, hooks)
	err := g.Wait()

	l.logger.Info("shutdown complete", zap.Duration("total_uptime", time.Since(start)))
	return err
}

func (l *Lifecycle) shutdown(services []namedService, hooks []namedHook) {
	shutdownStart := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer cancel()

	for i := len(services) - 1; i >= 0; i-- {
		ns := services[i]
		svcStart := time.Now()
		l.logger.Info("stopping service", zap.String("service", ns.name))
		if err := ns.service.Stop(ctx); err != nil {
			l.logger.Warn("service did not stop cleanly",
				zap.String("service", ns.name),
				zap.Error(err),
			)
		}
		l.logger.Info("service stopped",
			zap.String("service", ns.name),
			zap.Duration("elapsed", time.Since(svcStart)),
		)
	}
	for i := len(hooks) - 1; i >= 0; i-- {
		l.logger.Info("running shutdown hook", zap.String("hook", hooks[i].name))
		hooks[i].fn()
	}
	l.logger.Info("all services stopped",
		zap.Duration("shutdown_elapsed", time.Since(shutdownStart)),
	)
}
