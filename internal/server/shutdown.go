// Package server runs the HTTP and gRPC listeners and shuts them down
// gracefully on SIGTERM or SIGINT.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"google.golang.org/grpc"
)

// ShutdownConfig holds the shutdown timeouts.
type ShutdownConfig struct {
	// ShutdownTimeout bounds the whole shutdown. Default: 30 seconds.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	// DrainTimeout bounds the wait for in-flight requests. Default: 15 seconds.
	DrainTimeout time.Duration `json:"drain_timeout" yaml:"drain_timeout"`
}

// DefaultShutdownConfig returns the default shutdown configuration.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{ShutdownTimeout: 30 * time.Second, DrainTimeout: 15 * time.Second}
}

// ShutdownManager tracks in-flight requests and the resources to release
// on shutdown. Resources are closed in reverse registration order.
type ShutdownManager struct {
	cfg ShutdownConfig

	done     chan struct{}
	once     sync.Once
	stopping atomic.Bool
	inFlight atomic.Int64

	mu      sync.Mutex
	closers []namedCloser
}

type namedCloser struct {
	name string
	io.Closer
}

// NewShutdownManager applies defaults to zero timeouts.
func NewShutdownManager(cfg ShutdownConfig) *ShutdownManager {
	def := DefaultShutdownConfig()
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = def.DrainTimeout
	}
	return &ShutdownManager{cfg: cfg, done: make(chan struct{})}
}

// RegisterCloser adds a resource released on shutdown.
func (sm *ShutdownManager) RegisterCloser(name string, c io.Closer) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.closers = append(sm.closers, namedCloser{name: name, Closer: c})
}

// Wait blocks until a signal arrives, ctx is done or Shutdown is called,
// then shuts down.
func (sm *ShutdownManager) Wait(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		return sm.Shutdown(context.Background(), fmt.Sprintf("received signal %v", sig))
	case <-ctx.Done():
		return sm.Shutdown(context.Background(), "context cancelled")
	case <-sm.done:
		return nil
	}
}

// Shutdown stops accepting requests, waits for in-flight ones and closes
// the registered resources. Only the first call does anything.
func (sm *ShutdownManager) Shutdown(ctx context.Context, reason string) error {
	var errs []error
	sm.once.Do(func() {
		log.Printf("server: shutting down: %s", reason)
		sm.stopping.Store(true)
		close(sm.done)

		ctx, cancel := context.WithTimeout(ctx, sm.cfg.ShutdownTimeout)
		defer cancel()
		if err := sm.drain(ctx); err != nil {
			log.Printf("server: [WARN] %v", err)
			errs = append(errs, err)
		}

		sm.mu.Lock()
		closers := sm.closers
		sm.mu.Unlock()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", closers[i].name, err))
			}
		}
		log.Printf("server: shutdown complete")
	})
	return errors.Join(errs...)
}

func (sm *ShutdownManager) drain(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, sm.cfg.DrainTimeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for sm.inFlight.Load() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %d in-flight requests", sm.inFlight.Load())
		case <-ticker.C:
		}
	}
	return nil
}

// Done is closed when shutdown begins.
func (sm *ShutdownManager) Done() <-chan struct{} { return sm.done }

// IsShuttingDown reports whether shutdown has begun.
func (sm *ShutdownManager) IsShuttingDown() bool { return sm.stopping.Load() }

// InFlight returns the number of requests being served.
func (sm *ShutdownManager) InFlight() int64 { return sm.inFlight.Load() }

func (sm *ShutdownManager) track() bool {
	if sm.stopping.Load() {
		return false
	}
	sm.inFlight.Add(1)
	return true
}

func (sm *ShutdownManager) untrack() { sm.inFlight.Add(-1) }

// Middleware counts in-flight HTTP requests and rejects new ones with 503
// once shutdown has begun.
func (sm *ShutdownManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sm.track() {
			w.Header().Set("Connection", "close")
			http.Error(w, "service unavailable: shutting down", http.StatusServiceUnavailable)
			return
		}
		defer sm.untrack()
		next.ServeHTTP(w, r)
	})
}

// ServeHTTP serves srv on its address until shutdown.
func (sm *ShutdownManager) ServeHTTP(srv *http.Server) error {
	sm.RegisterCloser("http "+srv.Addr, closerFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}))
	log.Printf("server: http listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeGRPC serves srv on addr until shutdown.
func (sm *ShutdownManager) ServeGRPC(srv *grpc.Server, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	sm.RegisterCloser("grpc "+addr, closerFunc(func() error {
		srv.GracefulStop()
		return nil
	}))
	log.Printf("server: grpc listening on %s", addr)
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// CloserFunc adapts a function to io.Closer.
func CloserFunc(f func() error) io.Closer { return closerFunc(f) }
