package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ShutdownFunc describes a graceful shutdown callback.
type ShutdownFunc func(ctx context.Context) error

type hook struct {
	name string
	fn   ShutdownFunc
}

// Manager coordinates graceful shutdown hooks and reacts to OS signals.
type Manager struct {
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	hooks []hook
	done  bool
}

// New creates a lifecycle manager with the desired timeout.
func New(timeout time.Duration, logger *zap.Logger) *Manager {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		timeout: timeout,
		logger:  logger,
	}
}

// Register adds a shutdown hook. Hooks are executed in reverse order, so a
// dependency registered first (the store) outlives its users (the server).
func (m *Manager) Register(name string, fn ShutdownFunc) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
}

// RegisterCloser adds a hook for a component that only knows how to Close.
func (m *Manager) RegisterCloser(name string, c io.Closer) {
	if c == nil {
		return
	}
	m.Register(name, func(context.Context) error { return c.Close() })
}

// Shutdown executes all registered hooks, respecting the configured timeout.
func (m *Manager) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return nil
	}
	m.done = true

	var result error
	for i := len(m.hooks) - 1; i >= 0; i-- {
		h := m.hooks[i]
		start := time.Now()
		if err := h.fn(ctx); err != nil {
			m.logger.Error("shutdown hook failed", zap.String("component", h.name), zap.Error(err))
			result = errors.Join(result, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		m.logger.Info("component stopped", zap.String("component", h.name), zap.Duration("elapsed", time.Since(start)))
	}
	m.hooks = nil
	return result
}

// Listen blocks until an OS termination signal is received and then invokes the provided cancel function.
func (m *Manager) Listen(cancel context.CancelFunc) {
	if cancel == nil {
		return
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(sigCh)
		sig := <-sigCh
		m.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()
}
