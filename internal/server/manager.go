package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/BaSui01/ragflow/config"
	"go.uber.org/zap"
)

var (
	// ErrClosed 管理器已关闭，不能再次启动
	ErrClosed = errors.New("server: closed")
	// ErrStarted 重复启动
	ErrStarted = errors.New("server: already started")
)

// Config 监听与超时参数
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration // 需覆盖一次完整编排（多轮 LLM 调用）
	IdleTimeout     time.Duration
	MaxHeaderBytes  int
	ShutdownTimeout time.Duration
}

// DefaultConfig 由默认 ServerConfig 派生
func DefaultConfig() Config {
	return ConfigFromServer(config.DefaultServerConfig())
}

// ConfigFromServer 从 config.ServerConfig 派生监听配置
func ConfigFromServer(cfg config.ServerConfig) Config {
	return Config{
		Addr:            fmt.Sprintf(":%d", cfg.HTTPPort),
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		IdleTimeout:     2 * cfg.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}
}

// Hook 在 HTTP 排空之后执行的清理函数
type Hook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Manager 管理一个 http.Server 的生命周期：监听、排空、按注册逆序执行清理钩子。
type Manager struct {
	srv    *http.Server
	cfg    Config
	logger *zap.Logger

	mu     sync.RWMutex
	ln     net.Listener
	closed bool
	hooks  []Hook

	serveErr chan error
}

// NewManager 创建管理器，不会立即监听。
func NewManager(handler http.Handler, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		srv: &http.Server{
			Addr:           cfg.Addr,
			Handler:        handler,
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			IdleTimeout:    cfg.IdleTimeout,
			MaxHeaderBytes: cfg.MaxHeaderBytes,
		},
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "http_server")),
		serveErr: make(chan error, 1),
	}
}

// OnShutdown 注册清理钩子。钩子在 HTTP 连接排空后按注册逆序执行，
// 与 defer 的顺序一致：先注册的资源最后释放。
func (m *Manager) OnShutdown(name string, fn func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, Hook{Name: name, Fn: fn})
}

// Start 监听并在后台提供服务
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.closed:
		return ErrClosed
	case m.ln != nil:
		return ErrStarted
	}

	ln, err := net.Listen("tcp", m.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", m.cfg.Addr, err)
	}
	m.ln = ln
	m.logger.Info("listening", zap.String("addr", ln.Addr().String()))

	go func() {
		err := m.srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("serve failed", zap.Error(err))
			m.serveErr <- err
		}
	}()
	return nil
}

// Shutdown 排空进行中的请求，再执行清理钩子。可重复调用。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	hooks := m.hooks
	m.hooks = nil
	m.mu.Unlock()

	if m.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
		defer cancel()
	}

	var errs []error
	if err := m.srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain: %w", err))
	}
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := h.Fn(ctx); err != nil {
			m.logger.Warn("shutdown hook failed", zap.String("hook", h.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
		}
	}

	m.mu.Lock()
	m.ln = nil
	m.mu.Unlock()
	m.logger.Info("stopped")
	return errors.Join(errs...)
}

// WaitForShutdown 阻塞直到 SIGINT/SIGTERM、ctx 结束或服务异常退出，然后优雅关闭。
// 服务异常退出时返回该错误。
func (m *Manager) WaitForShutdown(ctx context.Context) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	var cause error
	select {
	case s := <-sig:
		m.logger.Info("signal received", zap.String("signal", s.String()))
	case <-ctx.Done():
		m.logger.Info("context done")
	case cause = <-m.serveErr:
	}

	if err := m.Shutdown(context.Background()); err != nil {
		m.logger.Error("shutdown", zap.Error(err))
	}
	return cause
}

// Run Start + WaitForShutdown
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Start(); err != nil {
		return err
	}
	return m.WaitForShutdown(ctx)
}

// Addr 实际监听地址；未启动时返回配置地址
func (m *Manager) Addr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ln != nil {
		return m.ln.Addr().String()
	}
	return m.cfg.Addr
}

// IsRunning 已监听且未关闭
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ln != nil && !m.closed
}
