package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"go.uber.org/atomic"

	"github.com/angeloszaimis/fileserver/config"
	"github.com/angeloszaimis/fileserver/internal/metrics"
	"github.com/angeloszaimis/fileserver/internal/queue"
	"github.com/angeloszaimis/fileserver/internal/workerpool"
)

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

var (
	ErrAlreadyListening = errors.New("server already listening")
	ErrServerClosed     = errors.New("server closed")
)

type Option func(*Server)

// WithConnectionLogger sets the sink for one line per accepted connection.
func WithConnectionLogger(l *slog.Logger) Option {
	return func(s *Server) { s.connLogger = l }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metricsCollector = c }
}

type Server struct {
	cfg              *config.ServerConfig
	logger           *slog.Logger
	connLogger       *slog.Logger
	metricsCollector *metrics.Collector

	queue   *queue.Queue[net.Conn]
	pool    *workerpool.Pool
	runtime *RuntimeHandle

	listener net.Listener
	state    atomic.Int32
}

// New builds a server around cfg. The port write-back of Listen goes into
// cfg, so the caller sees the bound port.
func New(cfg *config.ServerConfig, h workerpool.Handler, logger *slog.Logger, opts ...Option) (*Server, error) {
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("%w: %d", workerpool.ErrInvalidSize, cfg.Workers)
	}
	if cfg.QueueCapacity <= 0 {
		return nil, fmt.Errorf("queue capacity must be positive: %d", cfg.QueueCapacity)
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		queue:   queue.New[net.Conn](cfg.QueueCapacity),
		runtime: &RuntimeHandle{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.connLogger == nil {
		s.connLogger = logger
	}

	s.pool = workerpool.New(cfg.Workers, s.queue, h, logger)
	return s, nil
}

// Listen binds and listens on the configured port. Port 0 picks a free port
// and stores it back in the configuration.
func (s *Server) Listen() error {
	if s.State() != StateCreated {
		return ErrAlreadyListening
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", net.JoinHostPort("", strconv.Itoa(s.cfg.Port)))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.cfg.Port, err)
	}
	s.setState(StateBound)

	if addr, ok := ln.Addr().(*net.TCPAddr); ok && s.cfg.Port == 0 {
		s.cfg.Port = addr.Port
	}

	s.listener = ln
	s.runtime.attach(ln)
	s.setState(StateListening)

	s.logger.Info("Listening", slog.Int("port", s.cfg.Port))
	return nil
}

// Serve runs the worker pool and the accept loop until ctx ends or the
// runtime handle is shut down. It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context) error {
	switch s.State() {
	case StateCreated:
		if err := s.Listen(); err != nil {
			return err
		}
	case StateListening:
	default:
		return ErrServerClosed
	}

	poolCtx, cancelPool := context.WithCancel(ctx)
	defer cancelPool()

	if err := s.pool.Start(poolCtx); err != nil {
		_ = s.runtime.Shutdown()
		s.setState(StateStopped)
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		if err := s.runtime.Shutdown(); err != nil {
			s.logger.Error("Failed to close listener", slog.Any("err", err))
		}
	})
	defer stop()

	s.setState(StateAccepting)
	s.acceptLoop(ctx)

	s.setState(StateShuttingDown)
	s.logger.Info("Shutting down", slog.Int("queued", s.queue.Len()))

	if err := s.runtime.Shutdown(); err != nil {
		s.logger.Error("Failed to close listener", slog.Any("err", err))
	}

	cancelPool()
	if err := s.pool.Wait(); err != nil {
		s.logger.Error("Worker pool error", slog.Any("err", err))
	}

	dropped := s.drain()
	s.setState(StateStopped)
	s.logger.Info("Server stopped", slog.Int("dropped", dropped))
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	var delay time.Duration

	for s.runtime.Running() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.runtime.Stopping() || errors.Is(err, net.ErrClosed) {
				return
			}

			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay = min(delay*2, maxAcceptDelay)
			}
			s.logger.Error("Accept failed",
				slog.Any("err", err),
				slog.Duration("retry_in", delay),
			)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			continue
		}
		delay = 0

		s.connLogger.Info("Connection accepted", slog.String("remote", conn.RemoteAddr().String()))
		s.metricsCollector.Emit(metrics.MetricEvent{
			Type:      metrics.EventConnectionAccepted,
			Timestamp: time.Now(),
		})

		// Blocks while every slot is taken.
		if err := s.queue.Push(ctx, conn); err != nil {
			conn.Close()
			return
		}
	}
}

// drain closes every connection still waiting in the queue.
func (s *Server) drain() int {
	n := 0
	for {
		conn, ok := s.queue.TryPop()
		if !ok {
			return n
		}
		conn.Close()
		n++
	}
}

// Shutdown stops the server. It is the same as RuntimeHandle().Shutdown().
func (s *Server) Shutdown() error {
	return s.runtime.Shutdown()
}

func (s *Server) RuntimeHandle() *RuntimeHandle { return s.runtime }

func (s *Server) Port() int { return s.cfg.Port }

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) State() State { return State(s.state.Load()) }

// Pending reports how many accepted connections wait for a worker.
func (s *Server) Pending() int { return s.queue.Len() }

// Pool exposes the worker pool for introspection.
func (s *Server) Pool() *workerpool.Pool { return s.pool }

func (s *Server) setState(st State) {
	s.state.Store(int32(st))
	s.logger.Debug("Server state changed", slog.String("state", st.String()))
}
