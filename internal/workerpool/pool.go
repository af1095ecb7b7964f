package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/fileserver/internal/queue"
)

var ErrInvalidSize = errors.New("worker pool size must be positive")

type Handler interface {
	Handle(conn net.Conn)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(conn net.Conn)

func (f HandlerFunc) Handle(conn net.Conn) { f(conn) }

type Pool struct {
	size    int
	queue   *queue.Queue[net.Conn]
	handler Handler
	logger  *slog.Logger

	group   *errgroup.Group
	busy    atomic.Int64
	handled atomic.Int64
	panics  atomic.Int64
}

func New(size int, q *queue.Queue[net.Conn], h Handler, logger *slog.Logger) *Pool {
	return &Pool{
		size:    size,
		queue:   q,
		handler: h,
		logger:  logger,
	}
}

// Start launches the workers. It returns immediately; use Wait to join them.
func (p *Pool) Start(ctx context.Context) error {
	if p.size <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSize, p.size)
	}
	if p.group != nil {
		return errors.New("worker pool already started")
	}

	p.group = &errgroup.Group{}
	for id := range p.size {
		p.group.Go(func() error {
			p.worker(ctx, id)
			return nil
		})
	}

	p.logger.Info("Worker pool started", slog.Int("workers", p.size))
	return nil
}

// Wait blocks until every worker has returned.
func (p *Pool) Wait() error {
	if p.group == nil {
		return nil
	}
	err := p.group.Wait()
	p.logger.Info("Worker pool stopped", slog.Int64("handled", p.handled.Load()))
	return err
}

func (p *Pool) Size() int { return p.size }

// Busy reports how many workers are inside a handler right now.
func (p *Pool) Busy() int64 { return p.busy.Load() }

func (p *Pool) Handled() int64 { return p.handled.Load() }

func (p *Pool) Panics() int64 { return p.panics.Load() }

func (p *Pool) worker(ctx context.Context, id int) {
	for ctx.Err() == nil {
		conn, err := p.queue.Pop(ctx)
		if err != nil {
			p.logger.Debug("Worker exiting", slog.Int("worker", id))
			return
		}
		p.handle(id, conn)
	}
	p.logger.Debug("Worker exiting", slog.Int("worker", id))
}

// handle runs the handler for one connection. A panic is contained to that
// connection: it is logged, the connection closed and the worker keeps going.
func (p *Pool) handle(id int, conn net.Conn) {
	p.busy.Inc()
	defer func() {
		p.busy.Dec()
		p.handled.Inc()

		if r := recover(); r != nil {
			p.panics.Inc()
			p.logger.Error("Handler panicked",
				slog.Int("worker", id),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			conn.Close()
		}
	}()

	p.handler.Handle(conn)
}
