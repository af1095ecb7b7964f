package server

import (
	"errors"
	"net"
	"sync"

	"go.uber.org/atomic"
)

// RuntimeHandle carries the running flag and the listening socket. It is the
// only thing a signal handler needs to stop the server.
type RuntimeHandle struct {
	running  atomic.Bool
	stopping atomic.Bool

	mutex    sync.Mutex
	listener net.Listener
}

// attach records ln. A handle that was already shut down closes it at once.
func (r *RuntimeHandle) attach(ln net.Listener) {
	r.mutex.Lock()
	r.listener = ln
	r.mutex.Unlock()
	r.running.Store(true)

	if r.stopping.Load() {
		_ = ln.Close()
	}
}

// Running reports whether the accept loop should keep going.
func (r *RuntimeHandle) Running() bool {
	return r.running.Load() && !r.stopping.Load()
}

// Stopping reports whether Shutdown has been called.
func (r *RuntimeHandle) Stopping() bool {
	return r.stopping.Load()
}

// Shutdown clears the running flag and closes the listener, which unblocks a
// pending Accept. Only the first call has an effect.
func (r *RuntimeHandle) Shutdown() error {
	if r.stopping.Swap(true) {
		return nil
	}
	r.running.Store(false)

	r.mutex.Lock()
	ln := r.listener
	r.mutex.Unlock()

	if ln == nil {
		return nil
	}
	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
