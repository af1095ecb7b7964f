// Package server owns the listening socket and the accept loop of the file
// server. Accepted connections are pushed into a bounded queue that a
// worker pool drains; the accept loop blocks when the queue is full.
//
// Shutdown is cooperative: cancelling the Serve context, or calling
// RuntimeHandle.Shutdown, closes the listener, stops the workers at their
// next pop and closes every connection still waiting in the queue.
package server
