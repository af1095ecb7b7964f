// Package queue implements a fixed-capacity FIFO shared between the accept
// loop and the worker pool. Producers block while the queue is full and
// consumers block while it is empty; nothing is ever dropped or resized.
package queue
