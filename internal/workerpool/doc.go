// Package workerpool runs a fixed number of goroutines that take accepted
// connections off a bounded queue and hand each one to a connection handler.
// Workers stop cooperatively when their context ends; a connection already
// being handled is finished first.
package workerpool
