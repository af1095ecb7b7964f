// Package httpserver runs the optional admin endpoint that exposes the
// file server's metrics snapshot and a liveness probe over net/http.
package httpserver
