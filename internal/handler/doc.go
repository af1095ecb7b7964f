// Package handler implements the per-connection request/response cycle of the
// file server. A ConnectionHandler reads one request line under a deadline,
// parses and validates it, resolves the target inside the document root and
// streams the file back, always closing the connection when done.
package handler
