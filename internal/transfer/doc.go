// Package transfer writes a response header followed by a file body to a
// client connection, either as raw fixed-size blocks or framed with HTTP/1.1
// chunked transfer coding.
package transfer
