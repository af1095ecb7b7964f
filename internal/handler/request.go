package handler

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	MethodGet = "GET"
	HTTP10    = "HTTP/1.0"
	HTTP11    = "HTTP/1.1"
)

var (
	// ErrBadRequest is the root of every error answered with 400.
	ErrBadRequest = errors.New("bad request")

	ErrMalformedRequest = fmt.Errorf("%w: malformed request line", ErrBadRequest)
	ErrMethodNotAllowed = fmt.Errorf("%w: only GET is supported", ErrBadRequest)
	ErrBadVersion       = fmt.Errorf("%w: unsupported HTTP version", ErrBadRequest)
	ErrTraversal        = fmt.Errorf("%w: path traversal", ErrBadRequest)
	ErrLineTooLong      = fmt.Errorf("%w: request line too long", ErrBadRequest)
	ErrEmptyRequest     = fmt.Errorf("%w: empty request", ErrBadRequest)
	ErrIncompleteLine   = fmt.Errorf("%w: connection closed before end of line", ErrBadRequest)
	ErrReadFailed       = fmt.Errorf("%w: read failed", ErrBadRequest)

	// ErrTimeout is answered with 408.
	ErrTimeout = errors.New("request timeout")
)

// RequestLine is the parsed first line of a request.
type RequestLine struct {
	Method  string
	Target  string
	Version string
}

// ParseRequestLine parses `GET SP target SP version`. line may still carry
// its trailing CR or LF.
func ParseRequestLine(line string) (RequestLine, error) {
	line = strings.TrimRight(line, "\r\n")

	if !strings.HasPrefix(line, MethodGet+" ") {
		return RequestLine{}, fmt.Errorf("%w: %q", ErrMethodNotAllowed, firstToken(line))
	}

	parts := strings.Split(line, " ")
	if len(parts) != 3 || parts[1] == "" {
		return RequestLine{}, ErrMalformedRequest
	}

	req := RequestLine{
		Method:  parts[0],
		Target:  parts[1],
		Version: parts[2],
	}

	if req.Version != HTTP10 && req.Version != HTTP11 {
		return RequestLine{}, fmt.Errorf("%w: %q", ErrBadVersion, req.Version)
	}

	return req, nil
}

// ResolveTarget maps a request target to a file path under root. The query
// string is dropped, one leading slash is stripped and any target containing
// ".." is refused outright. An empty path selects defaultFile.
//
// The ".." check is a coarse guard, not canonicalization: symlinks inside
// root are followed.
func ResolveTarget(target, root, defaultFile string) (string, error) {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		target = target[:i]
	}

	rel := strings.TrimPrefix(target, "/")
	if strings.Contains(rel, "..") {
		return "", ErrTraversal
	}

	if rel == "" {
		rel = defaultFile
	}

	return filepath.Join(root, filepath.FromSlash(rel)), nil
}

func firstToken(line string) string {
	if i := strings.IndexByte(line, ' '); i >= 0 {
		return line[:i]
	}
	if len(line) > 16 {
		return line[:16]
	}
	return line
}
