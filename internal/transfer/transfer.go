package transfer

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"syscall"
)

// DefaultBlockSize is the read size used when a caller passes a non-positive one.
const DefaultBlockSize = 2048

var (
	crlf       = []byte("\r\n")
	terminator = []byte("0\r\n\r\n")
)

// Mode selects how a file body is framed on the wire.
type Mode string

const (
	ModeDirect  Mode = "direct"
	ModeChunked Mode = "chunked"
)

// Send dispatches to Direct or Chunked according to mode.
func Send(mode Mode, w io.Writer, header []byte, src io.Reader, blockSize int) (int64, error) {
	switch mode {
	case ModeChunked:
		return Chunked(w, header, src, blockSize)
	case ModeDirect, "":
		return Direct(w, header, src, blockSize)
	default:
		return 0, fmt.Errorf("unknown transfer mode %q", mode)
	}
}

// Direct writes header and then copies src to w in blocks of blockSize bytes.
// The returned count includes the header.
func Direct(w io.Writer, header []byte, src io.Reader, blockSize int) (int64, error) {
	cw := &countingWriter{w: w}

	if err := writeAll(cw, header); err != nil {
		return cw.n, fmt.Errorf("send header: %w", err)
	}

	buf := make([]byte, normalize(blockSize))
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if err := writeAll(cw, buf[:n]); err != nil {
				return cw.n, fmt.Errorf("send body: %w", err)
			}
		}
		if rerr == io.EOF {
			return cw.n, nil
		}
		if rerr != nil {
			return cw.n, fmt.Errorf("read body: %w", rerr)
		}
	}
}

// Chunked writes header and then src framed as HTTP/1.1 chunks of at most
// blockSize bytes, closed by a zero-length chunk. Nothing more is written
// once an error occurs, so a failed stream never carries the terminator.
func Chunked(w io.Writer, header []byte, src io.Reader, blockSize int) (int64, error) {
	cw := &countingWriter{w: w}

	if err := writeAll(cw, header); err != nil {
		return cw.n, fmt.Errorf("send header: %w", err)
	}

	buf := make([]byte, normalize(blockSize))
	size := make([]byte, 0, 16)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			size = strconv.AppendInt(size[:0], int64(n), 16)
			size = append(size, crlf...)
			if err := writeAll(cw, size); err != nil {
				return cw.n, fmt.Errorf("send chunk size: %w", err)
			}
			if err := writeAll(cw, buf[:n]); err != nil {
				return cw.n, fmt.Errorf("send chunk data: %w", err)
			}
			if err := writeAll(cw, crlf); err != nil {
				return cw.n, fmt.Errorf("send chunk trailer: %w", err)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return cw.n, fmt.Errorf("read body: %w", rerr)
		}
	}

	if err := writeAll(cw, terminator); err != nil {
		return cw.n, fmt.Errorf("send terminator: %w", err)
	}
	return cw.n, nil
}

// writeAll keeps writing until p is consumed, retrying interrupted and
// would-block writes. Any other error is returned as is.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		p = p[n:]
		if err == nil {
			if n == 0 {
				return io.ErrShortWrite
			}
			continue
		}
		if isTransient(err) {
			continue
		}
		return err
	}
	return nil
}

func isTransient(err error) bool {
	return errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK)
}

// IsClientDisconnect reports whether err means the peer went away mid-send.
func IsClientDisconnect(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}

func normalize(blockSize int) int {
	if blockSize <= 0 {
		return DefaultBlockSize
	}
	return blockSize
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
