package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/angeloszaimis/fileserver/config"
	"github.com/angeloszaimis/fileserver/internal/metrics"
	"github.com/angeloszaimis/fileserver/internal/mimetype"
	"github.com/angeloszaimis/fileserver/internal/transfer"
)

const (
	// lingerTimeout bounds how long unread request bytes are drained before
	// close, so the peer sees a FIN rather than a reset.
	lingerTimeout = 250 * time.Millisecond
	lingerLimit   = 64 << 10
)

// Loggers are the append-only sinks a handler writes to besides the
// application logger.
type Loggers struct {
	Errors      *slog.Logger
	Connections *slog.Logger
}

type ConnectionHandler struct {
	logger           *slog.Logger
	loggers          Loggers
	metricsCollector *metrics.Collector

	documentRoot   string
	defaultFile    string
	readTimeout    time.Duration
	writeTimeout   time.Duration
	maxRequestLine int
	mode           transfer.Mode
	blockSize      int
}

// outcome is what one connection ended with, for logging and metrics.
type outcome struct {
	request RequestLine
	status  int
	bytes   int64
	err     error
	// sendErr marks a response that did not reach the client in full.
	sendErr bool
}

func NewConnectionHandler(logger *slog.Logger, loggers Loggers, server config.ServerConfig, xfer config.TransferConfig, collector *metrics.Collector) *ConnectionHandler {
	if loggers.Errors == nil {
		loggers.Errors = logger
	}
	if loggers.Connections == nil {
		loggers.Connections = logger
	}

	return &ConnectionHandler{
		logger:           logger,
		loggers:          loggers,
		metricsCollector: collector,
		documentRoot:     server.DocumentRoot,
		defaultFile:      server.DefaultFile,
		readTimeout:      server.ReadTimeoutDuration(),
		writeTimeout:     server.WriteTimeoutDuration(),
		maxRequestLine:   server.MaxRequestLine,
		mode:             transfer.Mode(xfer.Mode),
		blockSize:        xfer.BlockSize,
	}
}

// Handle serves exactly one request on conn and closes it. Errors never
// escape: each one is turned into a status response or, when the peer is
// gone, just logged.
func (h *ConnectionHandler) Handle(conn net.Conn) {
	start := time.Now()
	defer h.close(conn)

	out := h.serve(conn)
	duration := time.Since(start)

	attrs := []any{
		slog.String("remote", remoteAddr(conn)),
		slog.String("method", out.request.Method),
		slog.String("target", out.request.Target),
		slog.Int("status", out.status),
		slog.Int64("bytes", out.bytes),
		slog.Bool("aborted", out.sendErr),
		slog.Duration("duration", duration),
	}
	h.loggers.Connections.Info("Connection handled", attrs...)

	if out.err != nil {
		switch {
		case out.sendErr && transfer.IsClientDisconnect(out.err):
			h.loggers.Errors.Warn("Client disconnected during send", append(attrs, slog.Any("err", out.err))...)
		case out.sendErr:
			h.loggers.Errors.Error("Send failed", append(attrs, slog.Any("err", out.err))...)
		case out.status >= http.StatusInternalServerError:
			h.loggers.Errors.Error("Request failed", append(attrs, slog.Any("err", out.err))...)
		default:
			h.logger.Debug("Request rejected", append(attrs, slog.Any("err", out.err))...)
		}
	}

	if out.sendErr {
		h.metricsCollector.Emit(metrics.MetricEvent{
			Type:             metrics.EventSendFailed,
			Timestamp:        time.Now(),
			ClientDisconnect: transfer.IsClientDisconnect(out.err),
		})
	}

	h.metricsCollector.Emit(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Timestamp:  time.Now(),
		Duration:   duration,
		StatusCode: out.status,
		Bytes:      out.bytes,
	})
}

func (h *ConnectionHandler) serve(conn net.Conn) outcome {
	line, err := h.readRequestLine(conn)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return h.reject(conn, http.StatusRequestTimeout, RequestLine{}, err)
		}
		return h.reject(conn, http.StatusBadRequest, RequestLine{}, err)
	}

	req, err := ParseRequestLine(line)
	if err != nil {
		return h.reject(conn, http.StatusBadRequest, RequestLine{}, err)
	}

	path, err := ResolveTarget(req.Target, h.documentRoot, h.defaultFile)
	if err != nil {
		return h.reject(conn, http.StatusBadRequest, req, err)
	}

	file, info, err := openResource(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) || errors.Is(err, errIsDirectory) {
			return h.reject(conn, http.StatusNotFound, req, err)
		}
		return h.reject(conn, http.StatusInternalServerError, req, err)
	}
	defer file.Close()

	mode := h.mode
	// HTTP/1.0 clients do not understand chunked framing.
	if req.Version == HTTP10 {
		mode = transfer.ModeDirect
	}

	size := info.Size()
	if mode == transfer.ModeChunked {
		size = -1
	}

	w := &deadlineWriter{conn: conn, timeout: h.writeTimeout}
	n, err := transfer.Send(mode, w, okHeader(mimetype.TypeByPath(path), size), file, h.blockSize)
	if err != nil {
		out := outcome{request: req, status: http.StatusOK, bytes: n, err: err, sendErr: true}
		// Nothing reached the client yet, so a clean 500 is still possible.
		if n == 0 && !transfer.IsClientDisconnect(err) {
			out.status = http.StatusInternalServerError
			out.bytes, _ = h.write(conn, errorResponse(http.StatusInternalServerError))
		}
		return out
	}

	return outcome{request: req, status: http.StatusOK, bytes: n}
}

func (h *ConnectionHandler) reject(conn net.Conn, status int, req RequestLine, cause error) outcome {
	n, err := h.write(conn, errorResponse(status))
	if err != nil {
		return outcome{request: req, status: status, bytes: n, err: fmt.Errorf("%v; sending %d: %w", cause, status, err), sendErr: true}
	}
	return outcome{request: req, status: status, bytes: n, err: cause}
}

func (h *ConnectionHandler) write(conn net.Conn, p []byte) (int64, error) {
	w := &deadlineWriter{conn: conn, timeout: h.writeTimeout}
	n, err := w.Write(p)
	return int64(n), err
}

// readRequestLine reads until the first LF into a buffer of maxRequestLine
// bytes and returns the line without the LF.
func (h *ConnectionHandler) readRequestLine(conn net.Conn) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrReadFailed, err)
	}

	buf := make([]byte, h.maxRequestLine)
	filled := 0

	for filled < len(buf) {
		n, err := conn.Read(buf[filled:])
		if n > 0 {
			if i := bytes.IndexByte(buf[filled:filled+n], '\n'); i >= 0 {
				return string(buf[:filled+i]), nil
			}
			filled += n
		}

		if err != nil {
			switch {
			case isTimeout(err):
				return "", fmt.Errorf("%w after %d bytes", ErrTimeout, filled)
			case errors.Is(err, io.EOF) && filled == 0:
				return "", ErrEmptyRequest
			case errors.Is(err, io.EOF):
				return "", ErrIncompleteLine
			default:
				return "", fmt.Errorf("%w: %v", ErrReadFailed, err)
			}
		}
	}

	return "", ErrLineTooLong
}

// close half-closes the write side, drains what the client may still be
// sending and then releases the socket.
func (h *ConnectionHandler) close(conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err == nil {
			_ = tcp.SetReadDeadline(time.Now().Add(lingerTimeout))
			_, _ = io.Copy(io.Discard, io.LimitReader(tcp, lingerLimit))
		}
	}

	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		h.logger.Debug("Close failed", slog.Any("err", err))
	}
}

var errIsDirectory = errors.New("is a directory")

func openResource(path string) (*os.File, os.FileInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, err
	}

	if info.IsDir() {
		file.Close()
		return nil, nil, fmt.Errorf("%s: %w", path, errIsDirectory)
	}

	return file, info, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// deadlineWriter pushes the write deadline forward before every write, so a
// stalled client can hold a worker for at most timeout per block.
type deadlineWriter struct {
	conn    net.Conn
	timeout time.Duration
}

func (d *deadlineWriter) Write(p []byte) (int, error) {
	if d.timeout > 0 {
		if err := d.conn.SetWriteDeadline(time.Now().Add(d.timeout)); err != nil {
			return 0, err
		}
	}
	return d.conn.Write(p)
}
