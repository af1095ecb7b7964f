package handler_test

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/fileserver/config"
	"github.com/angeloszaimis/fileserver/internal/handler"
	"github.com/angeloszaimis/fileserver/internal/metrics"
	"github.com/angeloszaimis/fileserver/pkg/logger"
)

const indexBody = "<html><body>home</body></html>"

// syncBuffer is a bytes.Buffer safe for the concurrent writes of a logger.
type syncBuffer struct {
	mutex sync.Mutex
	buf   bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.buf.String()
}

var _ = Describe("ConnectionHandler", func() {
	var (
		docRoot   string
		payload   []byte
		serverCfg config.ServerConfig
		xferCfg   config.TransferConfig
		listener  net.Listener
		collector *metrics.Collector
		connLog   *syncBuffer
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		docRoot = GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(docRoot, "index.html"), []byte(indexBody), 0o644)).To(Succeed())

		payload = make([]byte, 10_000)
		for i := range payload {
			payload[i] = byte(i % 251)
		}
		Expect(os.WriteFile(filepath.Join(docRoot, "data.bin"), payload, 0o644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(docRoot, "notes.txt"), []byte("plain"), 0o644)).To(Succeed())
		Expect(os.Mkdir(filepath.Join(docRoot, "dir"), 0o755)).To(Succeed())

		serverCfg = config.ServerConfig{
			DocumentRoot:   docRoot,
			DefaultFile:    "index.html",
			ReadTimeout:    "200ms",
			WriteTimeout:   "2s",
			MaxRequestLine: 256,
		}
		xferCfg = config.TransferConfig{Mode: config.ModeDirect, BlockSize: 512}
		connLog = &syncBuffer{}
	})

	JustBeforeEach(func() {
		var err error
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		collector = metrics.NewCollector(64, logger.Discard())
		collector.Start(ctx)

		h := handler.NewConnectionHandler(logger.Discard(), handler.Loggers{
			Connections: logger.NewWithWriter(connLog, config.LogLevelInfo, false, config.EnvProd),
		}, serverCfg, xferCfg, collector)

		go func() {
			for {
				conn, err := listener.Accept()
				if err != nil {
					return
				}
				go h.Handle(conn)
			}
		}()
	})

	AfterEach(func() {
		listener.Close()
		cancel()
	})

	dial := func() net.Conn {
		conn, err := net.Dial("tcp", listener.Addr().String())
		Expect(err).NotTo(HaveOccurred())
		Expect(conn.SetDeadline(time.Now().Add(5 * time.Second))).To(Succeed())
		return conn
	}

	// raw sends request and returns everything the server wrote before closing.
	raw := func(request string) []byte {
		conn := dial()
		defer conn.Close()

		if request != "" {
			_, err := io.WriteString(conn, request)
			Expect(err).NotTo(HaveOccurred())
		}

		out, err := io.ReadAll(conn)
		Expect(err).NotTo(HaveOccurred())
		return out
	}

	get := func(request string) (*http.Response, []byte) {
		resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw(request))), nil)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp, body
	}

	Context("in direct mode", func() {
		It("should serve a file with Content-Length", func() {
			resp, body := get("GET /data.bin HTTP/1.1\r\nHost: x\r\n\r\n")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Status).To(Equal("200 OK"))
			Expect(resp.ContentLength).To(BeEquivalentTo(len(payload)))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/octet-stream"))
			Expect(resp.Close).To(BeTrue())
			Expect(bytes.Equal(body, payload)).To(BeTrue())
		})

		It("should serve the default file for the root", func() {
			resp, body := get("GET / HTTP/1.1\r\n\r\n")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/html"))
			Expect(string(body)).To(Equal(indexBody))
		})

		It("should ignore the query string", func() {
			resp, body := get("GET /notes.txt?v=1 HTTP/1.1\r\n\r\n")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/plain"))
			Expect(string(body)).To(Equal("plain"))
		})

		It("should assemble a request line split across writes", func() {
			conn := dial()
			defer conn.Close()

			_, err := io.WriteString(conn, "GET /note")
			Expect(err).NotTo(HaveOccurred())
			time.Sleep(20 * time.Millisecond)
			_, err = io.WriteString(conn, "s.txt HTTP/1.1\r\n\r\n")
			Expect(err).NotTo(HaveOccurred())

			out, err := io.ReadAll(conn)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(out)).To(HavePrefix("HTTP/1.1 200 OK\r\n"))
			Expect(string(out)).To(HaveSuffix("\r\n\r\nplain"))
		})

		It("should serve identical bytes to concurrent clients", func() {
			var wg sync.WaitGroup
			bodies := make([][]byte, 4)

			for i := range bodies {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					_, bodies[i] = get("GET /data.bin HTTP/1.1\r\n\r\n")
				}(i)
			}
			wg.Wait()

			for _, body := range bodies {
				Expect(bytes.Equal(body, payload)).To(BeTrue())
			}
		})
	})

	Context("in chunked mode", func() {
		BeforeEach(func() {
			xferCfg.Mode = config.ModeChunked
		})

		It("should frame the body in chunks", func() {
			out := raw("GET /data.bin HTTP/1.1\r\n\r\n")
			Expect(string(out)).To(ContainSubstring("Transfer-Encoding: chunked\r\n"))
			Expect(string(out)).NotTo(ContainSubstring("Content-Length"))
			Expect(string(out)).To(ContainSubstring("\r\n\r\n200\r\n"))
			Expect(string(out)).To(HaveSuffix("\r\n0\r\n\r\n"))

			resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(out)), nil)
			Expect(err).NotTo(HaveOccurred())
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(bytes.Equal(body, payload)).To(BeTrue())
		})

		It("should fall back to direct transfer for HTTP/1.0 clients", func() {
			resp, body := get("GET /data.bin HTTP/1.0\r\n\r\n")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.TransferEncoding).To(BeEmpty())
			Expect(resp.ContentLength).To(BeEquivalentTo(len(payload)))
			Expect(bytes.Equal(body, payload)).To(BeTrue())
		})
	})

	Context("with a bad request", func() {
		DescribeTable("should answer 400",
			func(request string) {
				resp, body := get(request)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(resp.Status).To(Equal("400 BAD REQUEST"))
				Expect(resp.Header.Get("Content-Type")).To(Equal("text/html"))
				Expect(string(body)).To(ContainSubstring("400 Bad Request"))
			},
			Entry("unsupported method", "POST /index.html HTTP/1.1\r\n\r\n"),
			Entry("missing version", "GET /index.html\r\n\r\n"),
			Entry("unsupported version", "GET /index.html HTTP/2.0\r\n\r\n"),
			Entry("traversal", "GET /../etc/passwd HTTP/1.1\r\n\r\n"),
			Entry("inner traversal", "GET /dir/../index.html HTTP/1.1\r\n\r\n"),
			Entry("line without terminator over the limit", strings.Repeat("A", 1000)),
			Entry("terminated line over the limit", "GET /"+strings.Repeat("a", 400)+" HTTP/1.1\r\n\r\n"),
		)

		It("should answer 400 when the client closes without sending", func() {
			conn := dial()
			defer conn.Close()
			Expect(conn.(*net.TCPConn).CloseWrite()).To(Succeed())

			out, err := io.ReadAll(conn)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(out)).To(HavePrefix("HTTP/1.1 400 BAD REQUEST\r\n"))
		})

		It("should answer 400 when the client closes mid-line", func() {
			conn := dial()
			defer conn.Close()
			_, err := io.WriteString(conn, "GET /index.html")
			Expect(err).NotTo(HaveOccurred())
			Expect(conn.(*net.TCPConn).CloseWrite()).To(Succeed())

			out, err := io.ReadAll(conn)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(out)).To(HavePrefix("HTTP/1.1 400 BAD REQUEST\r\n"))
		})
	})

	Context("with a missing resource", func() {
		DescribeTable("should answer 404",
			func(request string) {
				resp, body := get(request)
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				Expect(resp.Status).To(Equal("404 NOT FOUND"))
				Expect(string(body)).To(ContainSubstring("404 Not Found"))
			},
			Entry("unknown file", "GET /nope.html HTTP/1.1\r\n\r\n"),
			Entry("directory", "GET /dir HTTP/1.1\r\n\r\n"),
		)

		It("should record the status in metrics", func() {
			get("GET /nope.html HTTP/1.1\r\n\r\n")
			Eventually(func() int64 {
				return collector.Snapshot(config.ModeDirect).StatusCodes[http.StatusNotFound]
			}).Should(BeEquivalentTo(1))
		})
	})

	Context("with a resource that cannot be opened", func() {
		It("should answer 500 when a path component is a file", func() {
			resp, body := get("GET /notes.txt/inner HTTP/1.1\r\n\r\n")
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(resp.Status).To(Equal("500 INTERNAL SERVER ERROR"))
			Expect(string(body)).To(ContainSubstring("500 Internal Server Error"))
		})
	})

	Context("with a stalled client", func() {
		It("should answer 408 when nothing arrives", func() {
			start := time.Now()
			out := raw("")
			Expect(string(out)).To(HavePrefix("HTTP/1.1 408 REQUEST TIMEOUT\r\n"))
			Expect(time.Since(start)).To(BeNumerically(">=", 150*time.Millisecond))
		})

		It("should answer 408 when the line stalls halfway", func() {
			out := raw("GET /index")
			Expect(string(out)).To(HavePrefix("HTTP/1.1 408 REQUEST TIMEOUT\r\n"))
		})
	})

	It("should write one connection log line per request", func() {
		get("GET /notes.txt HTTP/1.1\r\n\r\n")
		Eventually(connLog.String).Should(ContainSubstring(`"status":200`))
		Expect(connLog.String()).To(ContainSubstring(`"target":"/notes.txt"`))
	})
})
