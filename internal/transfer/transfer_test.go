package transfer_test

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http/httputil"
	"strings"
	"syscall"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/fileserver/internal/transfer"
)

var header = []byte("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\n\r\n")

// failingWriter accepts limit bytes and then fails every write with err.
type failingWriter struct {
	buf   bytes.Buffer
	limit int
	err   error
}

func (f *failingWriter) Write(p []byte) (int, error) {
	room := f.limit - f.buf.Len()
	if room <= 0 {
		return 0, f.err
	}
	if len(p) > room {
		f.buf.Write(p[:room])
		return room, f.err
	}
	return f.buf.Write(p)
}

// flakyWriter returns EINTR on every other call before writing.
type flakyWriter struct {
	buf   bytes.Buffer
	calls int
}

func (f *flakyWriter) Write(p []byte) (int, error) {
	f.calls++
	if f.calls%2 == 1 {
		return 0, syscall.EINTR
	}
	return f.buf.Write(p)
}

// dechunk parses body with the standard library chunked reader and also
// checks every chunk length against max.
func dechunk(body []byte, max int) []byte {
	r := bufio.NewReader(bytes.NewReader(body))
	var out bytes.Buffer
	for {
		line, err := r.ReadString('\n')
		Expect(err).NotTo(HaveOccurred())
		var size int
		_, err = fmt.Sscanf(strings.TrimSpace(line), "%x", &size)
		Expect(err).NotTo(HaveOccurred())
		Expect(size).To(BeNumerically("<=", max))
		if size == 0 {
			rest, _ := io.ReadAll(r)
			Expect(string(rest)).To(Equal("\r\n"))
			break
		}
		chunk := make([]byte, size)
		_, err = io.ReadFull(r, chunk)
		Expect(err).NotTo(HaveOccurred())
		out.Write(chunk)
		trailer := make([]byte, 2)
		_, err = io.ReadFull(r, trailer)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(trailer)).To(Equal("\r\n"))
	}

	std, err := io.ReadAll(httputil.NewChunkedReader(bytes.NewReader(body)))
	Expect(err).NotTo(HaveOccurred())
	Expect(bytes.Equal(std, out.Bytes())).To(BeTrue())
	return append([]byte{}, out.Bytes()...)
}

var _ = Describe("Transfer", func() {
	payload := bytes.Repeat([]byte("0123456789abcdef"), 1000)

	Describe("Direct", func() {
		It("should write the header followed by the body", func() {
			var out bytes.Buffer
			n, err := transfer.Direct(&out, header, bytes.NewReader(payload), 512)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(len(header) + len(payload))))
			Expect(out.Bytes()[:len(header)]).To(Equal(header))
			Expect(out.Bytes()[len(header):]).To(Equal(payload))
		})

		It("should handle an empty body", func() {
			var out bytes.Buffer
			_, err := transfer.Direct(&out, header, bytes.NewReader(nil), 512)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Bytes()).To(Equal(header))
		})

		It("should retry interrupted writes", func() {
			w := &flakyWriter{}
			_, err := transfer.Direct(w, header, bytes.NewReader(payload), 1024)
			Expect(err).NotTo(HaveOccurred())
			Expect(w.buf.Len()).To(Equal(len(header) + len(payload)))
		})

		It("should stop on a hard write error", func() {
			w := &failingWriter{limit: len(header) + 100, err: syscall.EPIPE}
			n, err := transfer.Direct(w, header, bytes.NewReader(payload), 256)
			Expect(err).To(HaveOccurred())
			Expect(transfer.IsClientDisconnect(err)).To(BeTrue())
			Expect(n).To(Equal(int64(len(header) + 100)))
		})

		It("should report read failures", func() {
			var out bytes.Buffer
			src := io.MultiReader(bytes.NewReader(payload[:10]), errReader{errors.New("disk gone")})
			_, err := transfer.Direct(&out, header, src, 256)
			Expect(err).To(MatchError(ContainSubstring("disk gone")))
			Expect(transfer.IsClientDisconnect(err)).To(BeFalse())
		})
	})

	Describe("Chunked", func() {
		DescribeTable("reassembles to the original bytes",
			func(size, block int) {
				var out bytes.Buffer
				_, err := transfer.Chunked(&out, header, bytes.NewReader(payload[:size]), block)
				Expect(err).NotTo(HaveOccurred())
				Expect(out.Bytes()[:len(header)]).To(Equal(header))

				body := out.Bytes()[len(header):]
				Expect(bytes.HasSuffix(body, []byte("0\r\n\r\n"))).To(BeTrue())
				Expect(dechunk(body, block)).To(Equal(payload[:size]))
			},
			Entry("empty body", 0, 2048),
			Entry("smaller than a block", 100, 2048),
			Entry("exact block multiple", 4096, 2048),
			Entry("uneven tail", 16000, 2048),
			Entry("tiny blocks", 1000, 7),
		)

		It("should write lowercase hexadecimal sizes", func() {
			var out bytes.Buffer
			_, err := transfer.Chunked(&out, nil, bytes.NewReader(payload[:255]), 2048)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.String()).To(HavePrefix("ff\r\n"))
		})

		It("should not write the terminator after a failure", func() {
			w := &failingWriter{limit: len(header) + 50, err: syscall.ECONNRESET}
			_, err := transfer.Chunked(w, header, bytes.NewReader(payload), 2048)
			Expect(err).To(HaveOccurred())
			Expect(transfer.IsClientDisconnect(err)).To(BeTrue())
			Expect(bytes.HasSuffix(w.buf.Bytes(), []byte("0\r\n\r\n"))).To(BeFalse())
		})

		It("should fail when the header cannot be sent", func() {
			w := &failingWriter{limit: 0, err: errors.New("boom")}
			n, err := transfer.Chunked(w, header, bytes.NewReader(payload), 2048)
			Expect(err).To(MatchError(ContainSubstring("send header")))
			Expect(n).To(BeZero())
		})
	})

	Describe("Send", func() {
		It("should dispatch by mode", func() {
			var direct, chunked bytes.Buffer
			_, err := transfer.Send(transfer.ModeDirect, &direct, nil, strings.NewReader("abc"), 0)
			Expect(err).NotTo(HaveOccurred())
			_, err = transfer.Send(transfer.ModeChunked, &chunked, nil, strings.NewReader("abc"), 0)
			Expect(err).NotTo(HaveOccurred())

			Expect(direct.String()).To(Equal("abc"))
			Expect(chunked.String()).To(Equal("3\r\nabc\r\n0\r\n\r\n"))
		})

		It("should reject unknown modes", func() {
			_, err := transfer.Send("gzip", io.Discard, nil, strings.NewReader("abc"), 0)
			Expect(err).To(HaveOccurred())
		})
	})
})

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }
