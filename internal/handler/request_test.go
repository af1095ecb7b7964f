package handler_test

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/fileserver/internal/handler"
)

var _ = Describe("ParseRequestLine", func() {
	It("should parse a valid HTTP/1.1 line", func() {
		req, err := handler.ParseRequestLine("GET /index.html HTTP/1.1\r\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(req).To(Equal(handler.RequestLine{Method: "GET", Target: "/index.html", Version: handler.HTTP11}))
	})

	It("should accept HTTP/1.0 and a bare LF", func() {
		req, err := handler.ParseRequestLine("GET / HTTP/1.0\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Version).To(Equal(handler.HTTP10))
	})

	DescribeTable("should reject",
		func(line string, want error) {
			_, err := handler.ParseRequestLine(line)
			Expect(err).To(MatchError(handler.ErrBadRequest))
			Expect(err).To(MatchError(want))
		},
		Entry("POST", "POST /x HTTP/1.1", handler.ErrMethodNotAllowed),
		Entry("lowercase method", "get /x HTTP/1.1", handler.ErrMethodNotAllowed),
		Entry("missing version", "GET /x", handler.ErrMalformedRequest),
		Entry("extra token", "GET /x HTTP/1.1 extra", handler.ErrMalformedRequest),
		Entry("double space", "GET  /x HTTP/1.1", handler.ErrMalformedRequest),
		Entry("HTTP/2", "GET /x HTTP/2.0", handler.ErrBadVersion),
		Entry("garbage version", "GET /x FOO", handler.ErrBadVersion),
		Entry("empty line", "", handler.ErrMethodNotAllowed),
	)
})

var _ = Describe("ResolveTarget", func() {
	root := filepath.FromSlash("/srv/www")

	DescribeTable("should map targets under the root",
		func(target, want string) {
			path, err := handler.ResolveTarget(target, root, "index.html")
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal(filepath.Join(root, filepath.FromSlash(want))))
		},
		Entry("root selects the default file", "/", "index.html"),
		Entry("plain file", "/style.css", "style.css"),
		Entry("nested file", "/img/logo.png", "img/logo.png"),
		Entry("query string dropped", "/page.html?v=2", "page.html"),
		Entry("query on root", "/?x=1", "index.html"),
		Entry("no leading slash", "a.txt", "a.txt"),
	)

	DescribeTable("should refuse traversal",
		func(target string) {
			_, err := handler.ResolveTarget(target, root, "index.html")
			Expect(err).To(MatchError(handler.ErrTraversal))
			Expect(err).To(MatchError(handler.ErrBadRequest))
		},
		Entry("parent of root", "/../etc/passwd"),
		Entry("inner parent", "/a/../b"),
		Entry("dots in name", "/notes..txt"),
	)
})
