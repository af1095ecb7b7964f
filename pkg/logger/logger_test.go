package logger_test

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/fileserver/pkg/logger"
)

var _ = Describe("Logger", func() {
	Describe("New", func() {
		It("should create logger with info level", func() {
			log := logger.New("info", false, "dev")
			Expect(log).NotTo(BeNil())
		})

		It("should create logger with debug level", func() {
			log := logger.New("debug", false, "dev")
			Expect(log).NotTo(BeNil())
		})

		It("should create logger with warn level", func() {
			log := logger.New("warn", false, "dev")
			Expect(log).NotTo(BeNil())
		})

		It("should create logger with error level", func() {
			log := logger.New("error", false, "dev")
			Expect(log).NotTo(BeNil())
		})

		It("should default to info for invalid level", func() {
			log := logger.New("invalid", false, "dev")
			Expect(log).NotTo(BeNil())
		})

		It("should create prod logger", func() {
			log := logger.New("info", false, "prod")
			Expect(log).NotTo(BeNil())
		})

		It("should support addSource option", func() {
			log := logger.New("info", true, "dev")
			Expect(log).NotTo(BeNil())
		})

		It("should include environment attribute", func() {
			log := logger.New("info", false, "dev")
			Expect(log).NotTo(BeNil())

			// Logger should have default level behavior
			Expect(log.Enabled(context.Background(), slog.LevelInfo)).To(BeTrue())
			Expect(log.Enabled(context.Background(), slog.LevelDebug)).To(BeFalse())
		})

		It("should respect debug level", func() {
			log := logger.New("debug", false, "dev")

			Expect(log.Enabled(context.Background(), slog.LevelDebug)).To(BeTrue())
			Expect(log.Enabled(context.Background(), slog.LevelInfo)).To(BeTrue())
		})

		It("should respect warn level", func() {
			log := logger.New("warn", false, "dev")

			Expect(log.Enabled(context.Background(), slog.LevelInfo)).To(BeFalse())
			Expect(log.Enabled(context.Background(), slog.LevelWarn)).To(BeTrue())
		})

		It("should respect error level", func() {
			log := logger.New("error", false, "dev")

			Expect(log.Enabled(context.Background(), slog.LevelWarn)).To(BeFalse())
			Expect(log.Enabled(context.Background(), slog.LevelError)).To(BeTrue())
		})
	})

	Describe("NewWithWriter", func() {
		It("should write text records outside prod", func() {
			var buf bytes.Buffer
			log := logger.NewWithWriter(&buf, "info", false, "dev")
			log.Info("served", slog.Int("status", 200))

			Expect(buf.String()).To(ContainSubstring("msg=served"))
			Expect(buf.String()).To(ContainSubstring("status=200"))
			Expect(buf.String()).To(ContainSubstring("environment=dev"))
		})

		It("should write JSON records in prod", func() {
			var buf bytes.Buffer
			log := logger.NewWithWriter(&buf, "info", false, "prod")
			log.Info("served")

			Expect(buf.String()).To(ContainSubstring(`"msg":"served"`))
			Expect(buf.String()).To(ContainSubstring(`"environment":"prod"`))
		})
	})

	Describe("NewFile", func() {
		var dir string

		BeforeEach(func() {
			dir = GinkgoT().TempDir()
		})

		It("should append across reopen", func() {
			path := filepath.Join(dir, "connect.log")

			log, closer, err := logger.NewFile(path, "info")
			Expect(err).NotTo(HaveOccurred())
			log.Info("first")
			Expect(closer.Close()).To(Succeed())

			log, closer, err = logger.NewFile(path, "info")
			Expect(err).NotTo(HaveOccurred())
			log.Info("second")
			Expect(closer.Close()).To(Succeed())

			data, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring("msg=first"))
			Expect(string(data)).To(ContainSubstring("msg=second"))
		})

		It("should fail for an unwritable location", func() {
			_, _, err := logger.NewFile(filepath.Join(dir, "missing", "errors.log"), "info")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Discard", func() {
		It("should not be enabled at any level", func() {
			log := logger.Discard()
			Expect(log.Enabled(context.Background(), slog.LevelError)).To(BeFalse())
		})
	})
})
