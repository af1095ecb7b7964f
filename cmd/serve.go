package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/fileserver/config"
	"github.com/angeloszaimis/fileserver/internal/handler"
	"github.com/angeloszaimis/fileserver/internal/healthcheck"
	"github.com/angeloszaimis/fileserver/internal/httpserver"
	"github.com/angeloszaimis/fileserver/internal/loadbalancer"
	"github.com/angeloszaimis/fileserver/internal/metrics"
	"github.com/angeloszaimis/fileserver/internal/server"
	"github.com/angeloszaimis/fileserver/internal/strategy"
	"github.com/angeloszaimis/fileserver/pkg/logger"
)

const metricsBufferSize = 1000

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve files from the document root",
		Flags: []cli.Flag{
			configFlag,
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "TCP port to listen on, 0 picks a free one"},
			&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "number of worker goroutines"},
			&cli.StringFlag{Name: "root", Aliases: []string{"r"}, Usage: "document root directory"},
			&cli.StringFlag{Name: "default-file", Usage: "file served for /"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Usage: "transfer mode: direct or chunked"},
		},
		Action: func(cCtx *cli.Context) error {
			cfg, err := loadConfig(cCtx, map[string]string{
				"port":         "server.port",
				"workers":      "server.workers",
				"root":         "server.document_root",
				"default-file": "server.default_file",
				"mode":         "transfer.mode",
			})
			if err != nil {
				return err
			}

			log := logger.New(cfg.Logging.Level, true, cfg.Logging.Environment)

			ctx, cancel := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return runServe(ctx, cfg, log, nil)
		},
	}
}

// loadConfig reads the configuration, letting every flag that was set on
// the command line override the key it maps to.
func loadConfig(cCtx *cli.Context, overrides map[string]string) (*config.Config, error) {
	v := viper.New()
	for flag, key := range overrides {
		if cCtx.IsSet(flag) {
			v.Set(key, cCtx.Value(flag))
		}
	}
	return config.LoadWith(v, cCtx.String(configFlag.Name))
}

// runServe starts the file server and, when configured, the admin endpoint
// and backend load watchers. It returns once ctx ends and everything has
// stopped. ready, if set, is called once the listener is bound.
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger, ready func(*server.Server)) error {
	sinks, closeSinks := openLogSinks(cfg.Logging, log)
	defer closeSinks()

	collector := metrics.NewCollector(metricsBufferSize, log)
	collector.Start(ctx)

	h := handler.NewConnectionHandler(log, sinks, cfg.Server, cfg.Transfer, collector)

	srv, err := server.New(&cfg.Server, h, log,
		server.WithConnectionLogger(sinks.Connections),
		server.WithMetrics(collector),
	)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	if err := srv.Listen(); err != nil {
		return err
	}

	backends, err := initializeBackends(cfg, log)
	if err != nil {
		srv.Shutdown()
		return err
	}
	healthcheck.WatchAll(ctx, backends, cfg.Selector.SampleIntervalDuration(), log)

	strat, err := strategy.NewLoadTier(cfg.Selector.Pick)
	if err != nil {
		srv.Shutdown()
		return err
	}
	lb := loadbalancer.NewLoadBalancer(strat)

	var admin *httpserver.Server
	if cfg.Metrics.Address != "" {
		admin, err = httpserver.New(cfg.Metrics.Address, setupRouter(collector, lb, backends, cfg.Transfer.Mode))
		if err != nil {
			srv.Shutdown()
			return fmt.Errorf("create admin server: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Serve(gctx)
	})

	if admin != nil {
		g.Go(func() error {
			log.Info("Admin endpoint listening", slog.String("addr", cfg.Metrics.Address))
			return admin.Run(gctx)
		})
	}

	log.Info("File server started",
		slog.Int("port", srv.Port()),
		slog.Int("workers", cfg.Server.Workers),
		slog.String("root", cfg.Server.DocumentRoot),
		slog.String("mode", cfg.Transfer.Mode),
	)
	if ready != nil {
		ready(srv)
	}

	if err := g.Wait(); err != nil {
		log.Error("Server stopped with error", slog.Any("err", err))
		return err
	}

	snap := collector.Snapshot(cfg.Transfer.Mode)
	log.Info("Shut down gracefully",
		slog.Int64("connections", snap.Connections),
		slog.Int64("responses", snap.Responses),
	)
	return nil
}

// openLogSinks opens the error and connection logs. A sink that cannot be
// opened falls back to the console logger.
func openLogSinks(cfg config.LoggingConfig, log *slog.Logger) (handler.Loggers, func()) {
	var closers []io.Closer

	open := func(path, name string) *slog.Logger {
		if path == "" {
			return log
		}

		l, closer, err := logger.NewFile(path, cfg.Level)
		if err != nil {
			log.Warn("Cannot open log file, using console",
				slog.String("log", name),
				slog.String("path", path),
				slog.Any("err", err))
			return log
		}

		closers = append(closers, closer)
		return l
	}

	sinks := handler.Loggers{
		Errors:      open(cfg.ErrorLog, "error"),
		Connections: open(cfg.ConnectionLog, "connection"),
	}

	return sinks, func() {
		for _, c := range closers {
			c.Close()
		}
	}
}
