package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/angeloszaimis/fileserver/config"
	"github.com/angeloszaimis/fileserver/internal/backend"
	"github.com/angeloszaimis/fileserver/internal/circuitbreaker"
	"github.com/angeloszaimis/fileserver/internal/loadbalancer"
	"github.com/angeloszaimis/fileserver/internal/strategy"
	"github.com/angeloszaimis/fileserver/pkg/logger"
)

func selectCommand() *cli.Command {
	return &cli.Command{
		Name:  "select",
		Usage: "print the backend that should take the next job",
		Flags: []cli.Flag{
			configFlag,
			&cli.StringFlag{Name: "pick", Usage: "choice inside a tier: random or round-robin"},
			&cli.BoolFlag{Name: "status", Usage: "also print every backend with its load and tier"},
		},
		Action: func(cCtx *cli.Context) error {
			cfg, err := loadConfig(cCtx, map[string]string{
				"pick": "selector.pick",
			})
			if err != nil {
				return err
			}

			log := logger.New(cfg.Logging.Level, false, cfg.Logging.Environment)

			return runSelect(cCtx.Context, cfg, log, cCtx.Bool("status"), cCtx.App.Writer)
		},
	}
}

func runSelect(ctx context.Context, cfg *config.Config, log *slog.Logger, status bool, w io.Writer) error {
	backends, err := initializeBackends(cfg, log)
	if err != nil {
		return err
	}
	if len(backends) == 0 {
		return errors.New("no backends configured")
	}

	strat, err := strategy.NewLoadTier(cfg.Selector.Pick)
	if err != nil {
		return err
	}
	lb := loadbalancer.NewLoadBalancer(strat)

	chosen, err := lb.Select(ctx, backends)
	if err != nil {
		return err
	}

	if status {
		for _, st := range lb.Statuses(backends) {
			fmt.Fprintf(w, "%-24s cores=%-3d load=%6.2f tier=%s\n", st.Host, st.Cores, st.Load, st.Tier)
		}
	}
	fmt.Fprintln(w, chosen.Host())
	return nil
}

// initializeBackends builds one backend per configured server. A server
// with a static load uses it; the others sample the local proc filesystem
// behind a circuit breaker.
func initializeBackends(cfg *config.Config, log *slog.Logger) ([]*backend.Backend, error) {
	registry := circuitbreaker.NewRegistry(cfg.Selector.BreakerThreshold, cfg.Selector.BreakerCooldownDuration())

	var proc backend.Sampler
	procSampler := func() backend.Sampler {
		if proc != nil {
			return proc
		}

		ps, err := backend.NewProcSampler(cfg.Selector.ProcMount)
		if err != nil {
			log.Warn("Load sampling unavailable, backends will be unmeasured",
				slog.String("mount", cfg.Selector.ProcMount),
				slog.Any("err", err))
			proc = backend.SamplerFunc(func(context.Context) (float64, error) {
				return 0, err
			})
			return proc
		}

		proc = ps
		return proc
	}

	backends := make([]*backend.Backend, 0, len(cfg.Backends))
	for _, bc := range cfg.Backends {
		if bc.Host == "" {
			return nil, fmt.Errorf("backend without host")
		}

		var sampler backend.Sampler
		if bc.Load != nil {
			sampler = backend.StaticSampler(*bc.Load)
		} else {
			sampler = circuitbreaker.Guard(procSampler(), registry.Breaker(bc.Host))
		}

		backends = append(backends, backend.New(bc.Host, bc.Cores, sampler))
	}

	return backends, nil
}
