package healthcheck

import (
	"context"
	"log/slog"
	"time"

	"github.com/angeloszaimis/fileserver/internal/backend"
	"github.com/angeloszaimis/fileserver/internal/strategy"
)

const defaultInterval = 10 * time.Second

// HealthCheck samples b every interval until ctx ends. The first sample is
// taken immediately. A non-positive interval uses the default.
func HealthCheck(
	ctx context.Context,
	b *backend.Backend,
	interval time.Duration,
	logger *slog.Logger,
) {
	if interval <= 0 {
		interval = defaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	previous, measured, known := lastState(b)

	for {
		load := b.SampleLoad(ctx)
		tier := strategy.Classify(load)
		up := load != backend.Unmeasured

		switch {
		case !known:
			logger.Info("Backend sampled",
				slog.String("server", b.Host()),
				slog.Float64("load", load),
				slog.String("tier", tier.String()))
		case !up && measured:
			logger.Warn("Server is down",
				slog.String("server", b.Host()),
				slog.String("from", previous.String()))
		case up && !measured:
			logger.Info("Server is back",
				slog.String("server", b.Host()),
				slog.String("tier", tier.String()),
				slog.Float64("load", load))
		case tier != previous:
			logger.Info("Backend tier changed",
				slog.String("server", b.Host()),
				slog.String("from", previous.String()),
				slog.String("to", tier.String()),
				slog.Float64("load", load))
		}
		previous, measured, known = tier, up, true

		select {
		case <-ctx.Done():
			logger.Info("Health check stopped",
				slog.String("server", b.Host()))
			return
		case <-ticker.C:
		}
	}
}

// WatchAll starts one HealthCheck goroutine per backend.
func WatchAll(ctx context.Context, backends []*backend.Backend, interval time.Duration, logger *slog.Logger) {
	for _, b := range backends {
		go HealthCheck(ctx, b, interval, logger)
	}
}

// lastState reports the tier of the last sample and whether it was measured.
// known is false before the first sample.
func lastState(b *backend.Backend) (tier strategy.Tier, measured, known bool) {
	load, ok := b.LastSample()
	if !ok {
		return strategy.TierLow, false, false
	}
	return strategy.Classify(load), load != backend.Unmeasured, true
}
