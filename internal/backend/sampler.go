package backend

import (
	"context"
	"fmt"

	"github.com/prometheus/procfs"
)

// Sampler reports a raw one-minute load average.
type Sampler interface {
	OneMinuteLoad(ctx context.Context) (float64, error)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(ctx context.Context) (float64, error)

func (f SamplerFunc) OneMinuteLoad(ctx context.Context) (float64, error) {
	return f(ctx)
}

// StaticSampler always reports the same load. It is used when the caller
// already holds a recent sample for the server.
type StaticSampler float64

func (s StaticSampler) OneMinuteLoad(context.Context) (float64, error) {
	return float64(s), nil
}

// ProcSampler reads the local host's load average from a proc filesystem.
type ProcSampler struct {
	fs procfs.FS
}

// NewProcSampler opens the proc filesystem mounted at mountPoint. An empty
// mountPoint selects the default /proc.
func NewProcSampler(mountPoint string) (*ProcSampler, error) {
	if mountPoint == "" {
		mountPoint = procfs.DefaultMountPoint
	}

	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("open procfs %s: %w", mountPoint, err)
	}

	return &ProcSampler{fs: fs}, nil
}

func (p *ProcSampler) OneMinuteLoad(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	avg, err := p.fs.LoadAvg()
	if err != nil {
		return 0, fmt.Errorf("read loadavg: %w", err)
	}

	return avg.Load1, nil
}
