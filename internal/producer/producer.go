// Package producer generates a synthetic event stream for local runs and
// load testing, so the pipeline can be exercised without a database.
package producer

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/yourusername/stream-monitor/internal/config"
	"github.com/yourusername/stream-monitor/internal/model"
	"github.com/yourusername/stream-monitor/internal/pipeline"
)

// Simulator publishes events for a fixed population of synthetic users.
// Values follow a normal distribution and latencies a uniform one, which
// gives the sketches a realistic mix of heavy and light keys to chew on.
type Simulator struct {
	pipe     *pipeline.Pipeline
	users    int
	value    distuv.Normal
	latency  distuv.Uniform
	interval time.Duration
	rng      *rand.Rand
	logger   *zap.Logger
}

func NewSimulator(pipe *pipeline.Pipeline, cfg config.ProducerConfig, logger *zap.Logger) *Simulator {
	seed := uint64(cfg.Seed)
	if seed == 0 {
		seed = rand.Uint64()
	}
	src := rand.NewPCG(seed, seed)

	return &Simulator{
		pipe:  pipe,
		users: cfg.Users,
		value: distuv.Normal{
			Mu:    cfg.ValueMean,
			Sigma: cfg.ValueStdDev,
			Src:   src,
		},
		latency: distuv.Uniform{
			Min: cfg.MinLatencyMS,
			Max: cfg.MaxLatencyMS,
			Src: src,
		},
		interval: cfg.Interval,
		rng:      rand.New(src),
		logger:   logger,
	}
}

// Run publishes events until the context is cancelled. Publish errors other
// than cancellation are logged and the loop keeps going; a stream source
// should not die because one event was refused.
func (s *Simulator) Run(ctx context.Context) error {
	s.logger.Info("simulator started",
		zap.Int("users", s.users),
		zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("simulator stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.pipe.Publish(ctx, s.next()); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					continue
				}
				s.logger.Warn("publish failed", zap.Error(err))
			}
		}
	}
}

func (s *Simulator) next() model.Event {
	return model.Event{
		Timestamp: time.Now().UTC(),
		Key:       fmt.Sprintf("user-%d", 1+s.rng.IntN(s.users)),
		Value:     s.value.Rand(),
		Latency:   s.latency.Rand() / 1000.0, // ms -> seconds
	}
}
