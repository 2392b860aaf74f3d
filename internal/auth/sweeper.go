// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/tokenward/tokenward/pkg/errutil"
)

// DefaultSweepInterval is how often the sweeper runs when none is configured.
const DefaultSweepInterval = 10 * time.Minute

// Purger removes expired records and reports how many were removed.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically purges expired refresh and reset tokens.
type Sweeper struct {
	interval time.Duration
	purgers  map[string]Purger
	logger   *slog.Logger
}

// NewSweeper creates a Sweeper for the token and reset services.
func NewSweeper(interval time.Duration, tokens, resets Purger, opts ...Option) (*Sweeper, error) {
	if tokens == nil || resets == nil {
		return nil, oops.Errorf("token and reset purgers are required")
	}
	if interval == 0 {
		interval = DefaultSweepInterval
	}
	if interval < 0 {
		return nil, oops.Errorf("sweep interval must be positive")
	}

	o := newOptions(opts)
	return &Sweeper{
		interval: interval,
		purgers:  map[string]Purger{"refresh": tokens, "reset": resets},
		logger:   o.logger,
	}, nil
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs every purger once. Failures are logged and do not stop the
// remaining purgers.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	for kind, p := range s.purgers {
		n, err := p.PurgeExpired(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			SweeperErrors.WithLabelValues(kind, errutil.CodeOf(err)).Inc()
			errutil.LogError(ctx, s.logger, "token sweep failed", err)
			continue
		}
		if n > 0 {
			SweeperPurged.WithLabelValues(kind).Add(float64(n))
			s.logger.DebugContext(ctx, "expired tokens purged", "kind", kind, "count", n)
		}
	}
}
