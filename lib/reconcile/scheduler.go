/*
 * Slipstream
 * Copyright (C) 2025  Gravitational, Inc.
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/gravitational/slipstream/lib/utils/interval"
	"github.com/gravitational/slipstream/lib/utils/retryutils"
)

// schedulerFirstScan is the delay before the first sweep after startup,
// kept short so distributions whose monitor never started are picked up
// quickly after a restart.
const schedulerFirstScan = time.Minute

// Run sweeps the pending distributions on the configured cadence and
// checks each one in its own goroutine, until the context is canceled.
// Checks still in flight when the context ends are drained before Run
// returns.
func (s *Service) Run(ctx context.Context) error {
	scan := interval.New(interval.Config{
		FirstDuration: schedulerFirstScan,
		Duration:      s.cfg.ScanInterval,
		Jitter:        retryutils.NewSeventhJitter(),
		Clock:         s.cfg.Clock,
	})
	defer scan.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	s.log.InfoContext(ctx, "Reconciler started.", "scan_interval", s.cfg.ScanInterval)
	for {
		select {
		case <-ctx.Done():
			s.log.InfoContext(ctx, "Reconciler stopped.")
			return nil
		case <-scan.Next():
			s.sweep(ctx, &wg)
		}
	}
}

// sweep dispatches a check for every pending distribution, fire and
// forget. Overlapping checks of the same record are harmless, the status
// transition is conditional and applies once.
func (s *Service) sweep(ctx context.Context, wg *sync.WaitGroup) {
	pending, err := s.cfg.Store.ScanPendingDistributions(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to scan for pending distributions.", "error", err)
		return
	}
	if len(pending) == 0 {
		s.log.DebugContext(ctx, "No pending distributions.")
		return
	}
	s.log.InfoContext(ctx, "Checking pending distributions.", "count", len(pending))
	for _, record := range pending {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.CheckDistribution(ctx, record.DistributionID); err != nil && ctx.Err() == nil {
				s.log.WarnContext(ctx, "Failed to check the deployment status.",
					"distribution", record.DistributionID,
					"error", err,
				)
			}
		}()
	}
}
