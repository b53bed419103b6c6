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

	"github.com/gravitational/trace"

	"github.com/gravitational/slipstream/lib/store"
)

// WaitDeployed watches a freshly created distribution until CloudFront
// reports a terminal deployment status, persisting every observed
// transition the same way the periodic checker does. The wait is bounded:
// a distribution still converging after the configured timeout yields a
// LimitExceeded error and is left to the periodic sweeps. The wait also
// ends, without error, when the record stops being pending for another
// reason, such as a deletion switching it to Disabling.
func (s *Service) WaitDeployed(ctx context.Context, distributionID string) (store.Status, error) {
	deadline := s.cfg.Clock.Now().Add(s.cfg.PostCreateTimeout)
	for {
		status, err := s.CheckDistribution(ctx, distributionID)
		if err != nil {
			return "", trace.Wrap(err)
		}
		if !status.IsPending() {
			return status, nil
		}
		if !s.cfg.Clock.Now().Before(deadline) {
			return "", trace.LimitExceeded("distribution %v is still %v after %v, leaving it to the periodic checks",
				distributionID, status, s.cfg.PostCreateTimeout)
		}
		select {
		case <-s.cfg.Clock.After(s.cfg.PostCreateInterval):
		case <-ctx.Done():
			return "", trace.Wrap(ctx.Err())
		}
	}
}
