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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/gravitational/trace"

	awslib "github.com/gravitational/slipstream/lib/cloud/aws"
	"github.com/gravitational/slipstream/lib/store"
)

// CheckDistribution compares the stored deployment status of a pending
// distribution with the status CloudFront currently reports, and persists
// the transition when they differ. Exactly one history entry is written
// per applied transition. Several checkers may observe the same change
// concurrently, only the one winning the conditional update records it,
// the others no-op. Returns the status the record settled on.
func (s *Service) CheckDistribution(ctx context.Context, distributionID string) (store.Status, error) {
	record, err := s.cfg.Store.GetDistribution(ctx, distributionID)
	if err != nil {
		return "", trace.Wrap(err)
	}
	if !record.Status.IsPending() {
		s.log.DebugContext(ctx, "Distribution is not waiting on a deployment, skipping the check.",
			"distribution", record.DistributionID,
			"status", record.Status,
		)
		return record.Status, nil
	}
	if record.CDNID == "" {
		return "", trace.BadParameter("distribution %v has no CloudFront distribution to track", distributionID)
	}

	out, err := s.cfg.CloudFront.GetDistribution(ctx, &cloudfront.GetDistributionInput{
		Id: aws.String(record.CDNID),
	})
	if err != nil {
		return "", trace.Wrap(awslib.ConvertError(err))
	}
	observed, err := parseCDNStatus(aws.ToString(out.Distribution.Status))
	if err != nil {
		return "", trace.Wrap(err)
	}

	if observed == record.Status {
		s.log.DebugContext(ctx, "Deployment status is unchanged.",
			"distribution", record.DistributionID,
			"status", observed,
		)
		return observed, nil
	}

	if err := s.cfg.Store.UpdateDistributionStatus(ctx, record.DistributionID, record.Status, observed); err != nil {
		if trace.IsCompareFailed(err) {
			// A concurrent checker applied the transition first.
			s.log.DebugContext(ctx, "Lost the status transition to a concurrent checker.",
				"distribution", record.DistributionID,
				"status", observed,
			)
			return observed, nil
		}
		return "", trace.Wrap(err)
	}
	if err := s.cfg.Store.AppendHistory(ctx, store.HistoryEntry{
		DistributionID: record.DistributionID,
		Action:         store.ActionStatusChanged,
		User:           store.SystemUser,
		Version:        record.Version + 1,
		PreviousStatus: record.Status,
		NewStatus:      observed,
	}); err != nil {
		return "", trace.Wrap(err)
	}
	s.log.InfoContext(ctx, "Recorded deployment status change.",
		"distribution", record.DistributionID,
		"cloudfront_id", record.CDNID,
		"previous_status", record.Status,
		"new_status", observed,
	)
	return observed, nil
}

// parseCDNStatus maps a status string reported by CloudFront to the
// record status set.
func parseCDNStatus(status string) (store.Status, error) {
	switch status {
	case "InProgress":
		return store.StatusInProgress, nil
	case "Deployed":
		return store.StatusDeployed, nil
	case "Failed":
		return store.StatusFailed, nil
	}
	return "", trace.BadParameter("unexpected CloudFront distribution status %q", status)
}
