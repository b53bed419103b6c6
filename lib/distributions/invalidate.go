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

package distributions

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/google/uuid"
	"github.com/gravitational/trace"

	awslib "github.com/gravitational/slipstream/lib/cloud/aws"
	"github.com/gravitational/slipstream/lib/store"
)

// CreateInvalidationRequest is a request to flush cached paths.
type CreateInvalidationRequest struct {
	// DistributionID is the distribution record identifier.
	DistributionID string
	// Paths are the path patterns to invalidate, such as /index.html or
	// /images/*.
	Paths []string
	// RequestedBy records who requested the invalidation. Defaults to
	// "system".
	RequestedBy string
}

// CheckAndSetDefaults checks the request fields and sets defaults.
func (req *CreateInvalidationRequest) CheckAndSetDefaults() error {
	if req.DistributionID == "" {
		return trace.BadParameter("distribution id is required")
	}
	if len(req.Paths) == 0 {
		return trace.BadParameter("at least one path is required")
	}
	for _, path := range req.Paths {
		if !strings.HasPrefix(path, "/") {
			return trace.BadParameter("path %q must start with /", path)
		}
	}
	if req.RequestedBy == "" {
		req.RequestedBy = store.SystemUser
	}
	return nil
}

// CreateInvalidationResponse describes the submitted invalidation.
type CreateInvalidationResponse struct {
	// InvalidationID is the CloudFront invalidation ID.
	InvalidationID string
	// Status is the CloudFront invalidation status, InProgress until the
	// flush completes.
	Status string
}

// CreateInvalidation flushes the given paths from the distribution's edge
// caches.
func (s *Service) CreateInvalidation(ctx context.Context, req CreateInvalidationRequest) (*CreateInvalidationResponse, error) {
	if err := req.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	record, err := s.cfg.Store.GetDistribution(ctx, req.DistributionID)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	out, err := s.cfg.CloudFront.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(record.CDNID),
		InvalidationBatch: &types.InvalidationBatch{
			CallerReference: aws.String(uuid.NewString()),
			Paths: &types.Paths{
				Quantity: aws.Int32(int32(len(req.Paths))),
				Items:    req.Paths,
			},
		},
	})
	if err != nil {
		return nil, trace.Wrap(awslib.ConvertError(err))
	}
	invalidationID := aws.ToString(out.Invalidation.Id)

	if err := s.cfg.Store.AppendHistory(ctx, store.HistoryEntry{
		DistributionID: record.DistributionID,
		Action:         store.ActionInvalidation,
		User:           req.RequestedBy,
		Details: map[string]string{
			"invalidationId": invalidationID,
			"paths":          strings.Join(req.Paths, " "),
		},
	}); err != nil {
		s.log.WarnContext(ctx, "Failed to record invalidation history.",
			"distribution", record.DistributionID,
			"error", err,
		)
	}

	s.log.InfoContext(ctx, "Created invalidation.",
		"distribution", record.DistributionID,
		"invalidation", invalidationID,
		"paths", len(req.Paths),
	)
	return &CreateInvalidationResponse{
		InvalidationID: invalidationID,
		Status:         aws.ToString(out.Invalidation.Status),
	}, nil
}
