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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/gravitational/trace"

	"github.com/gravitational/slipstream/lib/bucketpolicy"
	awslib "github.com/gravitational/slipstream/lib/cloud/aws"
	"github.com/gravitational/slipstream/lib/edgefunc"
	"github.com/gravitational/slipstream/lib/store"
)

// DeleteDistributionRequest is a request to delete a distribution.
type DeleteDistributionRequest struct {
	// DistributionID is the distribution record identifier.
	DistributionID string
	// DeletedBy records who requested the deletion. Defaults to "system".
	DeletedBy string
}

// CheckAndSetDefaults checks the request fields and sets defaults.
func (req *DeleteDistributionRequest) CheckAndSetDefaults() error {
	if req.DistributionID == "" {
		return trace.BadParameter("distribution id is required")
	}
	if req.DeletedBy == "" {
		req.DeletedBy = store.SystemUser
	}
	return nil
}

// DeleteDistributionResponse reports how far a delete progressed.
type DeleteDistributionResponse struct {
	// Disabling is set when the distribution was still enabled. It has
	// been switched off and the delete must be repeated once CloudFront
	// reports the change deployed.
	Disabling bool
}

// DeleteDistribution deletes a distribution together with its dedicated
// resources. CloudFront only deletes disabled, fully propagated
// distributions, so an enabled distribution is switched off first and the
// caller retries once the change lands. Cleanup of grants, the routing
// function and origin links is best-effort, and the record is only
// removed once the CloudFront distribution is gone.
func (s *Service) DeleteDistribution(ctx context.Context, req DeleteDistributionRequest) (*DeleteDistributionResponse, error) {
	if err := req.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	record, err := s.cfg.Store.GetDistribution(ctx, req.DistributionID)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	out, err := s.cfg.CloudFront.GetDistribution(ctx, &cloudfront.GetDistributionInput{
		Id: aws.String(record.CDNID),
	})
	if err := awslib.ConvertError(err); err != nil {
		if !trace.IsNotFound(err) {
			return nil, trace.Wrap(err)
		}
		// Nothing left upstream, release local state only.
		s.log.InfoContext(ctx, "Distribution is gone from CloudFront, removing local state.",
			"distribution", record.DistributionID,
			"cloudfront_id", record.CDNID,
		)
		return s.finishDelete(ctx, record, req.DeletedBy)
	}

	config := out.Distribution.DistributionConfig
	if aws.ToBool(config.Enabled) {
		config.Enabled = aws.Bool(false)
		_, err := s.cfg.CloudFront.UpdateDistribution(ctx, &cloudfront.UpdateDistributionInput{
			Id:                 aws.String(record.CDNID),
			DistributionConfig: config,
			IfMatch:            out.ETag,
		})
		if err != nil {
			return nil, trace.Wrap(awslib.ConvertError(err))
		}
		if err := s.cfg.Store.UpdateDistributionStatus(ctx, record.DistributionID, record.Status, store.StatusDisabling); err != nil {
			s.log.WarnContext(ctx, "Failed to persist the disabling status.",
				"distribution", record.DistributionID,
				"error", err,
			)
		}
		s.log.InfoContext(ctx, "Disabled distribution, delete it again once the change is deployed.",
			"distribution", record.DistributionID,
			"cloudfront_id", record.CDNID,
		)
		return &DeleteDistributionResponse{Disabling: true}, nil
	}

	if status := aws.ToString(out.Distribution.Status); status != string(store.StatusDeployed) {
		return nil, trace.CompareFailed("distribution %v is still %v in CloudFront, retry once the pending change is deployed", record.CDNID, status)
	}

	if _, err := s.cfg.CloudFront.DeleteDistribution(ctx, &cloudfront.DeleteDistributionInput{
		Id:      aws.String(record.CDNID),
		IfMatch: out.ETag,
	}); err != nil {
		return nil, trace.Wrap(awslib.ConvertError(err))
	}
	s.log.InfoContext(ctx, "Deleted distribution.",
		"distribution", record.DistributionID,
		"cloudfront_id", record.CDNID,
	)
	return s.finishDelete(ctx, record, req.DeletedBy)
}

// finishDelete releases the resources dedicated to the distribution and
// removes its record. Every cleanup step is best-effort: a failed step is
// logged and the remaining steps still run.
func (s *Service) finishDelete(ctx context.Context, record *store.Distribution, deletedBy string) (*DeleteDistributionResponse, error) {
	if record.MultiOrigin {
		s.revokeOriginAccess(ctx, record)
		s.deleteEdgeFunction(ctx, record)
		s.deleteOriginAccessIdentity(ctx, record)
	}
	for _, originID := range linkedOriginIDs(record) {
		if err := s.cfg.Store.RemoveOriginDistribution(ctx, originID, record.DistributionID); err != nil {
			s.log.WarnContext(ctx, "Failed to unlink distribution from origin.",
				"distribution", record.DistributionID,
				"origin", originID,
				"error", err,
			)
		}
	}

	if err := s.cfg.Store.DeleteDistribution(ctx, record.DistributionID); err != nil {
		return nil, trace.Wrap(err)
	}
	if err := s.cfg.Store.AppendHistory(ctx, store.HistoryEntry{
		DistributionID: record.DistributionID,
		Action:         store.ActionDelete,
		User:           deletedBy,
		Details: map[string]string{
			"cloudfrontId": record.CDNID,
			"name":         record.Name,
		},
	}); err != nil {
		s.log.WarnContext(ctx, "Failed to record deletion history.",
			"distribution", record.DistributionID,
			"error", err,
		)
	}
	return &DeleteDistributionResponse{}, nil
}

// linkedOriginIDs returns the origins holding the distribution in their
// using set, default origin first for the multi-origin shape.
func linkedOriginIDs(record *store.Distribution) []string {
	if record.MultiOrigin {
		if record.MultiOriginConfig == nil {
			return nil
		}
		return append([]string{record.MultiOriginConfig.DefaultOriginID}, record.MultiOriginConfig.AdditionalOriginIDs...)
	}
	if record.OriginID == "" {
		return nil
	}
	return []string{record.OriginID}
}

// revokeOriginAccess removes the distribution's access identity from the
// bucket policy of every member origin. Other identities and the buckets'
// own statements stay untouched.
func (s *Service) revokeOriginAccess(ctx context.Context, record *store.Distribution) {
	if record.OAIID == "" {
		return
	}
	principal := bucketpolicy.OriginAccessIdentityUserARN(record.OAIID)
	for _, originID := range linkedOriginIDs(record) {
		origin, err := s.cfg.Store.GetOrigin(ctx, originID)
		if err != nil {
			s.log.WarnContext(ctx, "Failed to resolve origin for bucket policy cleanup.",
				"origin", originID,
				"error", err,
			)
			continue
		}
		err = bucketpolicy.RevokeAccess(ctx, s.cfg.Policy, bucketpolicy.AccessRequest{
			Bucket:    origin.BucketName,
			Kind:      bucketpolicy.GrantKindDistribution,
			Principal: principal,
			Clock:     s.cfg.Clock,
		})
		if err != nil {
			s.log.WarnContext(ctx, "Failed to revoke bucket access of the origin access identity.",
				"bucket", origin.BucketName,
				"origin_access_identity", record.OAIID,
				"error", err,
			)
		}
	}
}

func (s *Service) deleteEdgeFunction(ctx context.Context, record *store.Distribution) {
	if record.EdgeFunctionName != "" {
		err := edgefunc.Delete(ctx, s.cfg.Lambda, edgefunc.DeleteRequest{
			FunctionName: record.EdgeFunctionName,
		})
		if err != nil {
			// Lambda@Edge replicas can pin the function for hours after
			// the distribution is gone. The record stays behind as the
			// handle to find and retry the leftover.
			s.log.WarnContext(ctx, "Failed to delete routing function, retry once its replicas are released.",
				"function", record.EdgeFunctionName,
				"error", err,
			)
			return
		}
	}
	if record.EdgeFunctionID != "" {
		if err := s.cfg.Store.DeleteEdgeFunction(ctx, record.EdgeFunctionID); err != nil {
			s.log.WarnContext(ctx, "Failed to delete routing function record.",
				"function", record.EdgeFunctionID,
				"error", err,
			)
		}
	}
}

func (s *Service) deleteOriginAccessIdentity(ctx context.Context, record *store.Distribution) {
	if record.OAIID == "" {
		return
	}
	out, err := s.cfg.CloudFront.GetCloudFrontOriginAccessIdentity(ctx, &cloudfront.GetCloudFrontOriginAccessIdentityInput{
		Id: aws.String(record.OAIID),
	})
	if err := awslib.ConvertError(err); err != nil {
		if !trace.IsNotFound(err) {
			s.log.WarnContext(ctx, "Failed to look up origin access identity.",
				"origin_access_identity", record.OAIID,
				"error", err,
			)
		}
		return
	}
	_, err = s.cfg.CloudFront.DeleteCloudFrontOriginAccessIdentity(ctx, &cloudfront.DeleteCloudFrontOriginAccessIdentityInput{
		Id:      aws.String(record.OAIID),
		IfMatch: out.ETag,
	})
	if err != nil {
		// CloudFront reports the identity in use until the distribution
		// deletion fully propagates.
		s.log.WarnContext(ctx, "Failed to delete origin access identity.",
			"origin_access_identity", record.OAIID,
			"error", awslib.ConvertError(err),
		)
	}
}
