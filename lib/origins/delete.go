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

package origins

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gravitational/trace"

	awslib "github.com/gravitational/slipstream/lib/cloud/aws"
)

// DeleteOriginRequest contains the parameters for deleting an origin.
type DeleteOriginRequest struct {
	// OriginID is the identifier of the origin to delete.
	OriginID string
}

// CheckAndSetDefaults checks the request fields.
func (req *DeleteOriginRequest) CheckAndSetDefaults() error {
	if req.OriginID == "" {
		return trace.BadParameter("origin id is required")
	}
	return nil
}

// DeleteOrigin empties and deletes the origin bucket, removes its origin
// access control and deletes the origin record. An origin still referenced
// by distributions is not deleted and nothing is changed. The record is
// deleted last and guards against a distribution attaching mid delete, so
// a failed delete can be retried.
func (s *Service) DeleteOrigin(ctx context.Context, req DeleteOriginRequest) error {
	if err := req.CheckAndSetDefaults(); err != nil {
		return trace.Wrap(err)
	}

	origin, err := s.cfg.Store.GetOrigin(ctx, req.OriginID)
	if err != nil {
		return trace.Wrap(err)
	}
	if len(origin.UsedBy) > 0 {
		return trace.CompareFailed("origin %v is used by distributions %v, detach them first",
			origin.OriginID, origin.UsedBy)
	}

	s.log.InfoContext(ctx, "Deleting origin", "origin", origin.OriginID, "bucket", origin.BucketName)
	if err := s.deleteBucket(ctx, origin.BucketName); err != nil {
		return trace.Wrap(err)
	}
	if origin.OACID != "" {
		s.deleteOriginAccessControl(ctx, origin.OACID)
	}

	if err := s.cfg.Store.DeleteOrigin(ctx, origin.OriginID); err != nil {
		return trace.Wrap(err)
	}
	s.log.InfoContext(ctx, "Origin deleted", "origin", origin.OriginID)
	return nil
}

// deleteBucket empties the bucket and deletes it. A bucket that is already
// gone counts as deleted.
func (s *Service) deleteBucket(ctx context.Context, bucket string) error {
	if err := s.emptyBucket(ctx, bucket); err != nil {
		if trace.IsNotFound(err) {
			return nil
		}
		return trace.Wrap(err)
	}
	if _, err := s.cfg.S3.DeleteBucket(ctx, &s3.DeleteBucketInput{
		Bucket: aws.String(bucket),
	}); err != nil {
		err = awslib.ConvertError(err)
		if trace.IsNotFound(err) {
			return nil
		}
		return trace.Wrap(err)
	}
	return nil
}

// emptyBucket deletes the bucket contents in batches of up to 1000 keys,
// the DeleteObjects limit, relisting until the bucket comes back empty.
func (s *Service) emptyBucket(ctx context.Context, bucket string) error {
	for {
		page, err := s.cfg.S3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket: aws.String(bucket),
		})
		if err != nil {
			return trace.Wrap(awslib.ConvertError(err))
		}
		if len(page.Contents) == 0 {
			return nil
		}

		objects := make([]s3types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, s3types.ObjectIdentifier{Key: obj.Key})
		}
		s.log.DebugContext(ctx, "Deleting origin bucket objects", "bucket", bucket, "count", len(objects))
		out, err := s.cfg.S3.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &s3types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return trace.Wrap(awslib.ConvertError(err))
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return trace.Errorf("failed to delete %d objects from bucket %v, first failure: %v: %v %v",
				len(out.Errors), bucket, aws.ToString(first.Key), aws.ToString(first.Code), aws.ToString(first.Message))
		}
	}
}

// deleteOriginAccessControl removes the origin access control. Failures are
// logged and not fatal, the record cleanup must proceed.
func (s *Service) deleteOriginAccessControl(ctx context.Context, oacID string) {
	getOut, err := s.cfg.CloudFront.GetOriginAccessControl(ctx, &cloudfront.GetOriginAccessControlInput{
		Id: aws.String(oacID),
	})
	if err != nil {
		err = awslib.ConvertError(err)
		if !trace.IsNotFound(err) {
			s.log.WarnContext(ctx, "Failed to look up origin access control", "oac", oacID, "error", err)
		}
		return
	}
	if _, err := s.cfg.CloudFront.DeleteOriginAccessControl(ctx, &cloudfront.DeleteOriginAccessControlInput{
		Id:      aws.String(oacID),
		IfMatch: getOut.ETag,
	}); err != nil {
		s.log.WarnContext(ctx, "Failed to delete origin access control", "oac", oacID, "error", awslib.ConvertError(err))
	}
}
