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
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gravitational/trace"

	"github.com/gravitational/slipstream/lib/bucketpolicy"
	awslib "github.com/gravitational/slipstream/lib/cloud/aws"
	"github.com/gravitational/slipstream/lib/defaults"
	"github.com/gravitational/slipstream/lib/store"
)

const (
	// defaultIndexDocument is served for directory requests on website
	// enabled origins.
	defaultIndexDocument = "index.html"
	// defaultErrorDocument is served for missing keys on website enabled
	// origins.
	defaultErrorDocument = "error.html"
	// corsMaxAgeSeconds is how long browsers may cache preflight results.
	corsMaxAgeSeconds = 3000
)

// CreateOriginRequest contains the parameters for creating an origin.
type CreateOriginRequest struct {
	// Name is the display name of the origin.
	Name string
	// BucketName is the name of the S3 bucket to create. Bucket names are
	// globally unique, creation fails if the name is taken.
	BucketName string
	// Region is the AWS region the bucket is created in.
	Region string
	// WebsiteEnabled configures the bucket for static website hosting.
	WebsiteEnabled bool
	// IndexDocument is the website index document. Defaults to index.html.
	IndexDocument string
	// ErrorDocument is the website error document. Defaults to error.html.
	ErrorDocument string
	// CreatedBy records who requested the origin.
	CreatedBy string
}

// CheckAndSetDefaults checks if the required fields are present and sets
// the website document defaults.
func (req *CreateOriginRequest) CheckAndSetDefaults() error {
	if req.Name == "" {
		return trace.BadParameter("name is required")
	}
	if req.BucketName == "" {
		return trace.BadParameter("bucket name is required")
	}
	if req.Region == "" {
		return trace.BadParameter("region is required")
	}
	if req.WebsiteEnabled {
		if req.IndexDocument == "" {
			req.IndexDocument = defaultIndexDocument
		}
		if req.ErrorDocument == "" {
			req.ErrorDocument = defaultErrorDocument
		}
	}
	return nil
}

// CreateOrigin creates the origin bucket and its origin access control,
// then persists the origin record. The managed access statements are not
// written here, the policy merger creates them on the first grant. Website
// enabled buckets additionally get public read access, website hosting and
// a permissive CORS configuration.
func (s *Service) CreateOrigin(ctx context.Context, req CreateOriginRequest) (*store.Origin, error) {
	if err := req.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}

	s.log.InfoContext(ctx, "Creating origin bucket", "bucket", req.BucketName, "region", req.Region)
	if err := s.createBucket(ctx, req); err != nil {
		return nil, trace.Wrap(err)
	}
	if req.WebsiteEnabled {
		if err := s.configureWebsite(ctx, req); err != nil {
			return nil, trace.Wrap(err)
		}
	}

	oacOut, err := s.cfg.CloudFront.CreateOriginAccessControl(ctx, &cloudfront.CreateOriginAccessControlInput{
		OriginAccessControlConfig: &cftypes.OriginAccessControlConfig{
			Name:                          aws.String(fmt.Sprintf("OAC-%s-%d", req.BucketName, s.cfg.Clock.Now().Unix())),
			OriginAccessControlOriginType: cftypes.OriginAccessControlOriginTypesS3,
			SigningBehavior:               cftypes.OriginAccessControlSigningBehaviorsAlways,
			SigningProtocol:               cftypes.OriginAccessControlSigningProtocolsSigv4,
		},
	})
	if err != nil {
		return nil, trace.Wrap(awslib.ConvertError(err))
	}
	oacID := aws.ToString(oacOut.OriginAccessControl.Id)

	origin := &store.Origin{
		OriginID:       NewOriginID(),
		Name:           req.Name,
		BucketName:     req.BucketName,
		Region:         req.Region,
		WebsiteEnabled: req.WebsiteEnabled,
		OACID:          oacID,
		CreatedBy:      req.CreatedBy,
	}
	if req.WebsiteEnabled {
		origin.Website = &store.WebsiteConfig{
			IndexDocument: req.IndexDocument,
			ErrorDocument: req.ErrorDocument,
		}
	}
	if err := s.cfg.Store.PutOrigin(ctx, origin); err != nil {
		// The access control is unreachable without a record pointing at
		// it, remove it again.
		s.rollbackOriginAccessControl(ctx, oacID, aws.ToString(oacOut.ETag))
		return nil, trace.Wrap(err)
	}

	s.log.InfoContext(ctx, "Origin created", "origin", origin.OriginID, "bucket", origin.BucketName, "oac", oacID)
	return origin, nil
}

func (s *Service) createBucket(ctx context.Context, req CreateOriginRequest) error {
	input := &s3.CreateBucketInput{
		Bucket: aws.String(req.BucketName),
	}
	// us-east-1 is the default location and rejects an explicit constraint.
	if req.Region != defaults.ControlPlaneRegion {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(req.Region),
		}
	}
	if _, err := s.cfg.S3.CreateBucket(ctx, input); err != nil {
		return trace.Wrap(awslib.ConvertError(err))
	}
	return nil
}

// configureWebsite turns the bucket into a public static website. Buckets
// block public policies by default, so the block is lifted before the
// public read policy is applied.
func (s *Service) configureWebsite(ctx context.Context, req CreateOriginRequest) error {
	if _, err := s.cfg.S3.DeletePublicAccessBlock(ctx, &s3.DeletePublicAccessBlockInput{
		Bucket: aws.String(req.BucketName),
	}); err != nil {
		return trace.Wrap(awslib.ConvertError(err))
	}

	if _, err := s.cfg.S3.PutBucketWebsite(ctx, &s3.PutBucketWebsiteInput{
		Bucket: aws.String(req.BucketName),
		WebsiteConfiguration: &s3types.WebsiteConfiguration{
			IndexDocument: &s3types.IndexDocument{Suffix: aws.String(req.IndexDocument)},
			ErrorDocument: &s3types.ErrorDocument{Key: aws.String(req.ErrorDocument)},
		},
	}); err != nil {
		return trace.Wrap(awslib.ConvertError(err))
	}

	if _, err := s.cfg.S3.PutBucketCors(ctx, &s3.PutBucketCorsInput{
		Bucket: aws.String(req.BucketName),
		CORSConfiguration: &s3types.CORSConfiguration{
			CORSRules: []s3types.CORSRule{{
				AllowedHeaders: []string{"*"},
				AllowedMethods: []string{"GET", "HEAD"},
				AllowedOrigins: []string{"*"},
				MaxAgeSeconds:  aws.Int32(corsMaxAgeSeconds),
			}},
		},
	}); err != nil {
		return trace.Wrap(awslib.ConvertError(err))
	}

	doc := bucketpolicy.NewPolicyDocument(
		bucketpolicy.StatementForPublicWebsiteRead(req.BucketName),
	)
	policy, err := doc.Marshal()
	if err != nil {
		return trace.Wrap(err)
	}
	if _, err := s.cfg.S3.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(req.BucketName),
		Policy: aws.String(policy),
	}); err != nil {
		return trace.Wrap(awslib.ConvertError(err))
	}
	return nil
}

func (s *Service) rollbackOriginAccessControl(ctx context.Context, oacID, etag string) {
	_, err := s.cfg.CloudFront.DeleteOriginAccessControl(ctx, &cloudfront.DeleteOriginAccessControlInput{
		Id:      aws.String(oacID),
		IfMatch: aws.String(etag),
	})
	if err != nil {
		s.log.WarnContext(ctx, "Failed to roll back origin access control",
			"oac", oacID, "error", err)
	}
}
