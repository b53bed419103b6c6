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
)

// S3Client describes the required methods of the S3 API.
type S3Client interface {
	// CreateBucket creates an S3 bucket.
	// https://docs.aws.amazon.com/AmazonS3/latest/API/API_CreateBucket.html
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)

	// PutBucketWebsite configures static website hosting on a bucket.
	// https://docs.aws.amazon.com/AmazonS3/latest/API/API_PutBucketWebsite.html
	PutBucketWebsite(ctx context.Context, params *s3.PutBucketWebsiteInput, optFns ...func(*s3.Options)) (*s3.PutBucketWebsiteOutput, error)

	// PutBucketCors sets the CORS configuration of a bucket.
	// https://docs.aws.amazon.com/AmazonS3/latest/API/API_PutBucketCors.html
	PutBucketCors(ctx context.Context, params *s3.PutBucketCorsInput, optFns ...func(*s3.Options)) (*s3.PutBucketCorsOutput, error)

	// PutBucketPolicy applies a bucket policy.
	// https://docs.aws.amazon.com/AmazonS3/latest/API/API_PutBucketPolicy.html
	PutBucketPolicy(ctx context.Context, params *s3.PutBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error)

	// DeletePublicAccessBlock removes the public access block of a bucket.
	// https://docs.aws.amazon.com/AmazonS3/latest/API/API_DeletePublicAccessBlock.html
	DeletePublicAccessBlock(ctx context.Context, params *s3.DeletePublicAccessBlockInput, optFns ...func(*s3.Options)) (*s3.DeletePublicAccessBlockOutput, error)

	// ListObjectsV2 returns up to 1000 objects of a bucket per page.
	// https://docs.aws.amazon.com/AmazonS3/latest/API/API_ListObjectsV2.html
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)

	// DeleteObjects deletes up to 1000 objects in one call.
	// https://docs.aws.amazon.com/AmazonS3/latest/API/API_DeleteObjects.html
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)

	// DeleteBucket deletes an empty bucket.
	// https://docs.aws.amazon.com/AmazonS3/latest/API/API_DeleteBucket.html
	DeleteBucket(ctx context.Context, params *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
}

// CloudFrontClient describes the required methods of the CloudFront API.
type CloudFrontClient interface {
	// CreateOriginAccessControl creates an origin access control.
	// https://docs.aws.amazon.com/cloudfront/latest/APIReference/API_CreateOriginAccessControl.html
	CreateOriginAccessControl(ctx context.Context, params *cloudfront.CreateOriginAccessControlInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateOriginAccessControlOutput, error)

	// GetOriginAccessControl returns an origin access control, including
	// the ETag required to delete it.
	// https://docs.aws.amazon.com/cloudfront/latest/APIReference/API_GetOriginAccessControl.html
	GetOriginAccessControl(ctx context.Context, params *cloudfront.GetOriginAccessControlInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetOriginAccessControlOutput, error)

	// DeleteOriginAccessControl deletes an origin access control.
	// https://docs.aws.amazon.com/cloudfront/latest/APIReference/API_DeleteOriginAccessControl.html
	DeleteOriginAccessControl(ctx context.Context, params *cloudfront.DeleteOriginAccessControlInput, optFns ...func(*cloudfront.Options)) (*cloudfront.DeleteOriginAccessControlOutput, error)
}

type defaultS3Client struct {
	*s3.Client
}

// NewS3Client creates an S3Client using an AWS SDK config.
func NewS3Client(cfg aws.Config) S3Client {
	return &defaultS3Client{
		Client: s3.NewFromConfig(cfg),
	}
}

type defaultCloudFrontClient struct {
	*cloudfront.Client
}

// NewCloudFrontClient creates a CloudFrontClient using an AWS SDK config.
// CloudFront is a global service addressed through us-east-1.
func NewCloudFrontClient(cfg aws.Config) CloudFrontClient {
	return &defaultCloudFrontClient{
		Client: cloudfront.NewFromConfig(cfg),
	}
}
