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
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/gravitational/slipstream/lib/store"
)

type mockS3Client struct {
	createBucket            func(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	putBucketWebsite        func(ctx context.Context, params *s3.PutBucketWebsiteInput, optFns ...func(*s3.Options)) (*s3.PutBucketWebsiteOutput, error)
	putBucketCors           func(ctx context.Context, params *s3.PutBucketCorsInput, optFns ...func(*s3.Options)) (*s3.PutBucketCorsOutput, error)
	putBucketPolicy         func(ctx context.Context, params *s3.PutBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error)
	deletePublicAccessBlock func(ctx context.Context, params *s3.DeletePublicAccessBlockInput, optFns ...func(*s3.Options)) (*s3.DeletePublicAccessBlockOutput, error)
	listObjectsV2           func(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	deleteObjects           func(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	deleteBucket            func(ctx context.Context, params *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
}

func (m *mockS3Client) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	if m.createBucket == nil {
		return nil, trace.NotImplemented("CreateBucket is not expected")
	}
	return m.createBucket(ctx, params, optFns...)
}

func (m *mockS3Client) PutBucketWebsite(ctx context.Context, params *s3.PutBucketWebsiteInput, optFns ...func(*s3.Options)) (*s3.PutBucketWebsiteOutput, error) {
	if m.putBucketWebsite == nil {
		return nil, trace.NotImplemented("PutBucketWebsite is not expected")
	}
	return m.putBucketWebsite(ctx, params, optFns...)
}

func (m *mockS3Client) PutBucketCors(ctx context.Context, params *s3.PutBucketCorsInput, optFns ...func(*s3.Options)) (*s3.PutBucketCorsOutput, error) {
	if m.putBucketCors == nil {
		return nil, trace.NotImplemented("PutBucketCors is not expected")
	}
	return m.putBucketCors(ctx, params, optFns...)
}

func (m *mockS3Client) PutBucketPolicy(ctx context.Context, params *s3.PutBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error) {
	if m.putBucketPolicy == nil {
		return nil, trace.NotImplemented("PutBucketPolicy is not expected")
	}
	return m.putBucketPolicy(ctx, params, optFns...)
}

func (m *mockS3Client) DeletePublicAccessBlock(ctx context.Context, params *s3.DeletePublicAccessBlockInput, optFns ...func(*s3.Options)) (*s3.DeletePublicAccessBlockOutput, error) {
	if m.deletePublicAccessBlock == nil {
		return nil, trace.NotImplemented("DeletePublicAccessBlock is not expected")
	}
	return m.deletePublicAccessBlock(ctx, params, optFns...)
}

func (m *mockS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if m.listObjectsV2 == nil {
		return nil, trace.NotImplemented("ListObjectsV2 is not expected")
	}
	return m.listObjectsV2(ctx, params, optFns...)
}

func (m *mockS3Client) DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	if m.deleteObjects == nil {
		return nil, trace.NotImplemented("DeleteObjects is not expected")
	}
	return m.deleteObjects(ctx, params, optFns...)
}

func (m *mockS3Client) DeleteBucket(ctx context.Context, params *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error) {
	if m.deleteBucket == nil {
		return nil, trace.NotImplemented("DeleteBucket is not expected")
	}
	return m.deleteBucket(ctx, params, optFns...)
}

type mockCloudFrontClient struct {
	createOriginAccessControl func(ctx context.Context, params *cloudfront.CreateOriginAccessControlInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateOriginAccessControlOutput, error)
	getOriginAccessControl    func(ctx context.Context, params *cloudfront.GetOriginAccessControlInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetOriginAccessControlOutput, error)
	deleteOriginAccessControl func(ctx context.Context, params *cloudfront.DeleteOriginAccessControlInput, optFns ...func(*cloudfront.Options)) (*cloudfront.DeleteOriginAccessControlOutput, error)
}

func (m *mockCloudFrontClient) CreateOriginAccessControl(ctx context.Context, params *cloudfront.CreateOriginAccessControlInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateOriginAccessControlOutput, error) {
	if m.createOriginAccessControl == nil {
		return nil, trace.NotImplemented("CreateOriginAccessControl is not expected")
	}
	return m.createOriginAccessControl(ctx, params, optFns...)
}

func (m *mockCloudFrontClient) GetOriginAccessControl(ctx context.Context, params *cloudfront.GetOriginAccessControlInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetOriginAccessControlOutput, error) {
	if m.getOriginAccessControl == nil {
		return nil, trace.NotImplemented("GetOriginAccessControl is not expected")
	}
	return m.getOriginAccessControl(ctx, params, optFns...)
}

func (m *mockCloudFrontClient) DeleteOriginAccessControl(ctx context.Context, params *cloudfront.DeleteOriginAccessControlInput, optFns ...func(*cloudfront.Options)) (*cloudfront.DeleteOriginAccessControlOutput, error) {
	if m.deleteOriginAccessControl == nil {
		return nil, trace.NotImplemented("DeleteOriginAccessControl is not expected")
	}
	return m.deleteOriginAccessControl(ctx, params, optFns...)
}

type mockDynamoClient struct {
	getItem    func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	putItem    func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	deleteItem func(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	updateItem func(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	scan       func(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	query      func(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

func (m *mockDynamoClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getItem == nil {
		return nil, trace.NotImplemented("GetItem is not expected")
	}
	return m.getItem(ctx, params, optFns...)
}

func (m *mockDynamoClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.putItem == nil {
		return nil, trace.NotImplemented("PutItem is not expected")
	}
	return m.putItem(ctx, params, optFns...)
}

func (m *mockDynamoClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if m.deleteItem == nil {
		return nil, trace.NotImplemented("DeleteItem is not expected")
	}
	return m.deleteItem(ctx, params, optFns...)
}

func (m *mockDynamoClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if m.updateItem == nil {
		return nil, trace.NotImplemented("UpdateItem is not expected")
	}
	return m.updateItem(ctx, params, optFns...)
}

func (m *mockDynamoClient) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if m.scan == nil {
		return nil, trace.NotImplemented("Scan is not expected")
	}
	return m.scan(ctx, params, optFns...)
}

func (m *mockDynamoClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if m.query == nil {
		return nil, trace.NotImplemented("Query is not expected")
	}
	return m.query(ctx, params, optFns...)
}

func newTestService(t *testing.T, s3clt S3Client, cfclt CloudFrontClient, dynamo store.DynamoClient) *Service {
	t.Helper()
	backend, err := store.New(store.Config{Client: dynamo})
	require.NoError(t, err)
	svc, err := NewService(Config{
		S3:         s3clt,
		CloudFront: cfclt,
		Store:      backend,
		Clock:      clockwork.NewFakeClockAt(time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	return svc
}
