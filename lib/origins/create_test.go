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
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gravitational/trace"
	"github.com/stretchr/testify/require"

	"github.com/gravitational/slipstream/lib/bucketpolicy"
	"github.com/gravitational/slipstream/lib/store"
)

const testOACID = "E2QWRUHAPOMQZL"

func newCreateMocks() (*mockS3Client, *mockCloudFrontClient, *mockDynamoClient, *store.Origin) {
	s3clt := &mockS3Client{
		createBucket: func(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
			return &s3.CreateBucketOutput{}, nil
		},
	}
	cfclt := &mockCloudFrontClient{
		createOriginAccessControl: func(ctx context.Context, params *cloudfront.CreateOriginAccessControlInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateOriginAccessControlOutput, error) {
			return &cloudfront.CreateOriginAccessControlOutput{
				OriginAccessControl: &cftypes.OriginAccessControl{Id: aws.String(testOACID)},
				ETag:                aws.String("ETAGOAC"),
			}, nil
		},
	}
	var stored store.Origin
	dynamo := &mockDynamoClient{
		putItem: func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			if err := attributevalue.UnmarshalMap(params.Item, &stored); err != nil {
				return nil, trace.Wrap(err)
			}
			return &dynamodb.PutItemOutput{}, nil
		},
	}
	return s3clt, cfclt, dynamo, &stored
}

func TestCreateOrigin(t *testing.T) {
	s3clt, cfclt, dynamo, stored := newCreateMocks()
	var bucketInput *s3.CreateBucketInput
	createBucket := s3clt.createBucket
	s3clt.createBucket = func(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
		bucketInput = params
		return createBucket(ctx, params, optFns...)
	}
	var oacInput *cloudfront.CreateOriginAccessControlInput
	createOAC := cfclt.createOriginAccessControl
	cfclt.createOriginAccessControl = func(ctx context.Context, params *cloudfront.CreateOriginAccessControlInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateOriginAccessControlOutput, error) {
		oacInput = params
		return createOAC(ctx, params, optFns...)
	}

	svc := newTestService(t, s3clt, cfclt, dynamo)
	origin, err := svc.CreateOrigin(context.Background(), CreateOriginRequest{
		Name:       "eu-assets",
		BucketName: "my-origin-bucket",
		Region:     "eu-west-2",
		CreatedBy:  "ops@example.com",
	})
	require.NoError(t, err)

	require.NotNil(t, bucketInput)
	require.Equal(t, "my-origin-bucket", aws.ToString(bucketInput.Bucket))
	require.NotNil(t, bucketInput.CreateBucketConfiguration)
	require.Equal(t, s3types.BucketLocationConstraint("eu-west-2"), bucketInput.CreateBucketConfiguration.LocationConstraint)

	require.NotNil(t, oacInput)
	oacCfg := oacInput.OriginAccessControlConfig
	require.True(t, strings.HasPrefix(aws.ToString(oacCfg.Name), "OAC-my-origin-bucket-"), "unexpected OAC name %v", aws.ToString(oacCfg.Name))
	require.Equal(t, cftypes.OriginAccessControlOriginTypesS3, oacCfg.OriginAccessControlOriginType)
	require.Equal(t, cftypes.OriginAccessControlSigningBehaviorsAlways, oacCfg.SigningBehavior)
	require.Equal(t, cftypes.OriginAccessControlSigningProtocolsSigv4, oacCfg.SigningProtocol)

	require.True(t, strings.HasPrefix(origin.OriginID, "origin-"), "unexpected origin id %v", origin.OriginID)
	require.Equal(t, "eu-assets", origin.Name)
	require.Equal(t, "my-origin-bucket", origin.BucketName)
	require.Equal(t, testOACID, origin.OACID)
	require.False(t, origin.WebsiteEnabled)
	require.Nil(t, origin.Website)
	require.False(t, origin.CreatedAt.IsZero())

	// The record hitting the table matches the returned origin.
	require.Equal(t, origin.OriginID, stored.OriginID)
	require.Equal(t, origin.OACID, stored.OACID)
	require.Empty(t, stored.UsedBy)
}

func TestCreateOriginControlPlaneRegion(t *testing.T) {
	s3clt, cfclt, dynamo, _ := newCreateMocks()
	var bucketInput *s3.CreateBucketInput
	s3clt.createBucket = func(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
		bucketInput = params
		return &s3.CreateBucketOutput{}, nil
	}

	svc := newTestService(t, s3clt, cfclt, dynamo)
	_, err := svc.CreateOrigin(context.Background(), CreateOriginRequest{
		Name:       "us-assets",
		BucketName: "my-origin-bucket",
		Region:     "us-east-1",
	})
	require.NoError(t, err)

	// us-east-1 buckets are created without a location constraint.
	require.NotNil(t, bucketInput)
	require.Nil(t, bucketInput.CreateBucketConfiguration)
}

func TestCreateOriginWebsite(t *testing.T) {
	s3clt, cfclt, dynamo, stored := newCreateMocks()
	blockRemoved := false
	var websiteInput *s3.PutBucketWebsiteInput
	var corsInput *s3.PutBucketCorsInput
	var policyInput *s3.PutBucketPolicyInput
	s3clt.deletePublicAccessBlock = func(ctx context.Context, params *s3.DeletePublicAccessBlockInput, optFns ...func(*s3.Options)) (*s3.DeletePublicAccessBlockOutput, error) {
		blockRemoved = true
		return &s3.DeletePublicAccessBlockOutput{}, nil
	}
	s3clt.putBucketWebsite = func(ctx context.Context, params *s3.PutBucketWebsiteInput, optFns ...func(*s3.Options)) (*s3.PutBucketWebsiteOutput, error) {
		websiteInput = params
		return &s3.PutBucketWebsiteOutput{}, nil
	}
	s3clt.putBucketCors = func(ctx context.Context, params *s3.PutBucketCorsInput, optFns ...func(*s3.Options)) (*s3.PutBucketCorsOutput, error) {
		corsInput = params
		return &s3.PutBucketCorsOutput{}, nil
	}
	s3clt.putBucketPolicy = func(ctx context.Context, params *s3.PutBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error) {
		policyInput = params
		return &s3.PutBucketPolicyOutput{}, nil
	}

	svc := newTestService(t, s3clt, cfclt, dynamo)
	origin, err := svc.CreateOrigin(context.Background(), CreateOriginRequest{
		Name:           "website",
		BucketName:     "my-website-bucket",
		Region:         "eu-west-2",
		WebsiteEnabled: true,
	})
	require.NoError(t, err)

	require.True(t, blockRemoved)
	require.NotNil(t, websiteInput)
	require.Equal(t, "index.html", aws.ToString(websiteInput.WebsiteConfiguration.IndexDocument.Suffix))
	require.Equal(t, "error.html", aws.ToString(websiteInput.WebsiteConfiguration.ErrorDocument.Key))

	require.NotNil(t, corsInput)
	require.Len(t, corsInput.CORSConfiguration.CORSRules, 1)
	require.ElementsMatch(t, []string{"GET", "HEAD"}, corsInput.CORSConfiguration.CORSRules[0].AllowedMethods)

	require.NotNil(t, policyInput)
	doc, err := bucketpolicy.ParsePolicyDocument(aws.ToString(policyInput.Policy))
	require.NoError(t, err)
	require.NotNil(t, doc.FindStatementByID(bucketpolicy.SidPublicWebsiteRead))
	// Distribution access statements appear on the first grant, not here.
	require.Nil(t, doc.FindStatementByID(bucketpolicy.SidDistributionAccess))

	require.True(t, origin.WebsiteEnabled)
	require.NotNil(t, origin.Website)
	require.Equal(t, "index.html", origin.Website.IndexDocument)
	require.Equal(t, "index.html", stored.Website.IndexDocument)
}

func TestCreateOriginBucketTaken(t *testing.T) {
	s3clt, cfclt, dynamo, _ := newCreateMocks()
	oacCalls := 0
	s3clt.createBucket = func(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
		return nil, &s3types.BucketAlreadyExists{Message: aws.String("The requested bucket name is not available")}
	}
	createOAC := cfclt.createOriginAccessControl
	cfclt.createOriginAccessControl = func(ctx context.Context, params *cloudfront.CreateOriginAccessControlInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateOriginAccessControlOutput, error) {
		oacCalls++
		return createOAC(ctx, params, optFns...)
	}

	svc := newTestService(t, s3clt, cfclt, dynamo)
	_, err := svc.CreateOrigin(context.Background(), CreateOriginRequest{
		Name:       "eu-assets",
		BucketName: "my-origin-bucket",
		Region:     "eu-west-2",
	})
	require.True(t, trace.IsAlreadyExists(err), "expected already exists, got %v", err)
	require.Zero(t, oacCalls)
}

func TestCreateOriginRollsBackOAC(t *testing.T) {
	s3clt, cfclt, dynamo, _ := newCreateMocks()
	var deleteInput *cloudfront.DeleteOriginAccessControlInput
	cfclt.deleteOriginAccessControl = func(ctx context.Context, params *cloudfront.DeleteOriginAccessControlInput, optFns ...func(*cloudfront.Options)) (*cloudfront.DeleteOriginAccessControlOutput, error) {
		deleteInput = params
		return &cloudfront.DeleteOriginAccessControlOutput{}, nil
	}
	dynamo.putItem = func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
		return nil, trace.ConnectionProblem(nil, "dynamodb is unavailable")
	}

	svc := newTestService(t, s3clt, cfclt, dynamo)
	_, err := svc.CreateOrigin(context.Background(), CreateOriginRequest{
		Name:       "eu-assets",
		BucketName: "my-origin-bucket",
		Region:     "eu-west-2",
	})
	require.Error(t, err)

	// The freshly created access control is removed when the record write
	// fails.
	require.NotNil(t, deleteInput)
	require.Equal(t, testOACID, aws.ToString(deleteInput.Id))
	require.Equal(t, "ETAGOAC", aws.ToString(deleteInput.IfMatch))
}

func TestCreateOriginRequestValidation(t *testing.T) {
	base := func() CreateOriginRequest {
		return CreateOriginRequest{
			Name:       "eu-assets",
			BucketName: "my-origin-bucket",
			Region:     "eu-west-2",
		}
	}

	tests := []struct {
		name   string
		mutate func(req *CreateOriginRequest)
	}{
		{name: "missing name", mutate: func(req *CreateOriginRequest) { req.Name = "" }},
		{name: "missing bucket name", mutate: func(req *CreateOriginRequest) { req.BucketName = "" }},
		{name: "missing region", mutate: func(req *CreateOriginRequest) { req.Region = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base()
			tt.mutate(&req)
			err := req.CheckAndSetDefaults()
			require.True(t, trace.IsBadParameter(err), "expected bad parameter, got %v", err)
		})
	}

	t.Run("website documents are defaulted", func(t *testing.T) {
		req := base()
		req.WebsiteEnabled = true
		require.NoError(t, req.CheckAndSetDefaults())
		require.Equal(t, "index.html", req.IndexDocument)
		require.Equal(t, "error.html", req.ErrorDocument)
	})

	t.Run("documents untouched without website", func(t *testing.T) {
		req := base()
		require.NoError(t, req.CheckAndSetDefaults())
		require.Empty(t, req.IndexDocument)
	})
}
