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
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/gravitational/slipstream/lib/bucketpolicy"
	"github.com/gravitational/slipstream/lib/defaults"
	"github.com/gravitational/slipstream/lib/edgefunc"
	"github.com/gravitational/slipstream/lib/store"
)

const testEdgeRoleARN = "arn:aws:iam::123456789012:role/slipstream-edge-exec"

type mockCloudFrontClient struct {
	createDistribution func(ctx context.Context, params *cloudfront.CreateDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateDistributionOutput, error)
	getDistribution    func(ctx context.Context, params *cloudfront.GetDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetDistributionOutput, error)
	updateDistribution func(ctx context.Context, params *cloudfront.UpdateDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.UpdateDistributionOutput, error)
	deleteDistribution func(ctx context.Context, params *cloudfront.DeleteDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.DeleteDistributionOutput, error)
	createOAI          func(ctx context.Context, params *cloudfront.CreateCloudFrontOriginAccessIdentityInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateCloudFrontOriginAccessIdentityOutput, error)
	getOAI             func(ctx context.Context, params *cloudfront.GetCloudFrontOriginAccessIdentityInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetCloudFrontOriginAccessIdentityOutput, error)
	deleteOAI          func(ctx context.Context, params *cloudfront.DeleteCloudFrontOriginAccessIdentityInput, optFns ...func(*cloudfront.Options)) (*cloudfront.DeleteCloudFrontOriginAccessIdentityOutput, error)
	createInvalidation func(ctx context.Context, params *cloudfront.CreateInvalidationInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error)
}

func (m *mockCloudFrontClient) CreateDistribution(ctx context.Context, params *cloudfront.CreateDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateDistributionOutput, error) {
	if m.createDistribution == nil {
		return nil, trace.NotImplemented("CreateDistribution is not expected")
	}
	return m.createDistribution(ctx, params, optFns...)
}

func (m *mockCloudFrontClient) GetDistribution(ctx context.Context, params *cloudfront.GetDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetDistributionOutput, error) {
	if m.getDistribution == nil {
		return nil, trace.NotImplemented("GetDistribution is not expected")
	}
	return m.getDistribution(ctx, params, optFns...)
}

func (m *mockCloudFrontClient) UpdateDistribution(ctx context.Context, params *cloudfront.UpdateDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.UpdateDistributionOutput, error) {
	if m.updateDistribution == nil {
		return nil, trace.NotImplemented("UpdateDistribution is not expected")
	}
	return m.updateDistribution(ctx, params, optFns...)
}

func (m *mockCloudFrontClient) DeleteDistribution(ctx context.Context, params *cloudfront.DeleteDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.DeleteDistributionOutput, error) {
	if m.deleteDistribution == nil {
		return nil, trace.NotImplemented("DeleteDistribution is not expected")
	}
	return m.deleteDistribution(ctx, params, optFns...)
}

func (m *mockCloudFrontClient) CreateCloudFrontOriginAccessIdentity(ctx context.Context, params *cloudfront.CreateCloudFrontOriginAccessIdentityInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateCloudFrontOriginAccessIdentityOutput, error) {
	if m.createOAI == nil {
		return nil, trace.NotImplemented("CreateCloudFrontOriginAccessIdentity is not expected")
	}
	return m.createOAI(ctx, params, optFns...)
}

func (m *mockCloudFrontClient) GetCloudFrontOriginAccessIdentity(ctx context.Context, params *cloudfront.GetCloudFrontOriginAccessIdentityInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetCloudFrontOriginAccessIdentityOutput, error) {
	if m.getOAI == nil {
		return nil, trace.NotImplemented("GetCloudFrontOriginAccessIdentity is not expected")
	}
	return m.getOAI(ctx, params, optFns...)
}

func (m *mockCloudFrontClient) DeleteCloudFrontOriginAccessIdentity(ctx context.Context, params *cloudfront.DeleteCloudFrontOriginAccessIdentityInput, optFns ...func(*cloudfront.Options)) (*cloudfront.DeleteCloudFrontOriginAccessIdentityOutput, error) {
	if m.deleteOAI == nil {
		return nil, trace.NotImplemented("DeleteCloudFrontOriginAccessIdentity is not expected")
	}
	return m.deleteOAI(ctx, params, optFns...)
}

func (m *mockCloudFrontClient) CreateInvalidation(ctx context.Context, params *cloudfront.CreateInvalidationInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error) {
	if m.createInvalidation == nil {
		return nil, trace.NotImplemented("CreateInvalidation is not expected")
	}
	return m.createInvalidation(ctx, params, optFns...)
}

type mockLambdaClient struct {
	createFunction func(ctx context.Context, params *lambda.CreateFunctionInput, optFns ...func(*lambda.Options)) (*lambda.CreateFunctionOutput, error)
	getFunction    func(ctx context.Context, params *lambda.GetFunctionInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error)
	addPermission  func(ctx context.Context, params *lambda.AddPermissionInput, optFns ...func(*lambda.Options)) (*lambda.AddPermissionOutput, error)
	deleteFunction func(ctx context.Context, params *lambda.DeleteFunctionInput, optFns ...func(*lambda.Options)) (*lambda.DeleteFunctionOutput, error)
}

func (m *mockLambdaClient) CreateFunction(ctx context.Context, params *lambda.CreateFunctionInput, optFns ...func(*lambda.Options)) (*lambda.CreateFunctionOutput, error) {
	if m.createFunction == nil {
		return nil, trace.NotImplemented("CreateFunction is not expected")
	}
	return m.createFunction(ctx, params, optFns...)
}

func (m *mockLambdaClient) GetFunction(ctx context.Context, params *lambda.GetFunctionInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error) {
	if m.getFunction == nil {
		return nil, trace.NotImplemented("GetFunction is not expected")
	}
	return m.getFunction(ctx, params, optFns...)
}

func (m *mockLambdaClient) AddPermission(ctx context.Context, params *lambda.AddPermissionInput, optFns ...func(*lambda.Options)) (*lambda.AddPermissionOutput, error) {
	if m.addPermission == nil {
		return nil, trace.NotImplemented("AddPermission is not expected")
	}
	return m.addPermission(ctx, params, optFns...)
}

func (m *mockLambdaClient) DeleteFunction(ctx context.Context, params *lambda.DeleteFunctionInput, optFns ...func(*lambda.Options)) (*lambda.DeleteFunctionOutput, error) {
	if m.deleteFunction == nil {
		return nil, trace.NotImplemented("DeleteFunction is not expected")
	}
	return m.deleteFunction(ctx, params, optFns...)
}

type mockPolicyClient struct {
	getBucketPolicy    func(ctx context.Context, params *s3.GetBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.GetBucketPolicyOutput, error)
	putBucketPolicy    func(ctx context.Context, params *s3.PutBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error)
	deleteBucketPolicy func(ctx context.Context, params *s3.DeleteBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketPolicyOutput, error)
}

func (m *mockPolicyClient) GetBucketPolicy(ctx context.Context, params *s3.GetBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.GetBucketPolicyOutput, error) {
	if m.getBucketPolicy == nil {
		return nil, trace.NotImplemented("GetBucketPolicy is not expected")
	}
	return m.getBucketPolicy(ctx, params, optFns...)
}

func (m *mockPolicyClient) PutBucketPolicy(ctx context.Context, params *s3.PutBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error) {
	if m.putBucketPolicy == nil {
		return nil, trace.NotImplemented("PutBucketPolicy is not expected")
	}
	return m.putBucketPolicy(ctx, params, optFns...)
}

func (m *mockPolicyClient) DeleteBucketPolicy(ctx context.Context, params *s3.DeleteBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketPolicyOutput, error) {
	if m.deleteBucketPolicy == nil {
		return nil, trace.NotImplemented("DeleteBucketPolicy is not expected")
	}
	return m.deleteBucketPolicy(ctx, params, optFns...)
}

// policyBackend is an in-memory bucket policy store satisfying
// bucketpolicy.PolicyClient. Reads observe earlier writes, which the
// verify-after-write cycle in bucketpolicy depends on.
type policyBackend struct {
	policies map[string]string
}

func newPolicyBackend() *policyBackend {
	return &policyBackend{policies: make(map[string]string)}
}

func (b *policyBackend) GetBucketPolicy(ctx context.Context, params *s3.GetBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.GetBucketPolicyOutput, error) {
	policy, ok := b.policies[aws.ToString(params.Bucket)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchBucketPolicy", Message: "the bucket policy does not exist"}
	}
	return &s3.GetBucketPolicyOutput{Policy: aws.String(policy)}, nil
}

func (b *policyBackend) PutBucketPolicy(ctx context.Context, params *s3.PutBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error) {
	b.policies[aws.ToString(params.Bucket)] = aws.ToString(params.Policy)
	return &s3.PutBucketPolicyOutput{}, nil
}

func (b *policyBackend) DeleteBucketPolicy(ctx context.Context, params *s3.DeleteBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketPolicyOutput, error) {
	delete(b.policies, aws.ToString(params.Bucket))
	return &s3.DeleteBucketPolicyOutput{}, nil
}

// document parses the stored policy of a bucket.
func (b *policyBackend) document(t *testing.T, bucket string) *bucketpolicy.PolicyDocument {
	t.Helper()
	policy, ok := b.policies[bucket]
	require.True(t, ok, "bucket %v has no policy", bucket)
	doc, err := bucketpolicy.ParsePolicyDocument(policy)
	require.NoError(t, err)
	return doc
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

type triggerCall struct {
	distributionID string
	cdnID          string
}

type mockTrigger struct {
	calls []triggerCall
	err   error
}

func (m *mockTrigger) StartDeploymentMonitor(ctx context.Context, distributionID, cdnID string) error {
	m.calls = append(m.calls, triggerCall{distributionID: distributionID, cdnID: cdnID})
	return m.err
}

func marshalItem(t *testing.T, v any) map[string]ddbtypes.AttributeValue {
	t.Helper()
	item, err := attributevalue.MarshalMap(v)
	require.NoError(t, err)
	return item
}

// storeReader serves GetItem calls from fixture records, routing on the
// table name the store queried.
func storeReader(t *testing.T, origins []*store.Origin, distribution *store.Distribution) func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	t.Helper()
	originItems := make(map[string]map[string]ddbtypes.AttributeValue, len(origins))
	for _, origin := range origins {
		originItems[origin.OriginID] = marshalItem(t, origin)
	}
	var distributionItem map[string]ddbtypes.AttributeValue
	if distribution != nil {
		distributionItem = marshalItem(t, distribution)
	}
	return func(ctx context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
		switch table := aws.ToString(params.TableName); table {
		case defaults.OriginsTable:
			key, ok := params.Key["originId"].(*ddbtypes.AttributeValueMemberS)
			require.True(t, ok, "origin key is missing")
			return &dynamodb.GetItemOutput{Item: originItems[key.Value]}, nil
		case defaults.DistributionsTable:
			key, ok := params.Key["distributionId"].(*ddbtypes.AttributeValueMemberS)
			require.True(t, ok, "distribution key is missing")
			if distribution == nil || key.Value != distribution.DistributionID {
				return &dynamodb.GetItemOutput{}, nil
			}
			return &dynamodb.GetItemOutput{Item: distributionItem}, nil
		default:
			return nil, trace.NotImplemented("GetItem on table %v is not expected", table)
		}
	}
}

func newTestService(t *testing.T, cfclt CloudFrontClient, lambdaClt edgefunc.LambdaClient, policyClt bucketpolicy.PolicyClient, dynamo store.DynamoClient, trigger WorkflowTrigger) *Service {
	t.Helper()
	backend, err := store.New(store.Config{Client: dynamo})
	require.NoError(t, err)
	svc, err := NewService(Config{
		CloudFront:          cfclt,
		Lambda:              lambdaClt,
		Policy:              policyClt,
		Store:               backend,
		Trigger:             trigger,
		EdgeFunctionRoleARN: testEdgeRoleARN,
		Clock:               clockwork.NewFakeClockAt(time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	return svc
}
