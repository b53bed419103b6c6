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
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/gravitational/slipstream/lib/defaults"
	"github.com/gravitational/slipstream/lib/store"
)

type mockCloudFrontClient struct {
	getDistribution func(ctx context.Context, params *cloudfront.GetDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetDistributionOutput, error)
}

func (m *mockCloudFrontClient) GetDistribution(ctx context.Context, params *cloudfront.GetDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetDistributionOutput, error) {
	if m.getDistribution == nil {
		return nil, trace.NotImplemented("GetDistribution is not expected")
	}
	return m.getDistribution(ctx, params, optFns...)
}

type mockSFNClient struct {
	startExecution func(ctx context.Context, params *sfn.StartExecutionInput, optFns ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error)
}

func (m *mockSFNClient) StartExecution(ctx context.Context, params *sfn.StartExecutionInput, optFns ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error) {
	if m.startExecution == nil {
		return nil, trace.NotImplemented("StartExecution is not expected")
	}
	return m.startExecution(ctx, params, optFns...)
}

// distributionStatus builds a GetDistribution output reporting the given
// deployment status.
func distributionStatus(status string) *cloudfront.GetDistributionOutput {
	return &cloudfront.GetDistributionOutput{
		Distribution: &cftypes.Distribution{
			Status: aws.String(status),
		},
	}
}

// statusSequence reports the statuses one per call, repeating the last
// one once the sequence is exhausted. Safe for concurrent callers.
func statusSequence(statuses ...string) func(ctx context.Context, params *cloudfront.GetDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetDistributionOutput, error) {
	var calls atomic.Int64
	return func(ctx context.Context, params *cloudfront.GetDistributionInput, _ ...func(*cloudfront.Options)) (*cloudfront.GetDistributionOutput, error) {
		n := int(calls.Add(1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		return distributionStatus(statuses[n]), nil
	}
}

// distributionBackend is an in-memory distribution and history table pair
// satisfying store.DynamoClient. The conditional update the store uses
// for status transitions fails the way DynamoDB fails it, so races
// between concurrent checkers behave like they do in production.
type distributionBackend struct {
	mu      sync.Mutex
	records map[string]store.Distribution
	history []store.HistoryEntry
	scanErr error
	scans   int
}

func newDistributionBackend(records ...store.Distribution) *distributionBackend {
	b := &distributionBackend{records: make(map[string]store.Distribution)}
	for _, record := range records {
		b.records[record.DistributionID] = record
	}
	return b
}

func (b *distributionBackend) record(t *testing.T, id string) store.Distribution {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	record, ok := b.records[id]
	require.True(t, ok, "distribution %v is gone", id)
	return record
}

func (b *distributionBackend) setStatus(id string, status store.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	record := b.records[id]
	record.Status = status
	b.records[id] = record
}

// status returns the stored status, or empty for a missing record. Safe
// to poll from require.Eventually conditions.
func (b *distributionBackend) status(id string) store.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.records[id].Status
}

func (b *distributionBackend) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.records, id)
}

func (b *distributionBackend) historyEntries() []store.HistoryEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.history)
}

func (b *distributionBackend) setScanError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scanErr = err
}

func (b *distributionBackend) scanCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scans
}

func (b *distributionBackend) GetItem(ctx context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if table := aws.ToString(params.TableName); table != defaults.DistributionsTable {
		return nil, trace.NotImplemented("GetItem on table %v is not expected", table)
	}
	key, ok := params.Key["distributionId"].(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return nil, trace.BadParameter("distribution key is missing")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	record, ok := b.records[key.Value]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (b *distributionBackend) PutItem(ctx context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch table := aws.ToString(params.TableName); table {
	case defaults.DistributionsTable:
		var record store.Distribution
		if err := attributevalue.UnmarshalMap(params.Item, &record); err != nil {
			return nil, err
		}
		b.records[record.DistributionID] = record
	case defaults.HistoryTable:
		var entry store.HistoryEntry
		if err := attributevalue.UnmarshalMap(params.Item, &entry); err != nil {
			return nil, err
		}
		b.history = append(b.history, entry)
	default:
		return nil, trace.NotImplemented("PutItem on table %v is not expected", table)
	}
	return &dynamodb.PutItemOutput{}, nil
}

// UpdateItem serves the conditional status transition. The update only
// lands while the record still carries the expected previous status,
// matching the ConditionExpression the store sends.
func (b *distributionBackend) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if table := aws.ToString(params.TableName); table != defaults.DistributionsTable {
		return nil, trace.NotImplemented("UpdateItem on table %v is not expected", table)
	}
	key, ok := params.Key["distributionId"].(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return nil, trace.BadParameter("distribution key is missing")
	}
	from, ok := params.ExpressionAttributeValues[":from"].(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return nil, trace.BadParameter("previous status is missing")
	}
	to, ok := params.ExpressionAttributeValues[":to"].(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return nil, trace.BadParameter("new status is missing")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	record, ok := b.records[key.Value]
	if !ok || string(record.Status) != from.Value {
		return nil, &ddbtypes.ConditionalCheckFailedException{
			Message: aws.String("The conditional request failed"),
		}
	}
	record.Status = store.Status(to.Value)
	record.Version++
	if now, ok := params.ExpressionAttributeValues[":now"]; ok {
		if err := attributevalue.Unmarshal(now, &record.UpdatedAt); err != nil {
			return nil, err
		}
	}
	b.records[key.Value] = record
	return &dynamodb.UpdateItemOutput{}, nil
}

func (b *distributionBackend) Scan(ctx context.Context, params *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if table := aws.ToString(params.TableName); table != defaults.DistributionsTable {
		return nil, trace.NotImplemented("Scan on table %v is not expected", table)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scans++
	if b.scanErr != nil {
		return nil, b.scanErr
	}
	var items []map[string]ddbtypes.AttributeValue
	for _, record := range b.records {
		if !record.Status.IsPending() || record.CDNID == "" {
			continue
		}
		item, err := attributevalue.MarshalMap(record)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return &dynamodb.ScanOutput{Items: items}, nil
}

func (b *distributionBackend) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return nil, trace.NotImplemented("DeleteItem is not expected")
}

func (b *distributionBackend) Query(ctx context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return nil, trace.NotImplemented("Query is not expected")
}

// testDistribution builds a distribution record fixture at version 1.
func testDistribution(id, cdnID string, status store.Status) store.Distribution {
	return store.Distribution{
		DistributionID: id,
		Name:           "cdn-asia",
		CDNID:          cdnID,
		ARN:            "arn:aws:cloudfront::123456789012:distribution/" + cdnID,
		DomainName:     "d1111111111111.cloudfront.net",
		Status:         status,
		OriginID:       "origin-1a2b3c4d",
		Version:        1,
		CreatedBy:      "alice",
	}
}

func newTestStore(t *testing.T, clt store.DynamoClient, clock clockwork.Clock) *store.Store {
	t.Helper()
	st, err := store.New(store.Config{Client: clt, Clock: clock})
	require.NoError(t, err)
	return st
}

func newTestService(t *testing.T, cfg Config) *Service {
	t.Helper()
	svc, err := NewService(cfg)
	require.NoError(t, err)
	return svc
}
